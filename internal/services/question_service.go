package services

import (
	"strings"
	"time"

	"github.com/frictionlens/frictionlens/internal/models"
)

// QuestionStore persists the question bank. ListQuestions returns the
// global default bank plus the tenant's own items.
type QuestionStore interface {
	InsertQuestion(q *models.Question) error
	GetQuestion(id string) (*models.Question, error)
	ListQuestions(tenantID string) ([]*models.Question, error)
	QuestionHasResponses(id string) (bool, error)
	UpdateQuestion(q *models.Question) error
	AddAudit(e models.AuditEntry)
}

// QuestionService manages the global default bank and tenant-specific
// questions. Once responses reference a question only its stem may change.
type QuestionService struct {
	store QuestionStore
	now   func() time.Time
	idGen func() string
}

func NewQuestionService(store QuestionStore) *QuestionService {
	return &QuestionService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(12) },
	}
}

// defaultBank is the built-in friction questionnaire. The HASSLE "time" and
// "process" layers and the MEANING field double as the substitution
// detector's item-role registry (see RoleForItem).
func defaultBank() []*models.Question {
	return []*models.Question{
		{ID: "q-meaning-1", Field: models.FieldMeaning, Layer: "direction", Sequence: 10, IsDefault: true,
			StemI18n: map[string]string{"en": "I understand how my work contributes to our goals.", "de": "Ich verstehe, wie meine Arbeit zu unseren Zielen beiträgt."}},
		{ID: "q-meaning-2", Field: models.FieldMeaning, Layer: "contribution", Sequence: 20, IsDefault: true,
			StemI18n: map[string]string{"en": "My work feels worthwhile to me.", "de": "Meine Arbeit fühlt sich für mich sinnvoll an."}},
		{ID: "q-meaning-3", Field: models.FieldMeaning, Layer: "contribution", Sequence: 30, IsDefault: true, ReverseScored: true,
			StemI18n: map[string]string{"en": "Much of what I do feels pointless.", "de": "Vieles von dem, was ich tue, fühlt sich sinnlos an."}},
		{ID: "q-safety-1", Field: models.FieldSafety, Layer: "social", Sequence: 40, IsDefault: true,
			StemI18n: map[string]string{"en": "I can raise problems without being blamed.", "de": "Ich kann Probleme ansprechen, ohne dafür verantwortlich gemacht zu werden."}},
		{ID: "q-safety-2", Field: models.FieldSafety, Layer: "social", Sequence: 50, IsDefault: true, ReverseScored: true,
			StemI18n: map[string]string{"en": "Mistakes are held against people here.", "de": "Fehler werden einem hier nachgetragen."}},
		{ID: "q-safety-3", Field: models.FieldSafety, Layer: "emotional", Sequence: 60, IsDefault: true,
			StemI18n: map[string]string{"en": "I can be myself at work.", "de": "Ich kann bei der Arbeit ich selbst sein."}},
		{ID: "q-capability-1", Field: models.FieldCapability, Layer: "skills", Sequence: 70, IsDefault: true,
			StemI18n: map[string]string{"en": "I have the skills my tasks require.", "de": "Ich habe die Fähigkeiten, die meine Aufgaben erfordern."}},
		{ID: "q-capability-2", Field: models.FieldCapability, Layer: "skills", Sequence: 80, IsDefault: true, ReverseScored: true,
			StemI18n: map[string]string{"en": "I am often out of my depth.", "de": "Ich bin oft überfordert."}},
		{ID: "q-capability-3", Field: models.FieldCapability, Layer: "resources", Sequence: 90, IsDefault: true,
			StemI18n: map[string]string{"en": "I have the tools and information I need.", "de": "Ich habe die Werkzeuge und Informationen, die ich brauche."}},
		{ID: "q-hassle-time", Field: models.FieldHassle, Layer: LayerTime, Sequence: 100, IsDefault: true,
			StemI18n: map[string]string{"en": "I have enough time for my actual work.", "de": "Ich habe genug Zeit für meine eigentliche Arbeit."}},
		{ID: "q-hassle-1", Field: models.FieldHassle, Layer: LayerProcess, Sequence: 110, IsDefault: true, ReverseScored: true,
			StemI18n: map[string]string{"en": "Unnecessary process steps slow my work down.", "de": "Unnötige Prozessschritte bremsen meine Arbeit."}},
		{ID: "q-hassle-2", Field: models.FieldHassle, Layer: LayerProcess, Sequence: 120, IsDefault: true, ReverseScored: true,
			StemI18n: map[string]string{"en": "I spend too much time in meetings without outcomes.", "de": "Ich verbringe zu viel Zeit in Besprechungen ohne Ergebnis."}},
		{ID: "q-hassle-3", Field: models.FieldHassle, Layer: LayerProcess, Sequence: 130, IsDefault: true,
			StemI18n: map[string]string{"en": "Our tools support my work well.", "de": "Unsere Werkzeuge unterstützen meine Arbeit gut."}},
	}
}

// SeedDefaultBank inserts the built-in questionnaire. Safe to call on every
// start; questions that already exist are left untouched.
func (s *QuestionService) SeedDefaultBank() (int, error) {
	inserted := 0
	for _, q := range defaultBank() {
		existing, err := s.store.GetQuestion(q.ID)
		if err != nil {
			return inserted, err
		}
		if existing != nil {
			continue
		}
		if err := s.store.InsertQuestion(q); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// Create adds a tenant-specific question.
func (s *QuestionService) Create(tenantID string, q *models.Question) (*models.Question, error) {
	if q == nil || len(q.StemI18n) == 0 {
		return nil, NewInvalidError("stem required")
	}
	valid := false
	for _, f := range models.AllFields() {
		if q.Field == f {
			valid = true
			break
		}
	}
	if !valid {
		return nil, NewInvalidError("unknown field " + string(q.Field))
	}
	q.ID = s.idGen()
	q.TenantID = tenantID
	q.IsDefault = false
	if err := s.store.InsertQuestion(q); err != nil {
		return nil, err
	}
	s.store.AddAudit(models.AuditEntry{Time: s.now(), Action: "question.create", Target: q.ID, Note: string(q.Field)})
	return q, nil
}

// Update applies changes to a question. Once responses reference it, only
// textual stem edits are accepted; scoring metadata is frozen.
func (s *QuestionService) Update(tenantID string, upd *models.Question) (*models.Question, error) {
	if upd == nil {
		return nil, NewInvalidError("question required")
	}
	q, err := s.store.GetQuestion(upd.ID)
	if err != nil {
		return nil, err
	}
	if q == nil || (q.TenantID != "" && q.TenantID != tenantID) {
		return nil, NewNotFoundError("question not found")
	}
	referenced, err := s.store.QuestionHasResponses(q.ID)
	if err != nil {
		return nil, err
	}
	structural := upd.Field != q.Field || upd.Layer != q.Layer || upd.ReverseScored != q.ReverseScored
	if referenced && structural {
		return nil, NewConflictError("question has responses, only stem edits allowed")
	}
	if !referenced {
		q.Field = upd.Field
		q.Layer = upd.Layer
		q.ReverseScored = upd.ReverseScored
	}
	if upd.Sequence != 0 {
		q.Sequence = upd.Sequence
	}
	if len(upd.StemI18n) > 0 {
		q.StemI18n = upd.StemI18n
	}
	if err := s.store.UpdateQuestion(q); err != nil {
		return nil, err
	}
	s.store.AddAudit(models.AuditEntry{Time: s.now(), Action: "question.update", Target: q.ID, Note: ""})
	return q, nil
}

// List returns the default bank plus the tenant's questions, in sequence
// order (the store guarantees ordering).
func (s *QuestionService) List(tenantID string) ([]*models.Question, error) {
	return s.store.ListQuestions(tenantID)
}

// StemFor picks the localized stem with English fallback.
func StemFor(q *models.Question, locale string) string {
	if q == nil {
		return ""
	}
	if v, ok := q.StemI18n[locale]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return q.StemI18n["en"]
}
