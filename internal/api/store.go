package api

import (
	"sort"
	"sync"
	"time"

	"github.com/frictionlens/frictionlens/internal/models"
)

// memoryStore is the default in-process Store. All methods copy on the way
// in and out so callers never share pointers with the store.
type memoryStore struct {
	mu           sync.RWMutex
	tenants      map[string]*models.Tenant
	usersByEmail map[string]*models.User
	units        map[string]*models.OrgUnit
	questions    map[string]*models.Question
	assessments  map[string]*models.Assessment
	tokens       map[string]*models.Token
	responses    []*models.SurveyResponse
	audit        []models.AuditEntry
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() Store { return newMemoryStore() }

func newMemoryStore() *memoryStore {
	return &memoryStore{
		tenants:      map[string]*models.Tenant{},
		usersByEmail: map[string]*models.User{},
		units:        map[string]*models.OrgUnit{},
		questions:    map[string]*models.Question{},
		assessments:  map[string]*models.Assessment{},
		tokens:       map[string]*models.Token{},
	}
}

func (s *memoryStore) AddTenant(t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *memoryStore) AddUser(u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.usersByEmail[u.Email] = &cp
	return nil
}

func (s *memoryStore) FindUserByEmail(email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByEmail[email]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *memoryStore) InsertUnit(u *models.OrgUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.units[u.ID] = &cp
	return nil
}

func (s *memoryStore) UpdateUnit(u *models.OrgUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.units[u.ID] = &cp
	return nil
}

func (s *memoryStore) GetUnit(id string) (*models.OrgUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *memoryStore) ListUnits(tenantID string) ([]*models.OrgUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.OrgUnit{}
	for _, u := range s.units {
		if u.TenantID == tenantID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullPath < out[j].FullPath })
	return out, nil
}

func (s *memoryStore) ListChildren(parentID string) ([]*models.OrgUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listChildrenLocked(parentID), nil
}

func (s *memoryStore) listChildrenLocked(parentID string) []*models.OrgUnit {
	out := []*models.OrgUnit{}
	for _, u := range s.units {
		if u.ParentID == parentID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *memoryStore) ListUnitSubtreeIDs(unitID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.units[unitID]; !ok {
		return []string{unitID}, nil
	}
	ids := []string{unitID}
	for i := 0; i < len(ids); i++ {
		for _, child := range s.listChildrenLocked(ids[i]) {
			ids = append(ids, child.ID)
		}
	}
	return ids, nil
}

// DeleteUnits removes the units and cascades to their tokens, responses and
// assessments targeting them.
func (s *memoryStore) DeleteUnits(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := map[string]struct{}{}
	for _, id := range ids {
		drop[id] = struct{}{}
		delete(s.units, id)
	}
	for id, t := range s.tokens {
		if _, gone := drop[t.UnitID]; gone {
			delete(s.tokens, id)
		}
	}
	kept := s.responses[:0]
	for _, r := range s.responses {
		if _, gone := drop[r.UnitID]; !gone {
			kept = append(kept, r)
		}
	}
	s.responses = kept
	for id, a := range s.assessments {
		if _, gone := drop[a.TargetUnitID]; gone {
			delete(s.assessments, id)
		}
	}
	return nil
}

func (s *memoryStore) InsertQuestion(q *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *q
	s.questions[q.ID] = &cp
	return nil
}

func (s *memoryStore) GetQuestion(id string) (*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (s *memoryStore) ListQuestions(tenantID string) ([]*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Question{}
	for _, q := range s.questions {
		if q.IsDefault || q.TenantID == tenantID {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryStore) QuestionHasResponses(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.responses {
		if r.QuestionID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) UpdateQuestion(q *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *q
	s.questions[q.ID] = &cp
	return nil
}

func (s *memoryStore) InsertAssessment(a *models.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.assessments[a.ID] = &cp
	return nil
}

func (s *memoryStore) GetAssessment(id string) (*models.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assessments[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *memoryStore) ListAssessments(tenantID string) ([]*models.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Assessment{}
	for _, a := range s.assessments {
		if a.TenantID == tenantID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) UpdateAssessmentStatus(id string, st models.AssessmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.assessments[id]; ok {
		a.Status = st
	}
	return nil
}

func (s *memoryStore) GetAssessmentConfig(assessmentID string) (*models.AssessmentConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assessments[assessmentID]
	if !ok {
		return nil, nil
	}
	return &models.AssessmentConfig{Mode: a.Mode, MinResponses: a.MinResponses}, nil
}

func (s *memoryStore) InsertTokens(ts []*models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range ts {
		cp := *t
		s.tokens[t.ID] = &cp
	}
	return nil
}

func (s *memoryStore) GetToken(id string) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memoryStore) ListTokens(assessmentID string) ([]*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Token{}
	for _, t := range s.tokens {
		if t.AssessmentID == assessmentID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MarkTokenUsed consumes the token under the write lock; the check and the
// flip are one critical section, so concurrent submits race safely.
func (s *memoryStore) MarkTokenUsed(id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || t.IsUsed {
		return false, nil
	}
	t.IsUsed = true
	t.UsedAt = at
	return true, nil
}

func (s *memoryStore) InsertResponses(rs []*models.SurveyResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rs {
		cp := *r
		s.responses = append(s.responses, &cp)
	}
	return nil
}

func (s *memoryStore) ListScoredResponses(unitIDs []string, assessmentID string, rt models.RespondentType) ([]*models.ScoredResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope := map[string]struct{}{}
	for _, id := range unitIDs {
		scope[id] = struct{}{}
	}
	out := []*models.ScoredResponse{}
	for _, r := range s.responses {
		if r.AssessmentID != assessmentID || r.RespondentType != rt {
			continue
		}
		if _, ok := scope[r.UnitID]; !ok {
			continue
		}
		q, ok := s.questions[r.QuestionID]
		if !ok {
			continue
		}
		out = append(out, &models.ScoredResponse{
			QuestionID:    r.QuestionID,
			Field:         q.Field,
			Layer:         q.Layer,
			ReverseScored: q.ReverseScored,
			Score:         r.Score,
			RespondentID:  r.RespondentID,
		})
	}
	return out, nil
}

// CountDistinctEmployeeRespondents counts for exactly one unit, never the
// subtree: the anonymity gate protects the smallest disclosed cell.
func (s *memoryStore) CountDistinctEmployeeRespondents(unitID, assessmentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, r := range s.responses {
		if r.AssessmentID == assessmentID && r.UnitID == unitID && r.RespondentType == models.RespondentEmployee {
			seen[r.RespondentID] = struct{}{}
		}
	}
	return len(seen), nil
}

func (s *memoryStore) AddAudit(e models.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
}

func (s *memoryStore) ListAudit() []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}
