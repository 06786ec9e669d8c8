package services

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frictionlens/frictionlens/internal/models"
)

// AssessmentStore persists measurement rounds and their tokens.
type AssessmentStore interface {
	GetUnit(id string) (*models.OrgUnit, error)
	InsertAssessment(a *models.Assessment) error
	GetAssessment(id string) (*models.Assessment, error)
	UpdateAssessmentStatus(id string, st models.AssessmentStatus) error
	InsertTokens(ts []*models.Token) error
	ListTokens(assessmentID string) ([]*models.Token, error)
	AddAudit(e models.AuditEntry)
}

// CreateAssessmentRequest carries the sanitized creation payload.
type CreateAssessmentRequest struct {
	TargetUnitID        string                `json:"target_unit_id"`
	Period              string                `json:"period"`
	Mode                models.AssessmentMode `json:"mode"`
	MinResponses        int                   `json:"min_responses"`
	CollectLeaderSelf   bool                  `json:"collect_leader_self"`
	CollectLeaderAssess bool                  `json:"collect_leader_assess"`
}

// AssessmentService owns the measurement-round lifecycle and token
// issuance. The target subtree is fixed at creation time by the target unit
// id; moving units afterwards does not retarget a running round.
type AssessmentService struct {
	store AssessmentStore
	cfg   EngineConfig
	now   func() time.Time
	idGen func() string
}

func NewAssessmentService(store AssessmentStore, cfg EngineConfig) *AssessmentService {
	return &AssessmentService{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(12) },
	}
}

func (s *AssessmentService) Create(tenantID string, req CreateAssessmentRequest) (*models.Assessment, error) {
	if strings.TrimSpace(req.Period) == "" {
		return nil, NewInvalidError("period required")
	}
	unit, err := s.store.GetUnit(req.TargetUnitID)
	if err != nil {
		return nil, err
	}
	if unit == nil || unit.TenantID != tenantID {
		return nil, NewNotFoundError("target unit not found")
	}
	mode := req.Mode
	if mode != models.ModeIdentified {
		mode = models.ModeAnonymous
	}
	minResponses := req.MinResponses
	if minResponses <= 0 {
		minResponses = s.cfg.DefaultMinResponses
	}
	a := &models.Assessment{
		ID:                  s.idGen(),
		TenantID:            tenantID,
		TargetUnitID:        unit.ID,
		Period:              strings.TrimSpace(req.Period),
		Mode:                mode,
		MinResponses:        minResponses,
		CollectLeaderSelf:   req.CollectLeaderSelf,
		CollectLeaderAssess: req.CollectLeaderAssess,
		Status:              models.StatusDraft,
		CreatedAt:           s.now(),
	}
	if err := s.store.InsertAssessment(a); err != nil {
		return nil, err
	}
	s.store.AddAudit(models.AuditEntry{Time: s.now(), Action: "assessment.create", Target: a.ID, Note: a.Period})
	return a, nil
}

// legalTransitions is the lifecycle graph: draft may be scheduled or sent
// directly, scheduled rounds get sent, sent rounds get completed.
var legalTransitions = map[models.AssessmentStatus][]models.AssessmentStatus{
	models.StatusDraft:     {models.StatusScheduled, models.StatusSent},
	models.StatusScheduled: {models.StatusSent},
	models.StatusSent:      {models.StatusCompleted},
}

// Transition moves the assessment along its lifecycle.
func (s *AssessmentService) Transition(tenantID, assessmentID string, to models.AssessmentStatus) (*models.Assessment, error) {
	a, err := s.store.GetAssessment(assessmentID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.TenantID != tenantID {
		return nil, NewNotFoundError("assessment not found")
	}
	allowed := false
	for _, next := range legalTransitions[a.Status] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, NewConflictError("illegal status transition " + string(a.Status) + " -> " + string(to))
	}
	if err := s.store.UpdateAssessmentStatus(a.ID, to); err != nil {
		return nil, err
	}
	a.Status = to
	s.store.AddAudit(models.AuditEntry{Time: s.now(), Action: "assessment.status", Target: a.ID, Note: string(to)})
	return a, nil
}

// IssueTokensRequest describes one token batch: either a bare count for
// anonymous rounds or a display-name list for identified ones.
type IssueTokensRequest struct {
	UnitID         string                `json:"unit_id"`
	RespondentType models.RespondentType `json:"respondent_type"`
	Count          int                   `json:"count"`
	DisplayNames   []string              `json:"display_names"`
}

// IssueTokens mints single-use tokens for one unit of the assessment's
// target subtree. Leader tokens require the matching collect flag.
func (s *AssessmentService) IssueTokens(tenantID, assessmentID string, req IssueTokensRequest) ([]*models.Token, error) {
	a, err := s.store.GetAssessment(assessmentID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.TenantID != tenantID {
		return nil, NewNotFoundError("assessment not found")
	}
	if a.Status == models.StatusCompleted {
		return nil, NewConflictError("assessment already completed")
	}
	switch req.RespondentType {
	case models.RespondentEmployee:
	case models.RespondentLeaderAssess:
		if !a.CollectLeaderAssess {
			return nil, NewInvalidError("assessment does not collect leader assessments")
		}
	case models.RespondentLeaderSelf:
		if !a.CollectLeaderSelf {
			return nil, NewInvalidError("assessment does not collect leader self-assessments")
		}
	default:
		return nil, NewInvalidError("unknown respondent type")
	}
	unit, err := s.store.GetUnit(req.UnitID)
	if err != nil {
		return nil, err
	}
	if unit == nil || unit.TenantID != tenantID {
		return nil, NewNotFoundError("unit not found")
	}

	count := req.Count
	if len(req.DisplayNames) > 0 {
		if a.Mode != models.ModeIdentified {
			return nil, NewInvalidError("display names are only bound in identified mode")
		}
		count = len(req.DisplayNames)
	}
	if count <= 0 {
		return nil, NewInvalidError("token count required")
	}

	now := s.now()
	tokens := make([]*models.Token, 0, count)
	for i := 0; i < count; i++ {
		t := &models.Token{
			ID:             uuid.NewString(),
			AssessmentID:   a.ID,
			UnitID:         unit.ID,
			RespondentType: req.RespondentType,
			CreatedAt:      now,
		}
		if len(req.DisplayNames) > 0 {
			t.DisplayName = strings.TrimSpace(req.DisplayNames[i])
		}
		tokens = append(tokens, t)
	}
	if err := s.store.InsertTokens(tokens); err != nil {
		return nil, err
	}
	s.store.AddAudit(models.AuditEntry{Time: now, Action: "tokens.issue", Target: a.ID, Note: unit.ID})
	return tokens, nil
}

// Tokens lists an assessment's tokens after a tenant check.
func (s *AssessmentService) Tokens(tenantID, assessmentID string) ([]*models.Token, error) {
	a, err := s.store.GetAssessment(assessmentID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.TenantID != tenantID {
		return nil, NewNotFoundError("assessment not found")
	}
	return s.store.ListTokens(assessmentID)
}
