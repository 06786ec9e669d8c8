package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/frictionlens/frictionlens/internal/models"
)

// SubmissionStore is the write side of the survey workflow. MarkTokenUsed
// must consume atomically and report false when the token was already
// spent, so a token can never attribute two response sets.
type SubmissionStore interface {
	GetAssessment(id string) (*models.Assessment, error)
	GetToken(id string) (*models.Token, error)
	MarkTokenUsed(id string, at time.Time) (bool, error)
	GetQuestion(id string) (*models.Question, error)
	ListUnitSubtreeIDs(unitID string) ([]string, error)
	InsertResponses(rs []*models.SurveyResponse) error
}

// SubmissionAnswer is one inbound answer.
type SubmissionAnswer struct {
	QuestionID string `json:"question_id"`
	Score      int    `json:"score"`
	Comment    string `json:"comment,omitempty"`
}

// SubmissionRequest is the token-gated bulk payload.
type SubmissionRequest struct {
	TokenID string             `json:"token"`
	Answers []SubmissionAnswer `json:"answers"`
}

// SubmissionResult reports what was stored.
type SubmissionResult struct {
	ResponseCount int `json:"response_count"`
}

var errTokenSpent = NewConflictError("token already used")

// SurveyResponseService runs the submission workflow: validate the token,
// bound-check every answer, write the immutable raw responses, consume the
// token and drop the assessment's cached aggregates.
type SurveyResponseService struct {
	store SubmissionStore
	cfg   EngineConfig
	cache *ResultCache
	now   func() time.Time
	idGen func() string
}

func NewSurveyResponseService(store SubmissionStore, cfg EngineConfig, cache *ResultCache) *SurveyResponseService {
	return &SurveyResponseService{
		store: store,
		cfg:   cfg,
		cache: cache,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(16) },
	}
}

func (s *SurveyResponseService) Submit(req SubmissionRequest) (*SubmissionResult, error) {
	if strings.TrimSpace(req.TokenID) == "" {
		return nil, NewInvalidError("token required")
	}
	token, err := s.store.GetToken(req.TokenID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, NewNotFoundError("token not found")
	}
	if token.IsUsed {
		return nil, errTokenSpent
	}
	assessment, err := s.store.GetAssessment(token.AssessmentID)
	if err != nil {
		return nil, err
	}
	if assessment == nil {
		return nil, NewNotFoundError("assessment not found")
	}
	if assessment.Status != models.StatusSent {
		return nil, NewConflictError("assessment is not accepting responses")
	}
	if err := s.checkUnitInTarget(token.UnitID, assessment.TargetUnitID); err != nil {
		return nil, err
	}

	now := s.now()
	responses := make([]*models.SurveyResponse, 0, len(req.Answers))
	for _, ans := range req.Answers {
		if ans.QuestionID == "" {
			continue
		}
		question, err := s.store.GetQuestion(ans.QuestionID)
		if err != nil {
			return nil, err
		}
		if question == nil {
			continue
		}
		if ans.Score < s.cfg.ScaleMin || ans.Score > s.cfg.ScaleMax {
			return nil, NewInvalidError(fmt.Sprintf("score %d out of range [%d,%d]", ans.Score, s.cfg.ScaleMin, s.cfg.ScaleMax))
		}
		responses = append(responses, &models.SurveyResponse{
			ID:             s.idGen(),
			AssessmentID:   assessment.ID,
			UnitID:         token.UnitID,
			QuestionID:     question.ID,
			RespondentType: token.RespondentType,
			RespondentID:   token.ID,
			Score:          ans.Score,
			Comment:        strings.TrimSpace(ans.Comment),
			CreatedAt:      now,
		})
	}
	if len(responses) == 0 {
		return nil, NewInvalidError("no valid answers")
	}

	consumed, err := s.store.MarkTokenUsed(token.ID, now)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, errTokenSpent
	}
	if err := s.store.InsertResponses(responses); err != nil {
		return nil, err
	}

	// New responses make every aggregate for this assessment stale.
	s.cache.InvalidatePrefix(CacheKey("fieldstats", assessment.ID))
	s.cache.InvalidatePrefix(CacheKey("comparison", assessment.ID))
	s.cache.InvalidatePrefix(CacheKey("substitution", assessment.ID))

	return &SubmissionResult{ResponseCount: len(responses)}, nil
}

func (s *SurveyResponseService) checkUnitInTarget(unitID, targetUnitID string) error {
	ids, err := s.store.ListUnitSubtreeIDs(targetUnitID)
	if err != nil {
		return fmt.Errorf("list target subtree: %w", err)
	}
	for _, id := range ids {
		if id == unitID {
			return nil
		}
	}
	return NewInvalidError("unit is outside the assessment's target subtree")
}
