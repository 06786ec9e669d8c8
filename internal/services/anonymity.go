package services

import (
	"fmt"
	"log"

	"github.com/frictionlens/frictionlens/internal/models"
)

// AnonymityStore is the slice of the response store the disclosure gate
// reads. CountDistinctEmployeeRespondents counts respondents for exactly
// the given unit, never its subtree.
type AnonymityStore interface {
	GetAssessmentConfig(assessmentID string) (*models.AssessmentConfig, error)
	CountDistinctEmployeeRespondents(unitID, assessmentID string) (int, error)
}

// AnonymityCheck is the disclosure verdict for one unit and assessment.
type AnonymityCheck struct {
	CanShowResults bool                  `json:"can_show_results"`
	ResponseCount  int                   `json:"response_count"`
	MinRequired    int                   `json:"min_required"`
	Missing        int                   `json:"missing"`
	Mode           models.AssessmentMode `json:"mode"`
}

// AnonymityService decides whether an aggregate may be disclosed without
// risking de-anonymization.
type AnonymityService struct {
	store AnonymityStore
	cfg   EngineConfig
}

func NewAnonymityService(store AnonymityStore, cfg EngineConfig) *AnonymityService {
	return &AnonymityService{store: store, cfg: cfg}
}

// resolveAssessmentConfig merges an assessment's stored gate settings over
// the safe defaults. The fallback covers both a missing record and missing
// values; the caller never fails on configuration.
func (s *AnonymityService) resolveAssessmentConfig(assessmentID string) models.AssessmentConfig {
	resolved := models.AssessmentConfig{
		Mode:         models.ModeAnonymous,
		MinResponses: s.cfg.DefaultMinResponses,
	}
	stored, err := s.store.GetAssessmentConfig(assessmentID)
	if err != nil {
		log.Printf("anonymity gate: assessment %s config unavailable, using defaults: %v", assessmentID, err)
		return resolved
	}
	if stored == nil {
		return resolved
	}
	if stored.Mode == models.ModeAnonymous || stored.Mode == models.ModeIdentified {
		resolved.Mode = stored.Mode
	}
	if stored.MinResponses > 0 {
		resolved.MinResponses = stored.MinResponses
	}
	return resolved
}

// Check reports whether the unit's aggregate for the assessment may be
// shown. Identified assessments always disclose; anonymous ones require the
// configured number of distinct employee respondents in exactly this unit.
func (s *AnonymityService) Check(unitID, assessmentID string) (*AnonymityCheck, error) {
	cfg := s.resolveAssessmentConfig(assessmentID)
	if cfg.Mode == models.ModeIdentified {
		count, err := s.store.CountDistinctEmployeeRespondents(unitID, assessmentID)
		if err != nil {
			return nil, fmt.Errorf("count employee respondents: %w", err)
		}
		return &AnonymityCheck{
			CanShowResults: true,
			ResponseCount:  count,
			MinRequired:    0,
			Mode:           cfg.Mode,
		}, nil
	}

	count, err := s.store.CountDistinctEmployeeRespondents(unitID, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("count employee respondents: %w", err)
	}
	missing := cfg.MinResponses - count
	if missing < 0 {
		missing = 0
	}
	return &AnonymityCheck{
		CanShowResults: count >= cfg.MinResponses,
		ResponseCount:  count,
		MinRequired:    cfg.MinResponses,
		Missing:        missing,
		Mode:           cfg.Mode,
	}, nil
}
