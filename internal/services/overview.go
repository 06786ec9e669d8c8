package services

import "github.com/frictionlens/frictionlens/internal/models"

// UnitOverview is the composite the dashboard renders for one unit: the
// anonymity verdict first, and only when disclosure is allowed the layered
// statistics, role comparison, substitution advisory and ranked actions.
type UnitOverview struct {
	Anonymity       *AnonymityCheck                    `json:"anonymity"`
	FieldStats      FieldStatsMap                      `json:"field_stats,omitempty"`
	Comparison      FieldComparisonMap                 `json:"comparison,omitempty"`
	Substitution    *SubstitutionSummary               `json:"substitution,omitempty"`
	Reliability     map[models.Field]FieldReliability  `json:"reliability,omitempty"`
	Recommendations []*Recommendation                  `json:"recommendations,omitempty"`
	StartHere       *Recommendation                    `json:"start_here,omitempty"`
}

// OverviewService sequences the engine components for one dashboard
// request: gate, aggregate, compare, detect, recommend.
type OverviewService struct {
	stats *StatsService
	anon  *AnonymityService
}

func NewOverviewService(stats *StatsService, anon *AnonymityService) *OverviewService {
	return &OverviewService{stats: stats, anon: anon}
}

// UnitOverview assembles the full result set for a unit, or only the
// anonymity state with the exact missing count when the gate is closed.
// Substitution and gap findings are advisory annotations, never blocking.
func (s *OverviewService) UnitOverview(unitID, assessmentID string, includeChildren bool) (*UnitOverview, error) {
	gate, err := s.anon.Check(unitID, assessmentID)
	if err != nil {
		return nil, err
	}
	out := &UnitOverview{Anonymity: gate}
	if !gate.CanShowResults {
		return out, nil
	}

	stats, err := s.stats.FieldLayerStats(unitID, assessmentID, models.RespondentEmployee, includeChildren)
	if err != nil {
		return nil, err
	}
	comparison, err := s.stats.RespondentComparison(unitID, assessmentID, includeChildren)
	if err != nil {
		return nil, err
	}
	substitution, err := s.stats.SubstitutionSummary(unitID, assessmentID, models.RespondentEmployee)
	if err != nil {
		return nil, err
	}
	reliability, err := s.stats.FieldReliabilityMap(unitID, assessmentID, models.RespondentEmployee, includeChildren)
	if err != nil {
		return nil, err
	}

	recs := s.stats.Config().Recommendations(stats, comparison)
	out.FieldStats = stats
	out.Comparison = comparison
	out.Substitution = substitution
	out.Reliability = reliability
	out.Recommendations = recs
	out.StartHere = StartHere(recs)
	return out, nil
}
