package services

import (
	"math"

	"github.com/frictionlens/frictionlens/internal/models"
)

// GapSeverity ranks the employee vs. leader-assessment perception gap.
type GapSeverity string

const (
	GapNone     GapSeverity = "none"
	GapModerate GapSeverity = "moderate"
	GapCritical GapSeverity = "critical"
)

// FieldComparison holds the three role averages for one field together with
// the perception-gap verdict. LeaderBlocked signals that the leader's own
// friction may prevent them from helping the team, independent of the gap.
type FieldComparison struct {
	Employee        float64     `json:"employee"`
	LeaderAssess    float64     `json:"leader_assess"`
	LeaderSelf      float64     `json:"leader_self"`
	Gap             float64     `json:"gap"`
	GapSeverity     GapSeverity `json:"gap_severity"`
	HasMisalignment bool        `json:"has_misalignment"`
	LeaderBlocked   bool        `json:"leader_blocked"`
}

type FieldComparisonMap map[models.Field]*FieldComparison

// RespondentComparison aggregates the same scope once per respondent role
// and derives the per-field inter-role gaps.
func (s *StatsService) RespondentComparison(unitID, assessmentID string, includeChildren bool) (FieldComparisonMap, error) {
	key := CacheKey("comparison", assessmentID, unitID, boolKey(includeChildren))
	if v, ok := s.cache.Get(key); ok {
		if m, ok := v.(FieldComparisonMap); ok {
			return m, nil
		}
	}

	employee, err := s.FieldLayerStats(unitID, assessmentID, models.RespondentEmployee, includeChildren)
	if err != nil {
		return nil, err
	}
	leaderAssess, err := s.FieldLayerStats(unitID, assessmentID, models.RespondentLeaderAssess, includeChildren)
	if err != nil {
		return nil, err
	}
	leaderSelf, err := s.FieldLayerStats(unitID, assessmentID, models.RespondentLeaderSelf, includeChildren)
	if err != nil {
		return nil, err
	}

	out := FieldComparisonMap{}
	for _, field := range models.AllFields() {
		emp := employee[field]
		la := leaderAssess[field]
		ls := leaderSelf[field]

		cmp := &FieldComparison{
			Employee:     emp.AvgScore,
			LeaderAssess: la.AvgScore,
			LeaderSelf:   ls.AvgScore,
		}
		// A gap is only meaningful when both sides actually answered.
		if emp.ResponseCount > 0 && la.ResponseCount > 0 {
			cmp.Gap = math.Abs(emp.AvgScore - la.AvgScore)
			cmp.GapSeverity = s.classifyGap(cmp.Gap)
			cmp.HasMisalignment = cmp.GapSeverity != GapNone
		} else {
			cmp.GapSeverity = GapNone
		}
		if emp.ResponseCount > 0 && ls.ResponseCount > 0 {
			cmp.LeaderBlocked = emp.AvgScore < s.cfg.LeaderBlockedBelow &&
				ls.AvgScore < s.cfg.LeaderBlockedBelow
		}
		out[field] = cmp
	}

	s.cache.Set(key, out)
	return out, nil
}

func (s *StatsService) classifyGap(gap float64) GapSeverity {
	switch {
	case gap >= s.cfg.GapCritical:
		return GapCritical
	case gap >= s.cfg.GapModerate:
		return GapModerate
	default:
		return GapNone
	}
}
