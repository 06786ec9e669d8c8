package services

import (
	"fmt"

	"github.com/frictionlens/frictionlens/internal/models"
)

// ItemRole places a question in the substitution heuristic. The registry is
// fixed by field/layer: the time-adequacy item and the mechanical process
// items live in the HASSLE field, the experiential satisfaction items are
// the MEANING field.
type ItemRole string

const (
	RoleTime         ItemRole = "time"
	RoleMechanical   ItemRole = "mechanical"
	RoleSatisfaction ItemRole = "satisfaction"
	RoleNone         ItemRole = ""
)

// Substitution registry layer names inside the HASSLE field.
const (
	LayerTime    = "time"
	LayerProcess = "process"
)

// RoleForItem resolves a question's role in the substitution detector.
func RoleForItem(field models.Field, layer string) ItemRole {
	switch {
	case field == models.FieldHassle && layer == LayerTime:
		return RoleTime
	case field == models.FieldHassle && layer == LayerProcess:
		return RoleMechanical
	case field == models.FieldMeaning:
		return RoleSatisfaction
	default:
		return RoleNone
	}
}

// SubstitutionSummary aggregates the affect-substitution heuristic over all
// respondents in scope. Respondents under dissatisfaction often report "I
// lack time" as a socially acceptable proxy for being unhappy; the detector
// separates reported time scarcity from measured process friction and
// checks whether an underlying dissatisfaction signal is present.
type SubstitutionSummary struct {
	ResponseCount int     `json:"response_count"`
	FlaggedCount  int     `json:"flagged_count"`
	FlaggedPct    float64 `json:"flagged_pct"`
	AvgTimeBias   float64 `json:"avg_time_bias"`
	Flagged       bool    `json:"flagged"`
}

type respondentItems struct {
	time         []float64
	mechanical   []float64
	satisfaction []float64
}

// SubstitutionSummary runs the detector over the unit's whole subtree for
// one assessment and respondent type.
func (s *StatsService) SubstitutionSummary(unitID, assessmentID string, rt models.RespondentType) (*SubstitutionSummary, error) {
	key := CacheKey("substitution", assessmentID, unitID, string(rt))
	if v, ok := s.cache.Get(key); ok {
		if sum, ok := v.(*SubstitutionSummary); ok {
			return sum, nil
		}
	}

	unitIDs, err := s.resolveUnitSet(unitID, true)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListScoredResponses(unitIDs, assessmentID, rt)
	if err != nil {
		return nil, fmt.Errorf("list scored responses: %w", err)
	}

	byRespondent := map[string]*respondentItems{}
	order := []string{}
	for _, row := range rows {
		role := RoleForItem(row.Field, row.Layer)
		if role == RoleNone {
			continue
		}
		items := byRespondent[row.RespondentID]
		if items == nil {
			items = &respondentItems{}
			byRespondent[row.RespondentID] = items
			order = append(order, row.RespondentID)
		}
		// Construct scores are problem-oriented: high means "more scarcity",
		// "more friction", "more dissatisfaction". Aggregation scores run the
		// other way, so the reverse flag is inverted here.
		intensity := AdjustScore(row.Score, !row.ReverseScored, s.cfg.ScaleMin, s.cfg.ScaleMax)
		switch role {
		case RoleTime:
			items.time = append(items.time, intensity)
		case RoleMechanical:
			items.mechanical = append(items.mechanical, intensity)
		case RoleSatisfaction:
			items.satisfaction = append(items.satisfaction, intensity)
		}
	}

	sum := &SubstitutionSummary{}
	var biasTotal float64
	for _, id := range order {
		items := byRespondent[id]
		if len(items.time) == 0 || len(items.mechanical) == 0 || len(items.satisfaction) == 0 {
			continue
		}
		timeScarcity := mean(items.time)
		processFriction := mean(items.mechanical)
		timeBias := timeScarcity - processFriction
		underlying := maxOf(items.satisfaction)

		sum.ResponseCount++
		biasTotal += timeBias
		if timeBias >= s.cfg.TimeBiasMin && underlying >= s.cfg.UnderlyingMin {
			sum.FlaggedCount++
		}
	}
	if sum.ResponseCount > 0 {
		sum.FlaggedPct = float64(sum.FlaggedCount) / float64(sum.ResponseCount)
		sum.AvgTimeBias = biasTotal / float64(sum.ResponseCount)
	}
	sum.Flagged = sum.FlaggedCount > 0 && sum.FlaggedPct >= s.cfg.FlaggedShare

	s.cache.Set(key, sum)
	return sum, nil
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
