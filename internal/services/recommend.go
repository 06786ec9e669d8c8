package services

import (
	"sort"

	"github.com/frictionlens/frictionlens/internal/models"
)

// ActionCategory is the higher-order bucket of the team-effectiveness
// framework a friction field maps onto.
type ActionCategory string

const (
	CategoryDirection    ActionCategory = "direction"
	CategoryCoordination ActionCategory = "coordination"
	CategoryCommitment   ActionCategory = "commitment"
)

// fieldCategories maps each friction field onto its framework category:
// unclear meaning is a direction problem, missing capability and process
// hassle are coordination problems, missing safety is a commitment problem.
var fieldCategories = map[models.Field]ActionCategory{
	models.FieldMeaning:    CategoryDirection,
	models.FieldCapability: CategoryCoordination,
	models.FieldHassle:     CategoryCoordination,
	models.FieldSafety:     CategoryCommitment,
}

// fieldReferences names the framework chapter behind each field's actions.
var fieldReferences = map[models.Field]string{
	models.FieldMeaning:    "team-effectiveness/direction",
	models.FieldCapability: "team-effectiveness/coordination",
	models.FieldHassle:     "team-effectiveness/coordination",
	models.FieldSafety:     "team-effectiveness/commitment",
}

// actionCatalog holds the concrete interventions per field and severity.
var actionCatalog = map[models.Field]map[Severity][]string{
	models.FieldMeaning: {
		SeverityHigh: {
			"Run a team session connecting everyday tasks to customer outcomes",
			"Have each member name the part of their work they find pointless, then cut or reassign it",
		},
		SeverityMedium: {
			"Review goals with the team and rewrite the ones nobody can explain",
		},
		SeverityLow: {
			"Keep sharing customer feedback in team meetings",
		},
	},
	models.FieldSafety: {
		SeverityHigh: {
			"Introduce blameless reviews for the next three incidents or mistakes",
			"Leader opens the next retro by naming one of their own errors",
		},
		SeverityMedium: {
			"Add an anonymous question round to team meetings",
		},
		SeverityLow: {
			"Keep acknowledging dissent explicitly when decisions close",
		},
	},
	models.FieldCapability: {
		SeverityHigh: {
			"Map the skills the quarter's goals require against the team and close the top gap",
			"Pair each struggling member with a peer mentor for four weeks",
		},
		SeverityMedium: {
			"Budget explicit learning time in the next sprint plan",
		},
		SeverityLow: {
			"Keep rotating stretch assignments",
		},
	},
	models.FieldHassle: {
		SeverityHigh: {
			"List the three most time-consuming recurring chores and eliminate or automate one",
			"Cancel every recurring meeting without a decision log for two weeks and see what breaks",
		},
		SeverityMedium: {
			"Audit approval chains touching the team and remove one sign-off",
		},
		SeverityLow: {
			"Keep the process backlog visible and revisit it quarterly",
		},
	},
}

const alignmentAction = "Discuss the perception gap openly: leadership and team score this field very differently"

// Recommendation is one ranked, actionable intervention record.
type Recommendation struct {
	Field     models.Field   `json:"field"`
	Category  ActionCategory `json:"category"`
	Severity  Severity       `json:"severity"`
	Score     float64        `json:"score"`
	Actions   []string       `json:"actions"`
	Reference string         `json:"reference"`
}

// Recommendations maps each field present in stats onto its framework
// category and actions, ranked worst first: high severity before medium
// before low, and within equal severity the lowest score first. The
// comparison map is advisory; a misaligned field gets an extra alignment
// action but is never reordered by it.
func (c EngineConfig) Recommendations(stats FieldStatsMap, comparison FieldComparisonMap) []*Recommendation {
	fieldOrder := map[models.Field]int{}
	for i, f := range models.AllFields() {
		fieldOrder[f] = i
	}

	out := make([]*Recommendation, 0, len(stats))
	for _, field := range models.AllFields() {
		fs, ok := stats[field]
		if !ok || fs.ResponseCount == 0 {
			continue
		}
		severity := c.ClassifySeverity(fs.AvgScore)
		actions := append([]string(nil), actionCatalog[field][severity]...)
		if cmp := comparison[field]; cmp != nil && cmp.HasMisalignment {
			actions = append(actions, alignmentAction)
		}
		out = append(out, &Recommendation{
			Field:     field,
			Category:  fieldCategories[field],
			Severity:  severity,
			Score:     fs.AvgScore,
			Actions:   actions,
			Reference: fieldReferences[field],
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := severityRank(out[i].Severity), severityRank(out[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return fieldOrder[out[i].Field] < fieldOrder[out[j].Field]
	})
	return out
}

// StartHere picks the single highest-priority record. Severity-low records
// mean no action is needed, so a list of only those yields nil.
func StartHere(recs []*Recommendation) *Recommendation {
	for _, r := range recs {
		if r.Severity != SeverityLow {
			return r
		}
	}
	return nil
}
