package services

import (
	"testing"

	"github.com/frictionlens/frictionlens/internal/models"
)

func statsWith(scores map[models.Field]float64) FieldStatsMap {
	out := FieldStatsMap{}
	for f, sc := range scores {
		out[f] = &FieldStats{AvgScore: sc, ResponseCount: 5, Layers: map[string]*LayerStats{}}
	}
	return out
}

func TestRecommendationsRankWorstFirst(t *testing.T) {
	stats := statsWith(map[models.Field]float64{
		models.FieldMeaning:    2.0, // high severity
		models.FieldSafety:     3.0, // medium
		models.FieldCapability: 4.2, // low
		models.FieldHassle:     2.4, // high, but above MEANING
	})
	recs := DefaultEngineConfig().Recommendations(stats, nil)
	if len(recs) != 4 {
		t.Fatalf("got %d records", len(recs))
	}
	wantOrder := []models.Field{models.FieldMeaning, models.FieldHassle, models.FieldSafety, models.FieldCapability}
	for i, f := range wantOrder {
		if recs[i].Field != f {
			t.Fatalf("position %d: got %s, want %s", i, recs[i].Field, f)
		}
	}
	if recs[0].Severity != SeverityHigh || recs[0].Category != CategoryDirection {
		t.Fatalf("top record = %+v", recs[0])
	}
	if len(recs[0].Actions) == 0 || recs[0].Reference == "" {
		t.Fatalf("top record lacks actions or reference: %+v", recs[0])
	}

	start := StartHere(recs)
	if start == nil || start.Field != models.FieldMeaning {
		t.Fatalf("start here = %+v", start)
	}
}

func TestRecommendationsTieBreaksOnCanonicalOrder(t *testing.T) {
	// Equal severity and equal score: MEANING precedes SAFETY in field order.
	stats := statsWith(map[models.Field]float64{
		models.FieldSafety:  3.0,
		models.FieldMeaning: 3.0,
	})
	recs := DefaultEngineConfig().Recommendations(stats, nil)
	if len(recs) != 2 || recs[0].Field != models.FieldMeaning || recs[1].Field != models.FieldSafety {
		t.Fatalf("order = %v", recs)
	}
}

func TestRecommendationsHealthyTeamHasNoStart(t *testing.T) {
	stats := statsWith(map[models.Field]float64{
		models.FieldMeaning:    4.0,
		models.FieldSafety:     4.5,
		models.FieldCapability: 4.2,
		models.FieldHassle:     4.8,
	})
	recs := DefaultEngineConfig().Recommendations(stats, nil)
	if len(recs) != 4 {
		t.Fatalf("got %d records", len(recs))
	}
	for _, r := range recs {
		if r.Severity != SeverityLow {
			t.Fatalf("field %s severity = %s", r.Field, r.Severity)
		}
	}
	if start := StartHere(recs); start != nil {
		t.Fatalf("expected no start-here, got %s", start.Field)
	}
}

func TestRecommendationsSkipFieldsWithoutData(t *testing.T) {
	stats := statsWith(map[models.Field]float64{models.FieldHassle: 2.0})
	stats[models.FieldSafety] = &FieldStats{Layers: map[string]*LayerStats{}} // zero responses
	recs := DefaultEngineConfig().Recommendations(stats, nil)
	if len(recs) != 1 || recs[0].Field != models.FieldHassle {
		t.Fatalf("recs = %v", recs)
	}
}

func TestRecommendationsAppendAlignmentAction(t *testing.T) {
	stats := statsWith(map[models.Field]float64{models.FieldSafety: 2.0})
	cmp := FieldComparisonMap{
		models.FieldSafety: {HasMisalignment: true, Gap: 1.2, GapSeverity: GapCritical},
	}
	recs := DefaultEngineConfig().Recommendations(stats, cmp)
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	actions := recs[0].Actions
	if len(actions) == 0 || actions[len(actions)-1] != alignmentAction {
		t.Fatalf("alignment action missing: %v", actions)
	}

	// The misalignment alone must not change the ranking key.
	if recs[0].Severity != SeverityHigh {
		t.Fatalf("severity = %s", recs[0].Severity)
	}
}
