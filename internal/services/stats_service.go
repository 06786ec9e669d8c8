package services

import (
	"fmt"
	"math"
	"sort"

	"github.com/frictionlens/frictionlens/internal/models"
)

// StatsStore is the read side of the response store the engine aggregates
// over. ListUnitSubtreeIDs returns the unit itself plus every transitive
// descendant; ListScoredResponses is one bulk fetch of raw answers joined
// with question scoring metadata.
type StatsStore interface {
	ListUnitSubtreeIDs(unitID string) ([]string, error)
	ListScoredResponses(unitIDs []string, assessmentID string, rt models.RespondentType) ([]*models.ScoredResponse, error)
}

// LayerStats is the aggregate for one sub-dimension within a field.
type LayerStats struct {
	AvgScore      float64 `json:"avg_score"`
	ResponseCount int     `json:"response_count"`
}

// FieldStats is the aggregate for one friction field. AvgScore is the
// unweighted mean of the layer averages; StdDev is computed over every
// individual adjusted score in the field, not over layer averages.
type FieldStats struct {
	AvgScore      float64                `json:"avg_score"`
	ResponseCount int                    `json:"response_count"`
	StdDev        float64                `json:"std_dev"`
	Spread        Spread                 `json:"spread"`
	Layers        map[string]*LayerStats `json:"layers"`
}

// FieldStatsMap always contains every friction field, zero-valued when no
// responses matched.
type FieldStatsMap map[models.Field]*FieldStats

// implicitLayer groups answers of questions that declare no layer.
const implicitLayer = "all"

// StatsService aggregates raw responses into per-field, per-layer statistics
// across an organizational subtree. A nil cache disables memoization.
type StatsService struct {
	store StatsStore
	cfg   EngineConfig
	cache *ResultCache
}

func NewStatsService(store StatsStore, cfg EngineConfig, cache *ResultCache) *StatsService {
	return &StatsService{store: store, cfg: cfg, cache: cache}
}

// Config exposes the thresholds the service classifies with.
func (s *StatsService) Config() EngineConfig { return s.cfg }

func boolKey(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// FieldLayerStats aggregates the assessment's responses for one respondent
// type over the unit, or the unit's whole subtree when includeChildren is
// set. Zero matching responses yield a fully shaped zero result.
func (s *StatsService) FieldLayerStats(unitID, assessmentID string, rt models.RespondentType, includeChildren bool) (FieldStatsMap, error) {
	key := CacheKey("fieldstats", assessmentID, unitID, string(rt), boolKey(includeChildren))
	if v, ok := s.cache.Get(key); ok {
		if m, ok := v.(FieldStatsMap); ok {
			return m, nil
		}
	}

	unitIDs, err := s.resolveUnitSet(unitID, includeChildren)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListScoredResponses(unitIDs, assessmentID, rt)
	if err != nil {
		return nil, fmt.Errorf("list scored responses: %w", err)
	}

	result := s.aggregate(rows)
	s.cache.Set(key, result)
	return result, nil
}

func (s *StatsService) resolveUnitSet(unitID string, includeChildren bool) ([]string, error) {
	if !includeChildren {
		return []string{unitID}, nil
	}
	ids, err := s.store.ListUnitSubtreeIDs(unitID)
	if err != nil {
		return nil, fmt.Errorf("list unit subtree: %w", err)
	}
	if len(ids) == 0 {
		ids = []string{unitID}
	}
	return ids, nil
}

func (s *StatsService) aggregate(rows []*models.ScoredResponse) FieldStatsMap {
	type fieldAccum struct {
		scores map[string][]float64 // layer -> adjusted scores
		all    []float64
	}
	accums := map[models.Field]*fieldAccum{}
	for _, row := range rows {
		acc := accums[row.Field]
		if acc == nil {
			acc = &fieldAccum{scores: map[string][]float64{}}
			accums[row.Field] = acc
		}
		layer := row.Layer
		if layer == "" {
			layer = implicitLayer
		}
		adjusted := AdjustScore(row.Score, row.ReverseScored, s.cfg.ScaleMin, s.cfg.ScaleMax)
		acc.scores[layer] = append(acc.scores[layer], adjusted)
		acc.all = append(acc.all, adjusted)
	}

	out := FieldStatsMap{}
	for _, field := range models.AllFields() {
		fs := &FieldStats{Layers: map[string]*LayerStats{}}
		if acc := accums[field]; acc != nil {
			layerNames := make([]string, 0, len(acc.scores))
			for name := range acc.scores {
				layerNames = append(layerNames, name)
			}
			sort.Strings(layerNames)
			var layerAvgSum float64
			for _, name := range layerNames {
				scores := acc.scores[name]
				avg := mean(scores)
				fs.Layers[name] = &LayerStats{AvgScore: avg, ResponseCount: len(scores)}
				fs.ResponseCount += len(scores)
				layerAvgSum += avg
			}
			// Each layer counts once regardless of its response volume.
			fs.AvgScore = layerAvgSum / float64(len(layerNames))
			fs.StdDev = stdDev(acc.all)
		}
		fs.Spread = s.cfg.ClassifySpread(fs.StdDev)
		out[field] = fs
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev is the population standard deviation, consistent with the
// population variance used by the reliability statistic.
func stdDev(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}
