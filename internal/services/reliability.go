package services

import (
	"fmt"
	"sort"

	"github.com/frictionlens/frictionlens/internal/models"
)

// FieldReliability reports the internal consistency of one field's items.
// N is the number of complete respondent rows the estimate is based on.
type FieldReliability struct {
	Alpha float64 `json:"alpha"`
	N     int     `json:"n"`
}

// FieldReliabilityMap computes Cronbach's alpha per friction field over the
// scope's adjusted scores. Respondents missing any of a field's items are
// excluded from that field's matrix.
func (s *StatsService) FieldReliabilityMap(unitID, assessmentID string, rt models.RespondentType, includeChildren bool) (map[models.Field]FieldReliability, error) {
	unitIDs, err := s.resolveUnitSet(unitID, includeChildren)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListScoredResponses(unitIDs, assessmentID, rt)
	if err != nil {
		return nil, fmt.Errorf("list scored responses: %w", err)
	}

	out := map[models.Field]FieldReliability{}
	for _, field := range models.AllFields() {
		matrix, n := buildFieldMatrix(rows, field, s.cfg)
		out[field] = FieldReliability{Alpha: cronbachAlpha(matrix), N: n}
	}
	return out, nil
}

// buildFieldMatrix shapes one field's responses as [nRespondents][nItems]
// adjusted scores, keeping only complete cases.
func buildFieldMatrix(rows []*models.ScoredResponse, field models.Field, cfg EngineConfig) ([][]float64, int) {
	byRespondent := map[string]map[string]float64{}
	questionSet := map[string]struct{}{}
	for _, row := range rows {
		if row.Field != field {
			continue
		}
		if byRespondent[row.RespondentID] == nil {
			byRespondent[row.RespondentID] = map[string]float64{}
		}
		byRespondent[row.RespondentID][row.QuestionID] = AdjustScore(row.Score, row.ReverseScored, cfg.ScaleMin, cfg.ScaleMax)
		questionSet[row.QuestionID] = struct{}{}
	}

	questionIDs := make([]string, 0, len(questionSet))
	for id := range questionSet {
		questionIDs = append(questionIDs, id)
	}
	sort.Strings(questionIDs)

	matrix := make([][]float64, 0, len(byRespondent))
	for _, answers := range byRespondent {
		row := make([]float64, 0, len(questionIDs))
		complete := true
		for _, id := range questionIDs {
			v, ok := answers[id]
			if !ok {
				complete = false
				break
			}
			row = append(row, v)
		}
		if complete {
			matrix = append(matrix, row)
		}
	}
	return matrix, len(matrix)
}

// cronbachAlpha computes Cronbach's alpha for a [nRespondents][nItems]
// matrix using population variance throughout, so perfectly correlated
// items yield 1.0. Degenerate inputs yield 0.
func cronbachAlpha(matrix [][]float64) float64 {
	n := len(matrix)
	if n == 0 {
		return 0
	}
	k := len(matrix[0])
	if k < 2 {
		return 0
	}

	itemMeans := make([]float64, k)
	totals := make([]float64, n)
	for i, row := range matrix {
		if len(row) != k {
			return 0
		}
		for j, v := range row {
			itemMeans[j] += v
			totals[i] += v
		}
	}
	for j := range itemMeans {
		itemMeans[j] /= float64(n)
	}

	var sumItemVars float64
	for j := 0; j < k; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			d := matrix[i][j] - itemMeans[j]
			sum += d * d
		}
		sumItemVars += sum / float64(n)
	}

	totalVar := func() float64 {
		m := mean(totals)
		var sum float64
		for _, t := range totals {
			d := t - m
			sum += d * d
		}
		return sum / float64(n)
	}()
	if totalVar == 0 {
		return 0
	}

	kf := float64(k)
	alpha := (kf / (kf - 1.0)) * (1.0 - (sumItemVars / totalVar))
	if alpha < 0 {
		return 0
	}
	if alpha > 1 {
		return 1
	}
	return alpha
}
