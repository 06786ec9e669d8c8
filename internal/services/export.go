package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"

	"github.com/frictionlens/frictionlens/internal/models"
)

// ExportFieldStatsCSV renders a field/layer statistics map as CSV, one row
// per field and one per layer. Only aggregates leave the system this way;
// raw responses stay behind the anonymity gate.
func ExportFieldStatsCSV(unitID, assessmentID string, stats FieldStatsMap) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"unit_id", "assessment_id", "field", "layer", "avg_score", "response_count", "std_dev", "spread"})
	for _, field := range models.AllFields() {
		fs, ok := stats[field]
		if !ok {
			continue
		}
		row := []string{
			unitID, assessmentID, string(field), "",
			formatFloat(fs.AvgScore), strconv.Itoa(fs.ResponseCount),
			formatFloat(fs.StdDev), string(fs.Spread),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
		for _, layer := range sortedLayerNames(fs.Layers) {
			ls := fs.Layers[layer]
			row := []string{
				unitID, assessmentID, string(field), layer,
				formatFloat(ls.AvgScore), strconv.Itoa(ls.ResponseCount), "", "",
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func sortedLayerNames(layers map[string]*LayerStats) []string {
	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
