package services

// Spread is the qualitative dispersion bucket for a field's scores.
type Spread string

const (
	SpreadLow    Spread = "low"
	SpreadMedium Spread = "medium"
	SpreadHigh   Spread = "high"
)

// Severity ranks how urgent a field's average is. High is worst.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Band is the traffic-light bucket for a 0-100 normalized score.
type Band string

const (
	BandGreen  Band = "green"
	BandYellow Band = "yellow"
	BandRed    Band = "red"
)

// ClassifySpread buckets a standard deviation. Boundaries are inclusive on
// the upper side: exactly SpreadLow is medium, exactly SpreadHigh is high.
func (c EngineConfig) ClassifySpread(stdDev float64) Spread {
	switch {
	case stdDev >= c.SpreadHigh:
		return SpreadHigh
	case stdDev >= c.SpreadLow:
		return SpreadMedium
	default:
		return SpreadLow
	}
}

// ClassifySeverity buckets an average adjusted score. Exactly SeverityHigh
// is still high (worst); exactly SeverityLow is low (best).
func (c EngineConfig) ClassifySeverity(avg float64) Severity {
	switch {
	case avg <= c.SeverityHigh:
		return SeverityHigh
	case avg >= c.SeverityLow:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// PercentScore converts an average adjusted score to 0-100.
func (c EngineConfig) PercentScore(avg float64) float64 {
	span := float64(c.ScaleMax - c.ScaleMin)
	if span <= 0 {
		return 0
	}
	return (avg - float64(c.ScaleMin)) / span * 100
}

// ClassifyPercent buckets an average adjusted score by its 0-100 percent
// value. Exactly PercentGreen is green, exactly PercentYellow is yellow.
func (c EngineConfig) ClassifyPercent(avg float64) Band {
	pct := c.PercentScore(avg)
	switch {
	case pct >= c.PercentGreen:
		return BandGreen
	case pct >= c.PercentYellow:
		return BandYellow
	default:
		return BandRed
	}
}

// severityRank orders severities for sorting; higher is more urgent.
func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
