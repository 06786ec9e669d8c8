package services

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig carries every threshold the analysis engine recognizes.
// Defaults match the calibrated production values; deployments may override
// single values through a YAML file (see LoadEngineConfig).
type EngineConfig struct {
	// Likert scale bounds.
	ScaleMin int `yaml:"scale_min"`
	ScaleMax int `yaml:"scale_max"`

	// Severity by average adjusted score: <= High is high, >= Low is low.
	SeverityHigh float64 `yaml:"severity_high"`
	SeverityLow  float64 `yaml:"severity_low"`

	// Spread by standard deviation: < Low is low, >= High is high.
	SpreadLow  float64 `yaml:"spread_low"`
	SpreadHigh float64 `yaml:"spread_high"`

	// Percent bands on the 0-100 normalized score.
	PercentGreen  float64 `yaml:"percent_green"`
	PercentYellow float64 `yaml:"percent_yellow"`

	// Employee vs. leader-assessment gap thresholds.
	GapModerate float64 `yaml:"gap_moderate"`
	GapCritical float64 `yaml:"gap_critical"`

	// Both employee and leader-self averages below this flag the leader as
	// blocked by their own friction.
	LeaderBlockedBelow float64 `yaml:"leader_blocked_below"`

	// Substitution detector: per-respondent flag thresholds.
	TimeBiasMin   float64 `yaml:"time_bias_min"`
	UnderlyingMin float64 `yaml:"underlying_min"`

	// FlaggedShare is the proportion of flagged respondents at which the
	// aggregate substitution summary itself is flagged. The exact rule is
	// under specification review; keep it a named constant, never inline.
	FlaggedShare float64 `yaml:"flagged_share"`

	// Anonymity gate fallback when an assessment carries no explicit value.
	DefaultMinResponses int `yaml:"default_min_responses"`

	// Result cache time-to-live.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// DefaultEngineConfig returns the documented default thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ScaleMin:            1,
		ScaleMax:            5,
		SeverityHigh:        2.5,
		SeverityLow:         3.5,
		SpreadLow:           0.5,
		SpreadHigh:          1.0,
		PercentGreen:        70,
		PercentYellow:       50,
		GapModerate:         0.6,
		GapCritical:         1.0,
		LeaderBlockedBelow:  3.5,
		TimeBiasMin:         0.6,
		UnderlyingMin:       3.5,
		FlaggedShare:        0.25,
		DefaultMinResponses: 5,
		CacheTTLSeconds:     300,
	}
}

// CacheTTL returns the configured cache TTL as a duration.
func (c EngineConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// LoadEngineConfig reads a YAML override file on top of the defaults. A
// missing path returns the defaults unchanged; a present but unreadable or
// malformed file is an error.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read engine config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse engine config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("engine config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the classifiers cannot work with.
func (c EngineConfig) Validate() error {
	if c.ScaleMax <= c.ScaleMin {
		return fmt.Errorf("scale_max (%d) must exceed scale_min (%d)", c.ScaleMax, c.ScaleMin)
	}
	if c.SeverityLow < c.SeverityHigh {
		return fmt.Errorf("severity_low (%v) must not be below severity_high (%v)", c.SeverityLow, c.SeverityHigh)
	}
	if c.SpreadHigh < c.SpreadLow {
		return fmt.Errorf("spread_high (%v) must not be below spread_low (%v)", c.SpreadHigh, c.SpreadLow)
	}
	if c.GapCritical < c.GapModerate {
		return fmt.Errorf("gap_critical (%v) must not be below gap_moderate (%v)", c.GapCritical, c.GapModerate)
	}
	if c.FlaggedShare < 0 || c.FlaggedShare > 1 {
		return fmt.Errorf("flagged_share (%v) must be within [0,1]", c.FlaggedShare)
	}
	if c.DefaultMinResponses < 1 {
		return fmt.Errorf("default_min_responses (%d) must be positive", c.DefaultMinResponses)
	}
	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("cache_ttl_seconds (%d) must not be negative", c.CacheTTLSeconds)
	}
	return nil
}
