package evolution

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls pipeline thresholds and bounds. Durations are expressed
// in seconds/hours so the config round-trips through YAML without custom
// marshaling.
type Config struct {
	// Cycle control
	MaxCandidates       int `yaml:"max_candidates" json:"max_candidates"`
	CycleTimeoutSeconds int `yaml:"cycle_timeout_seconds" json:"cycle_timeout_seconds"`
	StoreTimeoutSeconds int `yaml:"store_timeout_seconds" json:"store_timeout_seconds"`
	VerifyTimeoutSeconds int `yaml:"verify_timeout_seconds" json:"verify_timeout_seconds"`

	// Sanity gate
	MinSanityLevel        float64 `yaml:"min_sanity_level" json:"min_sanity_level"`
	InterventionErrorRate float64 `yaml:"intervention_error_rate" json:"intervention_error_rate"`

	// Safety
	QuarantineRiskThreshold float64 `yaml:"quarantine_risk_threshold" json:"quarantine_risk_threshold"`
	QuarantineBaseHours     int     `yaml:"quarantine_base_hours" json:"quarantine_base_hours"`
	MinValidationScore      float64 `yaml:"min_validation_score" json:"min_validation_score"`

	// Fallback high-water marks
	MemoryHighWater float64 `yaml:"memory_high_water" json:"memory_high_water"`
	CPUHighWater    float64 `yaml:"cpu_high_water" json:"cpu_high_water"`

	// Feedback weights
	WeightIncrement float64 `yaml:"weight_increment" json:"weight_increment"`
	WeightDecrement float64 `yaml:"weight_decrement" json:"weight_decrement"`
	WeightMin       float64 `yaml:"weight_min" json:"weight_min"`
	WeightMax       float64 `yaml:"weight_max" json:"weight_max"`

	// Anomaly surveillance
	BaselineAlpha        float64 `yaml:"baseline_alpha" json:"baseline_alpha"`                 // EMA weight of the new observation
	RepetitionMultiplier float64 `yaml:"repetition_multiplier" json:"repetition_multiplier"`

	// Bounded state
	MaxFeedbackEntries int `yaml:"max_feedback_entries" json:"max_feedback_entries"`
	MaxAnomalyLog      int `yaml:"max_anomaly_log" json:"max_anomaly_log"`
	MaxHistory         int `yaml:"max_history" json:"max_history"`
	NoveltyWindow      int `yaml:"novelty_window" json:"novelty_window"`
	RecentCycleWindow  int `yaml:"recent_cycle_window" json:"recent_cycle_window"`

	// Store backend selection (used by the CLI, not the pipeline itself)
	Store StoreConfig `yaml:"store" json:"store"`
}

// StoreConfig selects and configures the shared persistent store backend.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite", "postgres".
	Backend string `yaml:"backend" json:"backend"`
	// Path is the SQLite database file (sqlite backend).
	Path string `yaml:"path" json:"path"`
	// DSN is the Postgres connection string (postgres backend).
	DSN string `yaml:"dsn" json:"dsn"`
}

// DefaultConfig returns the safe production defaults.
func DefaultConfig() Config {
	return Config{
		MaxCandidates:        10,
		CycleTimeoutSeconds:  30,
		StoreTimeoutSeconds:  2,
		VerifyTimeoutSeconds: 2,

		MinSanityLevel:        0.6,
		InterventionErrorRate: 0.25,

		QuarantineRiskThreshold: 0.8,
		QuarantineBaseHours:     24,
		MinValidationScore:      0.2,

		MemoryHighWater: 0.85,
		CPUHighWater:    0.90,

		WeightIncrement: 0.2,
		WeightDecrement: 0.2,
		WeightMin:       0.1,
		WeightMax:       5.0,

		BaselineAlpha:        0.3,
		RepetitionMultiplier: 2.5,

		MaxFeedbackEntries: 500,
		MaxAnomalyLog:      1000,
		MaxHistory:         1000,
		NoveltyWindow:      20,
		RecentCycleWindow:  20,

		Store: StoreConfig{Backend: "memory"},
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that would break pipeline invariants.
func (c Config) Validate() error {
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max_candidates must be positive, got %d", c.MaxCandidates)
	}
	if c.CycleTimeoutSeconds <= 0 {
		return fmt.Errorf("cycle_timeout_seconds must be positive, got %d", c.CycleTimeoutSeconds)
	}
	if c.MinSanityLevel < 0 || c.MinSanityLevel > 1 {
		return fmt.Errorf("min_sanity_level must be in [0,1], got %f", c.MinSanityLevel)
	}
	if c.WeightMin <= 0 || c.WeightMax < c.WeightMin {
		return fmt.Errorf("weight bounds invalid: [%f, %f]", c.WeightMin, c.WeightMax)
	}
	if c.BaselineAlpha <= 0 || c.BaselineAlpha > 1 {
		return fmt.Errorf("baseline_alpha must be in (0,1], got %f", c.BaselineAlpha)
	}
	switch c.Store.Backend {
	case "", "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

func (c Config) cycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutSeconds) * time.Second
}

func (c Config) storeTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

func (c Config) verifyTimeout() time.Duration {
	return time.Duration(c.VerifyTimeoutSeconds) * time.Second
}

func (c Config) quarantineBase() time.Duration {
	return time.Duration(c.QuarantineBaseHours) * time.Hour
}
