package config

import "time"

// Config holds the complete runtime configuration.
type Config struct {
	// Frame scheduling
	FrameRate     float64       `yaml:"frameRate"`     // ticks per second
	MetricsWindow int           `yaml:"metricsWindow"` // rolling window of frame durations
	SendTimeout   time.Duration `yaml:"sendTimeout"`   // bounded wait per connection send

	// Energy mapping
	SmoothingAlpha     float64       `yaml:"smoothingAlpha"`
	Weights            Weights       `yaml:"weights"`
	ExpectedTokenDelay time.Duration `yaml:"expectedTokenDelay"`
	StallMultiplier    float64       `yaml:"stallMultiplier"`

	// Heartbeat
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`

	// Rewards
	EnergyRate float64 `yaml:"energyRate"` // rate factor for energy unit accrual

	// Identity / startup announcement
	Model        string   `yaml:"model"`
	Tier         string   `yaml:"tier"`
	Version      string   `yaml:"version"`
	Capabilities []string `yaml:"capabilities"`

	// Paths
	LogDir  string `yaml:"logDir"`
	DataDir string `yaml:"dataDir"`
}

// Weights is the energy sub-metric weight triple. The three weights must
// sum to 1.0; Validate rejects anything else.
type Weights struct {
	Cadence   float64 `yaml:"cadence"`
	Certainty float64 `yaml:"certainty"`
	Stall     float64 `yaml:"stall"`
}

// Baseline returns the default configuration: 60 Hz frame cadence, the
// 0.4/0.4/0.2 weight triple, alpha 0.1, and 1 Hz heartbeat.
func Baseline() *Config {
	return &Config{
		FrameRate:     60.0,
		MetricsWindow: 120,
		SendTimeout:   1 * time.Second,

		SmoothingAlpha:     0.1,
		Weights:            Weights{Cadence: 0.4, Certainty: 0.4, Stall: 0.2},
		ExpectedTokenDelay: 50 * time.Millisecond,
		StallMultiplier:    3.0,

		HeartbeatInterval: 1 * time.Second,

		EnergyRate: 0.5,

		Model:        "pulse-default",
		Tier:         "standard",
		Version:      "1.0.0",
		Capabilities: []string{"energy_update", "token_stream", "heartbeat"},

		LogDir:  "logs",
		DataDir: "data",
	}
}

// FrameBudget returns the per-tick duration budget derived from FrameRate.
func (c *Config) FrameBudget() time.Duration {
	return time.Duration(float64(time.Second) / c.FrameRate)
}
