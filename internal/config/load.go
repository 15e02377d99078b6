package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load merges Baseline() defaults, an optional YAML config file, and PTC_*
// environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Baseline()

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyFile overlays values from a YAML file onto cfg. Fields absent from
// the file keep their current values.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// applyEnvOverrides applies PTC_* environment variables to the config.
// Unparseable values are ignored in favor of the existing setting.
func applyEnvOverrides(cfg *Config) {
	cfg.FrameRate = GetEnvFloat("PTC_FRAME_RATE", cfg.FrameRate)
	cfg.MetricsWindow = GetEnvInt("PTC_METRICS_WINDOW", cfg.MetricsWindow)
	cfg.SendTimeout = GetEnvDuration("PTC_SEND_TIMEOUT", cfg.SendTimeout)

	cfg.SmoothingAlpha = GetEnvFloat("PTC_SMOOTHING_ALPHA", cfg.SmoothingAlpha)
	cfg.Weights.Cadence = GetEnvFloat("PTC_WEIGHT_CADENCE", cfg.Weights.Cadence)
	cfg.Weights.Certainty = GetEnvFloat("PTC_WEIGHT_CERTAINTY", cfg.Weights.Certainty)
	cfg.Weights.Stall = GetEnvFloat("PTC_WEIGHT_STALL", cfg.Weights.Stall)
	cfg.ExpectedTokenDelay = GetEnvDuration("PTC_EXPECTED_TOKEN_DELAY", cfg.ExpectedTokenDelay)
	cfg.StallMultiplier = GetEnvFloat("PTC_STALL_MULTIPLIER", cfg.StallMultiplier)

	cfg.HeartbeatInterval = GetEnvDuration("PTC_HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)

	cfg.EnergyRate = GetEnvFloat("PTC_ENERGY_RATE", cfg.EnergyRate)

	cfg.Model = GetEnvVar("PTC_MODEL", cfg.Model)
	cfg.Tier = GetEnvVar("PTC_TIER", cfg.Tier)

	cfg.LogDir = GetEnvVar("PTC_LOG_DIR", cfg.LogDir)
	cfg.DataDir = GetEnvVar("PTC_DATA_DIR", cfg.DataDir)
}

// GetEnvVar returns the value of an environment variable with a default.
func GetEnvVar(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDuration returns the value of an environment variable as a duration with a default.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvFloat returns the value of an environment variable as a float64 with a default.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// GetEnvInt returns the value of an environment variable as an int with a default.
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
