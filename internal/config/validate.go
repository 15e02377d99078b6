package config

import (
	"fmt"
	"math"
)

// weightSumTolerance bounds floating point drift when checking the weight sum.
const weightSumTolerance = 1e-9

// Validate enforces the startup validation rules. Violations are fatal
// configuration errors; nothing is silently corrected.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateFrame(cfg); err != nil {
		return fmt.Errorf("frame validation failed: %w", err)
	}

	if err := validateEnergy(cfg); err != nil {
		return fmt.Errorf("energy validation failed: %w", err)
	}

	if err := validateHeartbeat(cfg); err != nil {
		return fmt.Errorf("heartbeat validation failed: %w", err)
	}

	return nil
}

// validateFrame validates frame scheduling parameters.
func validateFrame(cfg *Config) error {
	if cfg.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %v", cfg.FrameRate)
	}
	if cfg.FrameRate > 1000 {
		return fmt.Errorf("frame rate %v exceeds 1000 Hz", cfg.FrameRate)
	}
	if cfg.MetricsWindow <= 0 {
		return fmt.Errorf("metrics window must be positive, got %d", cfg.MetricsWindow)
	}
	if cfg.SendTimeout <= 0 {
		return fmt.Errorf("send timeout must be positive, got %v", cfg.SendTimeout)
	}
	return nil
}

// validateEnergy validates energy mapping parameters.
func validateEnergy(cfg *Config) error {
	w := cfg.Weights
	if w.Cadence < 0 || w.Certainty < 0 || w.Stall < 0 {
		return fmt.Errorf("weights must be non-negative, got %+v", w)
	}

	sum := w.Cadence + w.Certainty + w.Stall
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %v (cadence=%v certainty=%v stall=%v)",
			sum, w.Cadence, w.Certainty, w.Stall)
	}

	if cfg.SmoothingAlpha <= 0 || cfg.SmoothingAlpha > 1 {
		return fmt.Errorf("smoothing alpha must be in (0, 1], got %v", cfg.SmoothingAlpha)
	}

	if cfg.ExpectedTokenDelay <= 0 {
		return fmt.Errorf("expected token delay must be positive, got %v", cfg.ExpectedTokenDelay)
	}

	if cfg.StallMultiplier <= 1.0 {
		return fmt.Errorf("stall multiplier must be > 1.0, got %v", cfg.StallMultiplier)
	}

	if cfg.EnergyRate < 0 {
		return fmt.Errorf("energy rate must be non-negative, got %v", cfg.EnergyRate)
	}

	return nil
}

// validateHeartbeat validates heartbeat timing parameters.
func validateHeartbeat(cfg *Config) error {
	if cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", cfg.HeartbeatInterval)
	}
	return nil
}
