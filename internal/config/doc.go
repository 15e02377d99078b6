// Package config loads and validates the Pulse Telemetry Container
// configuration: frame cadence, energy mapping weights, smoothing, and
// connection timing.
//
// Precedence: baseline defaults, then an optional YAML config file, then
// PTC_* environment variable overrides. Validation is fail-fast; a weight
// triple that does not sum to 1.0 or a non-positive frame rate aborts
// startup rather than being silently corrected.
package config
