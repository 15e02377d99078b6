// Package energy converts raw generation events into a bounded, smoothed
// scalar signal and computes the cross-stream diversity index for
// ensembles.
//
// The mapper keeps one exponential-moving-average state per session and
// never mixes samples across unrelated sessions. All sub-metrics and the
// combined value are clamped to [0, 1].
package energy
