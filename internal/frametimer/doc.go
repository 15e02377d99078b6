// Package frametimer implements the frame timing instrument and budget
// auditor used by the scheduler and exposed to callers for statistics.
//
// A Timer tracks one open frame at a time, keeps a fixed-capacity rolling
// window of completed frame durations, and reports mean/min/max/p95/p99
// (nearest-rank), overrun counts, and the longest run of consecutive
// overruns. It is deliberately independent of networking.
package frametimer
