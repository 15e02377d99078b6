// Package scheduler drives the fixed-cadence frame loop: one energy
// computation and one broadcast per tick, with self-correcting sleep and
// overrun detection through the frame timer.
//
// The state machine is Stopped -> Running -> Stopped. Stopping is
// cooperative: the stop signal is honored at the next tick boundary, never
// mid-tick. An overrun tick is not skipped or doubled up; the schedule
// slips and self-corrects on the next tick.
package scheduler
