// Package generation defines the per-token event model emitted by the
// generation engine and the Source interface the scheduler reads from.
//
// The engine itself is an external collaborator; this package carries its
// boundary types plus a deterministic simulated source used by the demo
// binary and by tests.
package generation
