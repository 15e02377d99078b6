// Package telemetry implements the connection registry, the concurrent
// broadcaster, and the heartbeat monitor.
//
// The registry's membership map is the only structure mutated by more than
// one task; all mutations go through a single mutex, and a broadcast
// iterates a copied snapshot so membership changes mid-broadcast cannot
// corrupt delivery. A send failure removes only the failing connection.
package telemetry
