// Package api exposes the HTTP surface: health, the websocket
// telemetry endpoint, frame timing stats, session CRUD, and reward
// account queries. Handlers depend on narrow ports rather than on
// concrete subsystems.
package api
