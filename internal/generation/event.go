package generation

import "time"

// Event is one emitted token from the generation engine. Events are
// immutable once created; one exists per emitted token.
type Event struct {
	Token     string        `json:"token"`
	Timestamp time.Time     `json:"timestamp"`
	Delay     time.Duration `json:"delay"` // inter-token delay
	ModelID   string        `json:"modelId"`
	SessionID string        `json:"sessionId"`
	Final     bool          `json:"final"` // last token of the generation

	// Confidence holds log-probabilities over candidate tokens for this
	// position. Optional; nil when the engine does not report them.
	Confidence []float64 `json:"confidence,omitempty"`
}

// Source provides generation events with events-since-last-tick semantics.
// EventsSince returns every event emitted strictly after the given instant,
// oldest first. An empty result is a valid steady state.
type Source interface {
	EventsSince(since time.Time) []Event
}
