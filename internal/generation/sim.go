package generation

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// simVocabulary feeds the simulated token stream.
var simVocabulary = []string{
	"the", "pulse", "signal", "energy", "frame", "stream", "token",
	"beacon", "flux", "charge", "wave", "field", "core", "drift",
}

// SimSource is a deterministic simulated generation engine. It keeps a
// bounded buffer of recent events and satisfies Source. Run emits synthetic
// tokens at a configurable cadence; Emit injects events directly, which is
// what tests use.
type SimSource struct {
	mu     sync.RWMutex
	events []Event
	limit  int

	rng      *rand.Rand
	interval time.Duration
	modelID  string
	session  string
}

// NewSimSource creates a simulated source with a fixed seed so runs are
// reproducible.
func NewSimSource(modelID, sessionID string, interval time.Duration, seed int64) *SimSource {
	return &SimSource{
		limit:    4096,
		rng:      rand.New(rand.NewSource(seed)),
		interval: interval,
		modelID:  modelID,
		session:  sessionID,
	}
}

// Emit appends an event to the buffer.
func (s *SimSource) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
	if len(s.events) > s.limit {
		s.events = s.events[len(s.events)-s.limit:]
	}
}

// EventsSince returns events emitted strictly after the given instant.
func (s *SimSource) EventsSince(since time.Time) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, ev := range s.events {
		if ev.Timestamp.After(since) {
			out = append(out, ev)
		}
	}
	return out
}

// Run emits synthetic tokens until the context is cancelled. Delays jitter
// around the configured interval, with an occasional long stall so the
// energy signal has something to react to.
func (s *SimSource) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ev := s.synthesize(now, now.Sub(last))
			last = now
			s.Emit(ev)
		}
	}
}

// synthesize builds one pseudorandom token event.
func (s *SimSource) synthesize(now time.Time, delay time.Duration) Event {
	s.mu.Lock()
	token := simVocabulary[s.rng.Intn(len(simVocabulary))]

	// Peaked log-probability vector over five candidates.
	confidence := make([]float64, 5)
	confidence[0] = -0.1 - s.rng.Float64()*0.4
	for i := 1; i < len(confidence); i++ {
		confidence[i] = -2.0 - s.rng.Float64()*4.0
	}

	// Roughly one token in twenty stalls.
	if s.rng.Intn(20) == 0 {
		delay += 4 * s.interval
	}
	s.mu.Unlock()

	return Event{
		Token:      token,
		Timestamp:  now,
		Delay:      delay,
		ModelID:    s.modelID,
		SessionID:  s.session,
		Confidence: confidence,
	}
}
