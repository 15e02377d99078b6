package energy

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pulse-control/ptc/internal/config"
	"github.com/pulse-control/ptc/internal/generation"
)

// NeutralCertainty is reported when an event carries no confidence vector.
// Missing optional data degrades gracefully; it is never an error.
const NeutralCertainty = 0.5

// ErrBadWeights is returned when the weight triple does not sum to 1.0.
var ErrBadWeights = errors.New("energy weights must sum to 1.0")

// Sample is one bounded energy measurement with its sub-metric breakdown.
// Values are all in [0, 1].
type Sample struct {
	Value     float64 `json:"value"`
	Cadence   float64 `json:"cadence"`
	Certainty float64 `json:"certainty"`
	Stall     float64 `json:"stall"` // 1 - stallFlag: 0 when the token stalled
	Smoothed  float64 `json:"smoothed"`
}

// state is the per-session mapper state: the EMA, whether it exists yet,
// and the last raw sample.
type state struct {
	ema     float64
	hasEMA  bool
	lastRaw float64
}

// Mapper computes energy samples and folds them into per-session EMAs.
type Mapper struct {
	mu     sync.Mutex
	states map[string]*state

	weights       config.Weights
	alpha         float64
	expectedDelay time.Duration
	stallCutoff   time.Duration
}

// NewMapper builds a Mapper from configuration. The weight triple and alpha
// are fixed at construction; invalid values are configuration errors.
func NewMapper(cfg *config.Config) (*Mapper, error) {
	w := cfg.Weights
	if math.Abs(w.Cadence+w.Certainty+w.Stall-1.0) > 1e-9 {
		return nil, fmt.Errorf("%w: got cadence=%v certainty=%v stall=%v",
			ErrBadWeights, w.Cadence, w.Certainty, w.Stall)
	}
	if cfg.SmoothingAlpha <= 0 || cfg.SmoothingAlpha > 1 {
		return nil, fmt.Errorf("smoothing alpha must be in (0, 1], got %v", cfg.SmoothingAlpha)
	}
	if cfg.ExpectedTokenDelay <= 0 {
		return nil, fmt.Errorf("expected token delay must be positive, got %v", cfg.ExpectedTokenDelay)
	}

	return &Mapper{
		states:        make(map[string]*state),
		weights:       w,
		alpha:         cfg.SmoothingAlpha,
		expectedDelay: cfg.ExpectedTokenDelay,
		stallCutoff:   time.Duration(cfg.StallMultiplier * float64(cfg.ExpectedTokenDelay)),
	}, nil
}

// ComputeEnergy maps one generation event to a bounded sample and folds it
// into the session's EMA.
func (m *Mapper) ComputeEnergy(ev generation.Event) Sample {
	cadence := m.cadenceScore(ev.Delay)
	certainty := certaintyScore(ev.Confidence)

	stallTerm := 1.0
	if ev.Delay > m.stallCutoff {
		stallTerm = 0.0
	}

	raw := m.weights.Cadence*cadence + m.weights.Certainty*certainty + m.weights.Stall*stallTerm
	raw = clamp01(raw)

	m.mu.Lock()
	st, ok := m.states[ev.SessionID]
	if !ok {
		st = &state{}
		m.states[ev.SessionID] = st
	}
	st.lastRaw = raw
	if st.hasEMA {
		st.ema = m.alpha*raw + (1-m.alpha)*st.ema
	} else {
		st.ema = raw
		st.hasEMA = true
	}
	smoothed := st.ema
	m.mu.Unlock()

	return Sample{
		Value:     raw,
		Cadence:   cadence,
		Certainty: certainty,
		Stall:     stallTerm,
		Smoothed:  smoothed,
	}
}

// Weights returns the weight triple fixed at construction.
func (m *Mapper) Weights() config.Weights {
	return m.weights
}

// SmoothedEnergy returns the current EMA for a session, the last raw sample
// before any EMA exists, or 0 for an unknown session.
func (m *Mapper) SmoothedEnergy(sessionID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[sessionID]
	if !ok {
		return 0
	}
	if st.hasEMA {
		return st.ema
	}
	return st.lastRaw
}

// Reset drops the state for a session, for use when a stream ends.
func (m *Mapper) Reset(sessionID string) {
	m.mu.Lock()
	delete(m.states, sessionID)
	m.mu.Unlock()
}

// cadenceScore maps inter-token delay to (0, 1]: zero delay scores 1 and
// the score decays monotonically as delay grows past the expected baseline.
func (m *Mapper) cadenceScore(delay time.Duration) float64 {
	if delay < 0 {
		delay = 0
	}
	expected := float64(m.expectedDelay)
	return expected / (expected + float64(delay))
}

// certaintyScore derives certainty from a log-probability vector: the
// softmax probability of the highest-scoring candidate. Absent vectors get
// the neutral value.
func certaintyScore(confidence []float64) float64 {
	if len(confidence) == 0 {
		return NeutralCertainty
	}

	maxLP := confidence[0]
	for _, lp := range confidence[1:] {
		if lp > maxLP {
			maxLP = lp
		}
	}

	var sum float64
	for _, lp := range confidence {
		sum += math.Exp(lp - maxLP)
	}

	return clamp01(1.0 / sum)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
