package frametimer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultWindow is the rolling window capacity for frame statistics.
const DefaultWindow = 120

var (
	// ErrNoOpenFrame is returned by EndFrame when no frame is open.
	ErrNoOpenFrame = errors.New("no open frame")
	// ErrFrameOpen is returned by StartFrame when a frame is already open.
	ErrFrameOpen = errors.New("frame already open")
)

// Metrics is the per-frame record produced by EndFrame.
type Metrics struct {
	Duration    time.Duration `json:"duration"`
	Budget      time.Duration `json:"budget"`
	Overrun     bool          `json:"overrun"`
	OverrunBy   time.Duration `json:"overrunBy"`
	CompletedAt time.Time     `json:"completedAt"`
}

// Stats is a snapshot of the rolling-window statistics.
type Stats struct {
	Frames                 int           `json:"frames"`
	Mean                   time.Duration `json:"mean"`
	Min                    time.Duration `json:"min"`
	Max                    time.Duration `json:"max"`
	P95                    time.Duration `json:"p95"`
	P99                    time.Duration `json:"p99"`
	OverrunCount           int           `json:"overrunCount"`
	OverrunPercent         float64       `json:"overrunPercent"`
	MaxConsecutiveOverruns int           `json:"maxConsecutiveOverruns"`
	Budget                 time.Duration `json:"budget"`
}

type sample struct {
	duration time.Duration
	overrun  bool
}

// Timer measures frame durations against a budget derived from a target
// rate. All mutation happens under a single mutex; Stats returns a
// consistent snapshot.
type Timer struct {
	mu sync.Mutex

	now func() time.Time

	budget     time.Duration // budget for frames started from now on
	open       bool
	startedAt  time.Time
	openBudget time.Duration // budget captured when the open frame started

	window   []sample
	capacity int

	curRun int // current run of consecutive overruns
	maxRun int

	onFrame   func(Metrics)
	onOverrun func(Metrics)
}

// New creates a Timer with a budget of 1/hz seconds and the default window.
func New(hz float64) (*Timer, error) {
	return NewWithWindow(hz, DefaultWindow)
}

// NewWithWindow creates a Timer with an explicit rolling window capacity.
func NewWithWindow(hz float64, capacity int) (*Timer, error) {
	if hz <= 0 {
		return nil, fmt.Errorf("target rate must be positive, got %v", hz)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("window capacity must be positive, got %d", capacity)
	}
	return &Timer{
		now:      time.Now,
		budget:   budgetFor(hz),
		window:   make([]sample, 0, capacity),
		capacity: capacity,
	}, nil
}

func budgetFor(hz float64) time.Duration {
	return time.Duration(float64(time.Second) / hz)
}

// SetTargetRate updates the budget used by subsequent frames. An in-flight
// frame keeps the budget it started with.
func (t *Timer) SetTargetRate(hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("target rate must be positive, got %v", hz)
	}
	t.mu.Lock()
	t.budget = budgetFor(hz)
	t.mu.Unlock()
	return nil
}

// Budget returns the budget that will apply to the next started frame.
func (t *Timer) Budget() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.budget
}

// OnFrame registers the single completed-frame sink, replacing any previous one.
func (t *Timer) OnFrame(fn func(Metrics)) {
	t.mu.Lock()
	t.onFrame = fn
	t.mu.Unlock()
}

// OnOverrun registers the single overrun sink, replacing any previous one.
func (t *Timer) OnOverrun(fn func(Metrics)) {
	t.mu.Lock()
	t.onOverrun = fn
	t.mu.Unlock()
}

// StartFrame records the start instant of a new frame.
func (t *Timer) StartFrame() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open {
		return ErrFrameOpen
	}
	t.open = true
	t.startedAt = t.now()
	t.openBudget = t.budget
	return nil
}

// EndFrame closes the open frame and returns its metrics. Fails with
// ErrNoOpenFrame when no frame is open.
func (t *Timer) EndFrame() (Metrics, error) {
	t.mu.Lock()

	if !t.open {
		t.mu.Unlock()
		return Metrics{}, ErrNoOpenFrame
	}

	completed := t.now()
	duration := completed.Sub(t.startedAt)
	budget := t.openBudget
	t.open = false

	m := Metrics{
		Duration:    duration,
		Budget:      budget,
		Overrun:     duration > budget,
		CompletedAt: completed,
	}
	if m.Overrun {
		m.OverrunBy = duration - budget
	}

	t.record(m)

	onFrame := t.onFrame
	onOverrun := t.onOverrun
	t.mu.Unlock()

	// Sinks run outside the critical section so a slow dashboard cannot
	// stall the next StartFrame.
	if onFrame != nil {
		onFrame(m)
	}
	if m.Overrun && onOverrun != nil {
		onOverrun(m)
	}

	return m, nil
}

// record folds a completed frame into the rolling window. Caller holds t.mu.
func (t *Timer) record(m Metrics) {
	t.window = append(t.window, sample{duration: m.Duration, overrun: m.Overrun})
	if len(t.window) > t.capacity {
		t.window = t.window[1:]
	}

	if m.Overrun {
		t.curRun++
		if t.curRun > t.maxRun {
			t.maxRun = t.curRun
		}
	} else {
		t.curRun = 0
	}
}

// Stats returns a snapshot of the rolling-window statistics.
func (t *Timer) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		Frames:                 len(t.window),
		MaxConsecutiveOverruns: t.maxRun,
		Budget:                 t.budget,
	}
	if len(t.window) == 0 {
		return s
	}

	durations := make([]time.Duration, 0, len(t.window))
	var total time.Duration
	s.Min = t.window[0].duration
	for _, sm := range t.window {
		durations = append(durations, sm.duration)
		total += sm.duration
		if sm.duration < s.Min {
			s.Min = sm.duration
		}
		if sm.duration > s.Max {
			s.Max = sm.duration
		}
		if sm.overrun {
			s.OverrunCount++
		}
	}

	s.Mean = total / time.Duration(len(t.window))
	s.OverrunPercent = 100.0 * float64(s.OverrunCount) / float64(len(t.window))

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	s.P95 = nearestRank(durations, 95)
	s.P99 = nearestRank(durations, 99)

	return s
}

// nearestRank returns the p-th percentile of sorted durations using the
// nearest-rank method.
func nearestRank(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100.0 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
