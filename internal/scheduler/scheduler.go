package scheduler

import (
	"errors"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulse-control/ptc/internal/config"
	"github.com/pulse-control/ptc/internal/energy"
	"github.com/pulse-control/ptc/internal/events"
	"github.com/pulse-control/ptc/internal/frametimer"
	"github.com/pulse-control/ptc/internal/generation"
	"github.com/pulse-control/ptc/internal/rewards"
)

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Broadcaster is the fan-out the scheduler publishes frames through.
type Broadcaster interface {
	Broadcast(ev events.Event)
}

// UsageSink receives per-session generation totals. Implemented by the
// session manager; nil disables usage tracking.
type UsageSink interface {
	AddUsage(sessionID string, tokens int, energyCost float64)
}

// Stats is a snapshot of scheduler health.
type Stats struct {
	Running       bool             `json:"running"`
	FrameNumber   uint64           `json:"frameNumber"`
	LastDiversity float64          `json:"lastDiversity"`
	Timer         frametimer.Stats `json:"timer"`
}

// Scheduler runs the frame loop.
type Scheduler struct {
	timer  *frametimer.Timer
	hub    Broadcaster
	source generation.Source
	mapper *energy.Mapper

	energyRate float64
	usage      UsageSink

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	frameNumber atomic.Uint64
	diversity   atomic.Uint64 // float64 bits

	// Loop-local state, touched only by the run goroutine. lastTick is the
	// event-window cursor: the newest source timestamp consumed so far.
	lastTick  time.Time
	lastTotal float64
}

// New wires a scheduler. The timer supplies the budget; the mapper and
// source supply the signal.
func New(timer *frametimer.Timer, hub Broadcaster, source generation.Source, mapper *energy.Mapper, cfg *config.Config) *Scheduler {
	return &Scheduler{
		timer:      timer,
		hub:        hub,
		source:     source,
		mapper:     mapper,
		energyRate: cfg.EnergyRate,
	}
}

// SetUsageSink installs the per-session usage sink.
func (s *Scheduler) SetUsageSink(sink UsageSink) {
	s.usage = sink
}

// Start transitions Stopped -> Running and launches the frame loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.lastTick = time.Now()

	go s.run(s.stop, s.done)
	return nil
}

// Stop signals the loop and waits for it to finish the current tick.
// Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// FrameNumber returns the number of completed ticks.
func (s *Scheduler) FrameNumber() uint64 {
	return s.frameNumber.Load()
}

// LastDiversity returns the diversity index from the most recent tick that
// saw an ensemble.
func (s *Scheduler) LastDiversity() float64 {
	return math.Float64frombits(s.diversity.Load())
}

// Stats returns a snapshot of scheduler health.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Running:       s.Running(),
		FrameNumber:   s.FrameNumber(),
		LastDiversity: s.LastDiversity(),
		Timer:         s.timer.Stats(),
	}
}

func (s *Scheduler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		m, err := s.tick()
		if err != nil {
			log.Printf("scheduler: tick failed: %v", err)
			s.hub.Broadcast(events.NewError(events.ErrorPayload{
				Severity:    "fatal",
				Code:        "FRAME_LOOP_FAILURE",
				Message:     err.Error(),
				Component:   "scheduler",
				Recoverable: false,
			}))
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		}

		if m.Overrun {
			log.Printf("scheduler: frame %d overran budget by %v", s.frameNumber.Load(), m.OverrunBy)
			// Skip the sleep; the schedule slips and self-corrects.
			continue
		}

		select {
		case <-stop:
			return
		case <-time.After(m.Budget - m.Duration):
		}
	}
}

// sessionWindow aggregates one session's events within a tick.
type sessionWindow struct {
	tokens   []string
	delayMs  float64
	complete bool
}

// tick runs one frame: open the timing frame, fold the new events into the
// energy state, broadcast, close the frame.
func (s *Scheduler) tick() (frametimer.Metrics, error) {
	if err := s.timer.StartFrame(); err != nil {
		return frametimer.Metrics{}, err
	}

	frame := s.frameNumber.Add(1)
	since := s.lastTick
	start := time.Now()

	evs := s.source.EventsSince(since)

	// Advance the cursor to the newest timestamp actually consumed rather
	// than the wall clock: an event emitted while the scan runs lands in
	// exactly one window instead of straddling two. A quiet tick leaves the
	// cursor alone and the next scan covers the wider span.
	for _, ev := range evs {
		if ev.Timestamp.After(s.lastTick) {
			s.lastTick = ev.Timestamp
		}
	}

	sessions := make(map[string]*sessionWindow)
	latestPerModel := make(map[string]generation.Event)
	var cadenceSum, certaintySum, stallSum float64

	for _, ev := range evs {
		sample := s.mapper.ComputeEnergy(ev)
		cadenceSum += sample.Cadence
		certaintySum += sample.Certainty
		stallSum += sample.Stall

		win, ok := sessions[ev.SessionID]
		if !ok {
			win = &sessionWindow{}
			sessions[ev.SessionID] = win
		}
		win.tokens = append(win.tokens, ev.Token)
		win.delayMs += float64(ev.Delay) / float64(time.Millisecond)
		if ev.Final {
			win.complete = true
		}

		latestPerModel[ev.ModelID] = ev
	}

	if len(latestPerModel) > 1 {
		aligned := make([]generation.Event, 0, len(latestPerModel))
		for _, ev := range latestPerModel {
			aligned = append(aligned, ev)
		}
		s.diversity.Store(math.Float64bits(energy.ComputeDiversity(aligned)))
	}

	total := s.lastTotal
	if len(sessions) > 0 {
		total = 0
		for id := range sessions {
			total += s.mapper.SmoothedEnergy(id)
		}
		total /= float64(len(sessions))
	}
	delta := total - s.lastTotal
	s.lastTotal = total

	s.hub.Broadcast(events.NewEnergyUpdate(events.EnergyUpdatePayload{
		FrameNumber:        frame,
		TotalEnergy:        total,
		DeltaEnergy:        delta,
		TokensGenerated:    len(evs),
		ProcessingTime:     float64(time.Since(start)) / float64(time.Millisecond),
		EnergyDistribution: s.distribution(len(evs), cadenceSum, certaintySum, stallSum),
	}))

	for id, win := range sessions {
		cost := rewards.EnergyUnits(len(win.tokens), win.delayMs, s.energyRate)
		s.hub.Broadcast(events.NewTokenStream(events.TokenStreamPayload{
			Tokens:     win.tokens,
			IsComplete: win.complete,
			SessionID:  id,
			EnergyCost: cost,
		}))
		if s.usage != nil {
			s.usage.AddUsage(id, len(win.tokens), cost)
		}
	}

	return s.timer.EndFrame()
}

// distribution spreads total energy across the weighted sub-components so
// dashboards can attribute the signal.
func (s *Scheduler) distribution(count int, cadenceSum, certaintySum, stallSum float64) events.EnergyDistribution {
	if count == 0 {
		return events.EnergyDistribution{}
	}
	w := s.mapper.Weights()
	n := float64(count)
	return events.EnergyDistribution{
		Generation: w.Cadence * cadenceSum / n,
		Attention:  w.Certainty * certaintySum / n,
		Reasoning:  w.Stall * stallSum / n,
	}
}
