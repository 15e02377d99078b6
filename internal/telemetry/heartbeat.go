package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulse-control/ptc/internal/config"
	"github.com/pulse-control/ptc/internal/events"
)

// HeartbeatMonitor broadcasts heartbeat events on its own cadence,
// decoupled from the frame scheduler, so liveness is proven even when the
// energy pipeline stalls. No broadcast is attempted with zero subscribers.
type HeartbeatMonitor struct {
	hub       *Hub
	interval  time.Duration
	frameRate float64

	seq atomic.Uint64

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewHeartbeatMonitor creates a monitor bound to a hub.
func NewHeartbeatMonitor(hub *Hub, cfg *config.Config) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		hub:       hub,
		interval:  cfg.HeartbeatInterval,
		frameRate: cfg.FrameRate,
	}
}

// Start launches the heartbeat loop. Starting a running monitor is a no-op.
func (m *HeartbeatMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go m.run(m.stop, m.done)
}

// Stop signals the loop to finish and waits for it. The signal is honored
// at the next tick boundary. Idempotent.
func (m *HeartbeatMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
}

// Sequence returns the last broadcast sequence number.
func (m *HeartbeatMonitor) Sequence() uint64 {
	return m.seq.Load()
}

func (m *HeartbeatMonitor) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.beat()
		}
	}
}

// beat broadcasts one heartbeat when at least one connection exists.
func (m *HeartbeatMonitor) beat() {
	if m.hub.Len() == 0 {
		return
	}
	seq := m.seq.Add(1)
	m.hub.Broadcast(events.NewHeartbeat(seq, time.Now(), m.frameRate))
}
