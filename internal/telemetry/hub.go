package telemetry

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pulse-control/ptc/internal/config"
	"github.com/pulse-control/ptc/internal/events"
)

// ErrNotRegistered is returned by SendTo for an unknown connection ID.
var ErrNotRegistered = errors.New("connection not registered")

// Peer is the transport side of a subscriber connection. Implementations
// must tolerate concurrent WriteEvent calls.
type Peer interface {
	WriteEvent(ev events.Event, deadline time.Time) error
	Close() error
	RemoteAddr() string
}

// Recorder receives connection lifecycle and timing records. Implemented by
// the audit logger; a nil Recorder disables recording.
type Recorder interface {
	ConnectionOpened(connID, remoteAddr string)
	ConnectionClosed(connID, reason string)
	SendOverrun(connID string, took, budget time.Duration)
}

// Conn is one registered subscriber. Owned by the Hub; the heartbeat
// timestamp and frame counter are individually synchronized so broadcasts
// and the read loop can touch them concurrently.
type Conn struct {
	ID          string
	ConnectedAt time.Time

	peer Peer

	mu            sync.Mutex
	lastHeartbeat time.Time

	frames atomic.Uint64
}

// MarkHeartbeat records a heartbeat reply for liveness inspection.
func (c *Conn) MarkHeartbeat(at time.Time) {
	c.mu.Lock()
	c.lastHeartbeat = at
	c.mu.Unlock()
}

// LastHeartbeat returns the time of the last heartbeat reply, zero if none.
func (c *Conn) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

// Frames returns the number of energy frames delivered to this connection.
func (c *Conn) Frames() uint64 {
	return c.frames.Load()
}

// Hub tracks subscribers and performs isolated concurrent fan-out.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn

	sendTimeout time.Duration
	frameBudget atomic.Int64 // nanoseconds; compared against send time

	startup events.StartupCompletePayload

	recorder Recorder
}

// NewHub creates a hub from configuration. The startup payload is sent to
// every new subscriber before any frames.
func NewHub(cfg *config.Config) *Hub {
	h := &Hub{
		conns:       make(map[string]*Conn),
		sendTimeout: cfg.SendTimeout,
		startup: events.StartupCompletePayload{
			Model:        cfg.Model,
			Tier:         cfg.Tier,
			Version:      cfg.Version,
			FrameRate:    cfg.FrameRate,
			Capabilities: cfg.Capabilities,
		},
	}
	h.frameBudget.Store(int64(cfg.FrameBudget()))
	return h
}

// SetRecorder installs the lifecycle recorder. Safe to call while the hub
// is already serving connections.
func (h *Hub) SetRecorder(r Recorder) {
	h.mu.Lock()
	h.recorder = r
	h.mu.Unlock()
}

func (h *Hub) rec() Recorder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.recorder
}

// SetFrameBudget updates the budget that send durations are compared
// against when the target rate changes.
func (h *Hub) SetFrameBudget(budget time.Duration) {
	h.frameBudget.Store(int64(budget))
}

// Register adds a subscriber and returns its connection.
func (h *Hub) Register(peer Peer) *Conn {
	conn := &Conn{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		peer:        peer,
	}

	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()

	if r := h.rec(); r != nil {
		r.ConnectionOpened(conn.ID, peer.RemoteAddr())
	}
	return conn
}

// Unregister removes a connection and closes its peer. Idempotent and safe
// to call from a broadcast failure path racing the read loop.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	conn, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	_ = conn.peer.Close()
	if r := h.rec(); r != nil {
		r.ConnectionClosed(id, "unregistered")
	}
}

// Connection looks up a registered connection.
func (h *Hub) Connection(id string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[id]
	return conn, ok
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// snapshot copies the membership so a broadcast iterates a stable list even
// if registration changes mid-call.
func (h *Hub) snapshot() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast sends an event concurrently to every registered connection. A
// failed send drops that connection only; failures are logged, never
// returned. Returns once every send has completed or timed out, so frames
// observed by a single connection stay in order.
func (h *Hub) Broadcast(ev events.Event) {
	conns := h.snapshot()
	if len(conns) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			if err := h.send(c, ev); err != nil {
				log.Printf("telemetry: dropping connection %s: send failed: %v", c.ID, err)
				h.Unregister(c.ID)
			}
		}(conn)
	}
	wg.Wait()
}

// SendTo delivers one event to one connection. This is the only place send
// time is measured against the frame budget; exceeding it is a warning, not
// an error.
func (h *Hub) SendTo(id string, ev events.Event) error {
	conn, ok := h.Connection(id)
	if !ok {
		return ErrNotRegistered
	}

	if err := h.send(conn, ev); err != nil {
		h.Unregister(id)
		return err
	}
	return nil
}

// send writes one event to one peer under the bounded send timeout.
func (h *Hub) send(c *Conn, ev events.Event) error {
	budget := time.Duration(h.frameBudget.Load())
	deadline := time.Now().Add(h.sendTimeout)

	start := time.Now()
	err := c.peer.WriteEvent(ev, deadline)
	took := time.Since(start)

	if err != nil {
		return err
	}

	if took > budget {
		log.Printf("telemetry: send to %s took %v, over frame budget %v", c.ID, took, budget)
		if r := h.rec(); r != nil {
			r.SendOverrun(c.ID, took, budget)
		}
	}

	if ev.Type == events.TypeEnergyUpdate {
		c.frames.Add(1)
	}
	return nil
}

// StartupEvent builds the startup_complete event for a new subscriber.
func (h *Hub) StartupEvent() events.Event {
	return events.NewStartupComplete(h.startup)
}

// Stop closes every connection and clears the registry.
func (h *Hub) Stop() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*Conn)
	h.mu.Unlock()

	r := h.rec()
	for id, conn := range conns {
		_ = conn.peer.Close()
		if r != nil {
			r.ConnectionClosed(id, "hub stopped")
		}
	}
}
