package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pulse-control/ptc/internal/config"
	"github.com/pulse-control/ptc/internal/events"
)

// fakePeer records delivered events and can be told to fail sends.
type fakePeer struct {
	mu     sync.Mutex
	events []events.Event
	fail   bool
	closed bool
}

func (p *fakePeer) WriteEvent(ev events.Event, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("peer gone")
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) RemoteAddr() string { return "fake:0" }

func (p *fakePeer) received() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *fakePeer) setFail(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

func newTestHub() *Hub {
	return NewHub(config.Baseline())
}

func TestRegisterUnregister(t *testing.T) {
	hub := newTestHub()
	peer := &fakePeer{}

	conn := hub.Register(peer)
	if conn.ID == "" {
		t.Fatal("Register returned connection with empty ID")
	}
	if hub.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", hub.Len())
	}

	hub.Unregister(conn.ID)
	if hub.Len() != 0 {
		t.Fatalf("Len() after Unregister = %d, want 0", hub.Len())
	}
	if !peer.closed {
		t.Error("Unregister should close the peer")
	}

	// Idempotent.
	hub.Unregister(conn.ID)
	if hub.Len() != 0 {
		t.Fatal("double Unregister changed membership")
	}
}

func TestBroadcastDeliversToAll(t *testing.T) {
	hub := newTestHub()

	peers := make([]*fakePeer, 5)
	for i := range peers {
		peers[i] = &fakePeer{}
		hub.Register(peers[i])
	}

	hub.Broadcast(events.NewHeartbeat(1, time.Now(), 60))

	for i, p := range peers {
		if got := len(p.received()); got != 1 {
			t.Errorf("peer %d received %d events, want 1", i, got)
		}
	}
}

func TestBroadcastIsolatesFailure(t *testing.T) {
	hub := newTestHub()

	peers := make([]*fakePeer, 5)
	for i := range peers {
		peers[i] = &fakePeer{}
		hub.Register(peers[i])
	}
	peers[2].setFail(true)

	hub.Broadcast(events.NewHeartbeat(1, time.Now(), 60))

	delivered := 0
	for i, p := range peers {
		if i == 2 {
			continue
		}
		if len(p.received()) == 1 {
			delivered++
		}
	}
	if delivered != 4 {
		t.Errorf("%d healthy peers received the event, want 4", delivered)
	}

	if hub.Len() != 4 {
		t.Errorf("membership after failed send = %d, want 4", hub.Len())
	}
	if !peers[2].closed {
		t.Error("failing peer should have been closed")
	}
}

func TestBroadcastEmptyRegistry(t *testing.T) {
	hub := newTestHub()
	// Must not panic or block.
	hub.Broadcast(events.NewHeartbeat(1, time.Now(), 60))
}

func TestSendToUnknownConnection(t *testing.T) {
	hub := newTestHub()
	err := hub.SendTo("missing", events.NewHeartbeat(1, time.Now(), 60))
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("SendTo(missing) = %v, want ErrNotRegistered", err)
	}
}

func TestFrameCounterTracksEnergyUpdates(t *testing.T) {
	hub := newTestHub()
	peer := &fakePeer{}
	conn := hub.Register(peer)

	for i := 1; i <= 3; i++ {
		hub.Broadcast(events.NewEnergyUpdate(events.EnergyUpdatePayload{FrameNumber: uint64(i)}))
	}
	hub.Broadcast(events.NewHeartbeat(1, time.Now(), 60))

	if got := conn.Frames(); got != 3 {
		t.Errorf("Frames() = %d, want 3 (heartbeats do not count)", got)
	}
}

func TestConcurrentRegisterBroadcastUnregister(t *testing.T) {
	hub := newTestHub()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := hub.Register(&fakePeer{})
			hub.Broadcast(events.NewHeartbeat(1, time.Now(), 60))
			hub.Unregister(conn.ID)
		}()
	}
	wg.Wait()

	if hub.Len() != 0 {
		t.Errorf("Len() after concurrent churn = %d, want 0", hub.Len())
	}
}

// countingRecorder tallies lifecycle records.
type countingRecorder struct {
	mu     sync.Mutex
	opened int
	closed int
}

func (r *countingRecorder) ConnectionOpened(string, string) {
	r.mu.Lock()
	r.opened++
	r.mu.Unlock()
}

func (r *countingRecorder) ConnectionClosed(string, string) {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
}

func (r *countingRecorder) SendOverrun(string, time.Duration, time.Duration) {}

func TestSetRecorderDuringChurn(t *testing.T) {
	hub := newTestHub()
	rec := &countingRecorder{}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := hub.Register(&fakePeer{})
			hub.Broadcast(events.NewHeartbeat(1, time.Now(), 60))
			hub.Unregister(conn.ID)
		}()
	}
	// Installed while connections churn; must not race the readers above.
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.SetRecorder(rec)
	}()
	wg.Wait()

	// Lifecycle after installation is always recorded.
	conn := hub.Register(&fakePeer{})
	hub.Unregister(conn.ID)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.opened < 1 || rec.closed < 1 {
		t.Errorf("recorder saw opened=%d closed=%d after install, want >= 1 each",
			rec.opened, rec.closed)
	}
}

func TestHandleInbound(t *testing.T) {
	hub := newTestHub()
	conn := hub.Register(&fakePeer{})

	if !conn.LastHeartbeat().IsZero() {
		t.Fatal("new connection should have zero LastHeartbeat")
	}

	hub.handleInbound(conn, []byte(`{"type":"heartbeat_response","sequence":1}`))
	if conn.LastHeartbeat().IsZero() {
		t.Error("heartbeat_response should update LastHeartbeat")
	}

	before := conn.LastHeartbeat()
	// Unknown and malformed messages are ignored, never fatal.
	hub.handleInbound(conn, []byte(`{"type":"mystery"}`))
	hub.handleInbound(conn, []byte(`{not json`))
	if conn.LastHeartbeat() != before {
		t.Error("ignored messages must not touch LastHeartbeat")
	}
	if hub.Len() != 1 {
		t.Error("protocol errors must keep the connection alive")
	}
}

func TestStopClosesEverything(t *testing.T) {
	hub := newTestHub()
	peers := []*fakePeer{{}, {}, {}}
	for _, p := range peers {
		hub.Register(p)
	}

	hub.Stop()

	if hub.Len() != 0 {
		t.Errorf("Len() after Stop = %d, want 0", hub.Len())
	}
	for i, p := range peers {
		if !p.closed {
			t.Errorf("peer %d not closed by Stop", i)
		}
	}
}
