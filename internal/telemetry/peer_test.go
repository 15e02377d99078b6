package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulse-control/ptc/internal/events"
)

func TestSubscribeStartupPrecedesFrames(t *testing.T) {
	hub := newTestHub()

	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		_ = hub.Subscribe(r.Context(), ws)
	}))
	defer ts.Close()

	// Hammer frames for the whole subscribe window. A connection that
	// became visible to broadcasts before its startup write would see an
	// energy_update first.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); ; i++ {
			select {
			case <-stop:
				return
			default:
				hub.Broadcast(events.NewEnergyUpdate(events.EnergyUpdatePayload{FrameNumber: i}))
			}
		}
	}()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first events.Event
	if err := ws.ReadJSON(&first); err != nil {
		t.Fatalf("reading first event failed: %v", err)
	}
	close(stop)
	wg.Wait()

	if first.Type != events.TypeStartupComplete {
		t.Fatalf("first event on a new subscription = %q, want %q",
			first.Type, events.TypeStartupComplete)
	}
}
