package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulse-control/ptc/internal/events"
)

// wsPeer adapts a websocket connection to the Peer interface. Writes are
// serialized; gorilla/websocket allows at most one concurrent writer.
type wsPeer struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newWSPeer(ws *websocket.Conn) *wsPeer {
	return &wsPeer{ws: ws}
}

func (p *wsPeer) WriteEvent(ev events.Event, deadline time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return p.ws.WriteJSON(ev)
}

func (p *wsPeer) Close() error {
	return p.ws.Close()
}

func (p *wsPeer) RemoteAddr() string {
	return p.ws.RemoteAddr().String()
}

// Subscribe announces startup to a websocket connection, registers it for
// broadcasts, and runs its receive loop until the peer disconnects or the
// context is cancelled. Blocks for the lifetime of the connection.
func (h *Hub) Subscribe(ctx context.Context, ws *websocket.Conn) error {
	peer := newWSPeer(ws)

	// Announce startup before the connection becomes visible to broadcasts,
	// so no frame can reach the subscriber ahead of startup_complete.
	if err := peer.WriteEvent(h.StartupEvent(), time.Now().Add(h.sendTimeout)); err != nil {
		_ = peer.Close()
		return fmt.Errorf("failed to send startup event: %w", err)
	}

	conn := h.Register(peer)
	defer h.Unregister(conn.ID)

	// Cancellation unblocks ReadMessage by closing the socket.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			// Disconnect, cancellation, or protocol-level close: the
			// deferred Unregister cleans up either way.
			return nil
		}
		h.handleInbound(conn, data)
	}
}

// handleInbound processes one subscriber message. Only heartbeat_response
// is recognized; anything else is logged and ignored, never a reason to
// close the connection.
func (h *Hub) handleInbound(conn *Conn, data []byte) {
	var in events.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		log.Printf("telemetry: ignoring malformed message from %s: %v", conn.ID, err)
		return
	}

	switch in.Type {
	case events.InboundHeartbeatResponse:
		conn.MarkHeartbeat(time.Now())
	default:
		log.Printf("telemetry: ignoring unknown inbound type %q from %s", in.Type, conn.ID)
	}
}
