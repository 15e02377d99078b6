package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulse-control/ptc/internal/config"
	"github.com/pulse-control/ptc/internal/events"
	"github.com/pulse-control/ptc/internal/rewards"
	"github.com/pulse-control/ptc/internal/scheduler"
	"github.com/pulse-control/ptc/internal/session"
	"github.com/pulse-control/ptc/internal/store"
	"github.com/pulse-control/ptc/internal/telemetry"
)

// fakeScheduler satisfies SchedulerPort without a running frame loop.
type fakeScheduler struct {
	running bool
	stats   scheduler.Stats
}

func (f *fakeScheduler) Stats() scheduler.Stats { return f.stats }
func (f *fakeScheduler) Running() bool          { return f.running }

func newTestServer(t *testing.T) (*Server, *telemetry.Hub, *session.Manager, *rewards.Manager) {
	t.Helper()
	cfg := config.Baseline()
	hub := telemetry.NewHub(cfg)
	t.Cleanup(hub.Stop)
	sessions := session.NewManager(store.NewMemoryStore())
	accounts := rewards.NewManager(store.NewMemoryStore(), cfg.EnergyRate)
	sched := &fakeScheduler{running: true, stats: scheduler.Stats{Running: true, FrameNumber: 42}}
	return NewServer(hub, sched, sessions, accounts, cfg), hub, sessions, accounts
}

func doRequest(t *testing.T, srv *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not a valid envelope: %v\n%s", err, rec.Body.String())
	}
	if resp.CorrelationID == "" {
		t.Error("envelope missing correlationId")
	}
	return resp
}

func TestHealthOK(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Result != "ok" {
		t.Errorf("result = %q, want ok", resp.Result)
	}
}

func TestHealthDegradedWhenSchedulerStopped(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	srv.sched = &fakeScheduler{running: false}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Code != "SERVICE_DEGRADED" {
		t.Errorf("code = %q, want SERVICE_DEGRADED", resp.Code)
	}
}

func TestCapabilities(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/capabilities", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "websocket") {
		t.Errorf("capabilities should advertise websocket transport: %s", rec.Body.String())
	}
}

func TestFrameStats(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/frames/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	data, _ := json.Marshal(resp.Data)
	var stats scheduler.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("stats payload malformed: %v", err)
	}
	if stats.FrameNumber != 42 {
		t.Errorf("FrameNumber = %d, want 42", stats.FrameNumber)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions", `{"model":"pulse-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	data, _ := json.Marshal(resp.Data)
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		t.Fatalf("session payload malformed: %v", err)
	}
	if sess.Model != "pulse-1" || sess.Identity != session.DefaultIdentity {
		t.Errorf("created session = %+v", sess)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sessions/"+sess.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/sessions/"+sess.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sessions/"+sess.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
	resp = decodeEnvelope(t, rec)
	if resp.Code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", resp.Code)
	}
}

func TestCreateSessionRejectsBadJSON(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"malformed", `{"model":`},
		{"unknown field", `{"model":"m","bogus":1}`},
		{"trailing data", `{"model":"m"}{"again":true}`},
		{"missing model", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			resp := decodeEnvelope(t, rec)
			if resp.Code != "BAD_REQUEST" {
				t.Errorf("code = %q, want BAD_REQUEST", resp.Code)
			}
		})
	}
}

func TestRewardsEndpoints(t *testing.T) {
	srv, _, _, accounts := newTestServer(t)
	accounts.Accrue("alice", 100, 250)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/rewards", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/rewards/alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	data, _ := json.Marshal(resp.Data)
	var acct rewards.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		t.Fatalf("account payload malformed: %v", err)
	}
	if acct.Units != 12.5 {
		t.Errorf("Units = %v, want 12.5", acct.Units)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/rewards/alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/rewards/nobody", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown identity status = %d, want 404", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	paths := []string{
		"/api/v1/health",
		"/api/v1/capabilities",
		"/api/v1/frames/stats",
		"/api/v1/rewards",
	}
	for _, path := range paths {
		rec := doRequest(t, srv, http.MethodPut, path, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: status = %d, want 405", path, rec.Code)
		}
	}
}

func TestWebsocketSubscribeReceivesStartup(t *testing.T) {
	srv, hub, _, _ := newTestServer(t)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("reading startup event failed: %v", err)
	}
	if ev.Type != events.TypeStartupComplete {
		t.Fatalf("first event type = %q, want %q", ev.Type, events.TypeStartupComplete)
	}

	// Broadcast reaches the subscriber over the wire.
	hub.Broadcast(events.NewHeartbeat(1, time.Now(), 60))
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("reading heartbeat failed: %v", err)
	}
	if ev.Type != events.TypeHeartbeat {
		t.Fatalf("event type = %q, want %q", ev.Type, events.TypeHeartbeat)
	}
}
