package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulse-control/ptc/internal/session"
)

// upgrader accepts any origin; the container fronts trusted clients
// and carries no per-connection privileges.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RegisterRoutes registers all v1 endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	apiV1 := "/api/v1"

	mux.HandleFunc(apiV1+"/health", s.handleHealth)
	mux.HandleFunc(apiV1+"/capabilities", s.handleCapabilities)
	mux.HandleFunc(apiV1+"/ws", s.handleWebsocket)
	mux.HandleFunc(apiV1+"/frames/stats", s.handleFrameStats)
	mux.HandleFunc(apiV1+"/sessions", s.handleSessions)
	mux.HandleFunc(apiV1+"/sessions/", s.handleSessionByID)
	mux.HandleFunc(apiV1+"/rewards", s.handleRewards)
	mux.HandleFunc(apiV1+"/rewards/", s.handleRewardByIdentity)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	uptime := 0.0
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Seconds()
	}

	subsystems := map[string]bool{
		"hub":       s.hub != nil,
		"scheduler": s.sched != nil && s.sched.Running(),
		"sessions":  s.sessions != nil,
		"rewards":   s.rewards != nil,
	}

	status := "ok"
	for _, up := range subsystems {
		if !up {
			status = "degraded"
		}
	}

	health := map[string]interface{}{
		"status":      status,
		"uptimeSec":   uptime,
		"version":     s.cfg.Version,
		"subscribers": s.hub.Len(),
		"subsystems":  subsystems,
	}

	if status == "ok" {
		WriteSuccess(w, health)
		return
	}
	WriteError(w, http.StatusServiceUnavailable, "SERVICE_DEGRADED",
		"One or more subsystems are unavailable", health)
}

// handleCapabilities handles GET /capabilities
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	capabilities := map[string]interface{}{
		"telemetry": []string{"websocket"},
		"events":    s.cfg.Capabilities,
		"model":     s.cfg.Model,
		"tier":      s.cfg.Tier,
		"frameRate": s.cfg.FrameRate,
		"version":   s.cfg.Version,
	}

	WriteSuccess(w, capabilities)
}

// handleWebsocket handles GET /ws. The upgraded connection is handed to
// the hub, which owns it until the peer disconnects.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		log.Printf("api: websocket upgrade failed: %v", err)
		return
	}

	if err := s.hub.Subscribe(r.Context(), ws); err != nil {
		log.Printf("api: subscribe failed: %v", err)
	}
}

// handleFrameStats handles GET /frames/stats
func (s *Server) handleFrameStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	WriteSuccess(w, s.sched.Stats())
}

// handleSessions handles GET /sessions and POST /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, s.sessions.List())
	case http.MethodPost:
		s.handleCreateSession(w, r)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET and POST methods are allowed", nil)
	}
}

// handleCreateSession handles POST /sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	// Parse request (strict JSON)
	var req struct {
		Model string `json:"model"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON or unknown fields", nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Trailing data after JSON object", nil)
		return
	}
	if req.Model == "" {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Field model is required", nil)
		return
	}

	identity := session.ResolveIdentity(r.Header.Get("Authorization"))
	sess, err := s.sessions.Create(identity, req.Model)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteSuccess(w, sess)
}

// handleSessionByID handles GET/DELETE /sessions/{id}
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	id := extractPathID(r.URL.Path, "/api/v1/sessions/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST",
			"Session ID is required", nil)
		return
	}

	switch r.Method {
	case http.MethodGet:
		sess, err := s.sessions.Get(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		WriteSuccess(w, sess)
	case http.MethodDelete:
		if err := s.sessions.Delete(id); err != nil {
			writeDomainError(w, err)
			return
		}
		WriteSuccess(w, map[string]string{"deleted": id})
	default:
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET and DELETE methods are allowed", nil)
	}
}

// handleRewards handles GET /rewards
func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	WriteSuccess(w, s.rewards.List())
}

// handleRewardByIdentity handles GET/DELETE /rewards/{identity}
func (s *Server) handleRewardByIdentity(w http.ResponseWriter, r *http.Request) {
	identity := extractPathID(r.URL.Path, "/api/v1/rewards/")
	if identity == "" {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST",
			"Identity is required", nil)
		return
	}

	switch r.Method {
	case http.MethodGet:
		acct, err := s.rewards.Get(identity)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		WriteSuccess(w, acct)
	case http.MethodDelete:
		if err := s.rewards.Reset(identity); err != nil {
			writeDomainError(w, err)
			return
		}
		WriteSuccess(w, map[string]string{"reset": identity})
	default:
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET and DELETE methods are allowed", nil)
	}
}

// extractPathID returns the single path segment after prefix, or ""
// when missing or followed by further segments.
func extractPathID(path, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := path[len(prefix):]
	if rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}
