package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pulse-control/ptc/internal/config"
)

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	hub        HubPort
	sched      SchedulerPort
	sessions   SessionPort
	rewards    RewardsPort
	cfg        *config.Config
	startTime  time.Time
}

// NewServer creates an API server over the given ports.
func NewServer(hub HubPort, sched SchedulerPort, sessions SessionPort, rewards RewardsPort, cfg *config.Config) *Server {
	return &Server{
		hub:       hub,
		sched:     sched,
		sessions:  sessions,
		rewards:   rewards,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket subscriptions outlive any
		// reasonable request deadline.
		IdleTimeout: 60 * time.Second,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
