// Package main implements the Pulse Telemetry Container entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/pulse-control/ptc/internal/api"
	"github.com/pulse-control/ptc/internal/audit"
	"github.com/pulse-control/ptc/internal/config"
	"github.com/pulse-control/ptc/internal/energy"
	"github.com/pulse-control/ptc/internal/frametimer"
	"github.com/pulse-control/ptc/internal/generation"
	"github.com/pulse-control/ptc/internal/rewards"
	"github.com/pulse-control/ptc/internal/scheduler"
	"github.com/pulse-control/ptc/internal/session"
	"github.com/pulse-control/ptc/internal/store"
	"github.com/pulse-control/ptc/internal/telemetry"
)

const DefaultAddr = ":8000"

// usageRecorder fans scheduler usage out to the session ledger and the
// identity's reward account.
type usageRecorder struct {
	sessions *session.Manager
	rewards  *rewards.Manager
}

func (u *usageRecorder) AddUsage(sessionID string, tokens int, energyCost float64) {
	u.sessions.AddUsage(sessionID, tokens, energyCost)

	identity := session.DefaultIdentity
	if sess, err := u.sessions.Get(sessionID); err == nil {
		identity = sess.Identity
	}
	u.rewards.AccrueUnits(identity, tokens, energyCost)
}

func main() {
	var (
		addr        = flag.String("addr", getServerAddress(), "HTTP listen address")
		configPath  = flag.String("config", "", "path to YAML config file")
		logDir      = flag.String("log-dir", "", "audit log directory (overrides config)")
		dataDir     = flag.String("data-dir", "", "persistence directory (overrides config)")
		simInterval = flag.Duration("sim-interval", 50*time.Millisecond, "simulated token cadence")
		simSeed     = flag.Int64("sim-seed", 1, "simulated source seed")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logDir != "" {
		cfg.LogDir = *logDir
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	log.Printf("Starting Pulse Telemetry Container v%s (%.0f Hz)", cfg.Version, cfg.FrameRate)

	auditLogger, err := audit.NewLogger(cfg.LogDir)
	if err != nil {
		log.Fatalf("Failed to initialize audit logger: %v", err)
	}

	st, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open data store: %v", err)
	}
	sessions := session.NewManager(st)
	accounts := rewards.NewManager(st, cfg.EnergyRate)

	hub := telemetry.NewHub(cfg)
	hub.SetRecorder(auditLogger)

	timer, err := frametimer.NewWithWindow(cfg.FrameRate, cfg.MetricsWindow)
	if err != nil {
		log.Fatalf("Failed to create frame timer: %v", err)
	}

	mapper, err := energy.NewMapper(cfg)
	if err != nil {
		log.Fatalf("Failed to create energy mapper: %v", err)
	}

	source := generation.NewSimSource(cfg.Model, "sim-session", *simInterval, *simSeed)
	simCtx, stopSim := context.WithCancel(context.Background())
	go source.Run(simCtx)

	sched := scheduler.New(timer, hub, source, mapper, cfg)
	sched.SetUsageSink(&usageRecorder{sessions: sessions, rewards: accounts})
	timer.OnOverrun(func(m frametimer.Metrics) {
		auditLogger.FrameOverrun(sched.FrameNumber(), m)
	})

	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	log.Println("Frame scheduler started")

	heartbeat := telemetry.NewHeartbeatMonitor(hub, cfg)
	heartbeat.Start()

	server := api.NewServer(hub, sched, sessions, accounts, cfg)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(*addr); err != nil {
			serverErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	log.Printf("Pulse Telemetry Container started on %s", *addr)
	log.Printf("Health endpoint: http://localhost%s/api/v1/health", *addr)
	log.Printf("Telemetry endpoint: ws://localhost%s/api/v1/ws", *addr)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		log.Printf("Server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	heartbeat.Stop()
	sched.Stop()
	stopSim()
	log.Println("Frame scheduler stopped")

	hub.Stop()
	log.Println("Telemetry hub stopped")

	if err := server.Stop(ctx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	} else {
		log.Println("HTTP server stopped gracefully")
	}

	if err := auditLogger.Close(); err != nil {
		log.Printf("Error closing audit logger: %v", err)
	}

	log.Println("Pulse Telemetry Container shutdown complete")
}

// getServerAddress returns the server address from environment or default.
func getServerAddress() string {
	if addr := os.Getenv("PTC_ADDR"); addr != "" {
		return addr
	}
	return DefaultAddr
}
