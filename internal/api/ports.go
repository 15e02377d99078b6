package api

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/pulse-control/ptc/internal/rewards"
	"github.com/pulse-control/ptc/internal/scheduler"
	"github.com/pulse-control/ptc/internal/session"
	"github.com/pulse-control/ptc/internal/telemetry"
)

// HubPort is the minimal interface the API needs from the telemetry hub.
type HubPort interface {
	Subscribe(ctx context.Context, ws *websocket.Conn) error
	Len() int
}

// SchedulerPort exposes frame loop health to the API.
type SchedulerPort interface {
	Stats() scheduler.Stats
	Running() bool
}

// SessionPort is the session CRUD surface.
type SessionPort interface {
	Create(identity, model string) (*session.Session, error)
	Get(id string) (*session.Session, error)
	List() []*session.Session
	Delete(id string) error
}

// RewardsPort is the reward account read/reset surface.
type RewardsPort interface {
	Get(identity string) (*rewards.Account, error)
	List() []*rewards.Account
	Reset(identity string) error
}

// Compile-time assertions for port conformance
var _ HubPort = (*telemetry.Hub)(nil)
var _ SchedulerPort = (*scheduler.Scheduler)(nil)
var _ SessionPort = (*session.Manager)(nil)
var _ RewardsPort = (*rewards.Manager)(nil)
