// Package events defines the outbound wire records broadcast to
// subscribers and the recognized inbound messages.
//
// Every outbound event is an envelope {type, channel, timestamp(ms),
// payload} with a fixed, typed payload struct per kind; the Type field is
// the discriminant. Events are stateless and constructed fresh per send.
package events

import "time"

// Type discriminates the outbound event kinds.
type Type string

const (
	TypeStartupComplete Type = "startup_complete"
	TypeEnergyUpdate    Type = "energy_update"
	TypeTokenStream     Type = "token_stream"
	TypeHeartbeat       Type = "heartbeat"
	TypeError           Type = "error_event"
)

// Channel tags the logical stream an event belongs to.
type Channel string

const (
	ChannelSystem     Channel = "system"
	ChannelEnergy     Channel = "energy"
	ChannelExperience Channel = "experience"
)

// Event is the outbound wire envelope. Timestamp is milliseconds since the
// Unix epoch.
type Event struct {
	Type      Type    `json:"type"`
	Channel   Channel `json:"channel"`
	Timestamp int64   `json:"timestamp"`
	Payload   any     `json:"payload"`
}

// StartupCompletePayload announces server identity on subscribe.
type StartupCompletePayload struct {
	Model        string   `json:"model"`
	Tier         string   `json:"tier"`
	Version      string   `json:"version"`
	FrameRate    float64  `json:"frameRate"`
	Capabilities []string `json:"capabilities"`
}

// EnergyDistribution breaks total energy into its weighted sub-components.
type EnergyDistribution struct {
	Generation float64 `json:"generation"`
	Attention  float64 `json:"attention"`
	Reasoning  float64 `json:"reasoning"`
}

// EnergyUpdatePayload is the per-frame energy record.
type EnergyUpdatePayload struct {
	FrameNumber        uint64             `json:"frameNumber"`
	TotalEnergy        float64            `json:"totalEnergy"`
	DeltaEnergy        float64            `json:"deltaEnergy"`
	TokensGenerated    int                `json:"tokensGenerated"`
	ProcessingTime     float64            `json:"processingTime"` // milliseconds
	EnergyDistribution EnergyDistribution `json:"energyDistribution"`
}

// TokenStreamPayload carries the tokens emitted for one session this frame.
type TokenStreamPayload struct {
	Tokens     []string `json:"tokens"`
	IsComplete bool     `json:"isComplete"`
	SessionID  string   `json:"sessionId"`
	EnergyCost float64  `json:"energyCost"`
}

// HeartbeatPayload proves liveness independently of the data path.
type HeartbeatPayload struct {
	Sequence   uint64  `json:"sequence"`
	ServerTime string  `json:"serverTime"`
	FrameRate  float64 `json:"frameRate"`
}

// ErrorPayload reports a recoverable or fatal server-side condition.
type ErrorPayload struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Component   string `json:"component"`
	Recoverable bool   `json:"recoverable"`
}

// NewStartupComplete constructs a startup_complete event on the system channel.
func NewStartupComplete(p StartupCompletePayload) Event {
	return Event{Type: TypeStartupComplete, Channel: ChannelSystem, Timestamp: nowMillis(), Payload: p}
}

// NewEnergyUpdate constructs an energy_update event on the energy channel.
func NewEnergyUpdate(p EnergyUpdatePayload) Event {
	return Event{Type: TypeEnergyUpdate, Channel: ChannelEnergy, Timestamp: nowMillis(), Payload: p}
}

// NewTokenStream constructs a token_stream event on the experience channel.
func NewTokenStream(p TokenStreamPayload) Event {
	return Event{Type: TypeTokenStream, Channel: ChannelExperience, Timestamp: nowMillis(), Payload: p}
}

// NewHeartbeat constructs a heartbeat event on the system channel.
func NewHeartbeat(sequence uint64, serverTime time.Time, frameRate float64) Event {
	return Event{
		Type:      TypeHeartbeat,
		Channel:   ChannelSystem,
		Timestamp: nowMillis(),
		Payload: HeartbeatPayload{
			Sequence:   sequence,
			ServerTime: serverTime.UTC().Format(time.RFC3339),
			FrameRate:  frameRate,
		},
	}
}

// NewError constructs an error_event on the system channel.
func NewError(p ErrorPayload) Event {
	return Event{Type: TypeError, Channel: ChannelSystem, Timestamp: nowMillis(), Payload: p}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// InboundHeartbeatResponse is the only recognized inbound message type.
// Anything else is logged and ignored.
const InboundHeartbeatResponse = "heartbeat_response"

// Inbound is the parsed form of a subscriber message.
type Inbound struct {
	Type     string `json:"type"`
	Sequence uint64 `json:"sequence,omitempty"`
}
