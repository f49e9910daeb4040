package transport

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/netpulse/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no inbound traffic)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Event names exchanged with the telemetry server.
const (
	EventEntityTelemetry    = "entity_telemetry"
	EventInterfaceTelemetry = "interface_telemetry"
	EventJoinScope          = "join_scope"
	EventLeaveScope         = "leave_scope"
	EventSubscribeEntities  = "subscribe_entities"
	EventUnsubscribe        = "unsubscribe_entities"
	EventConnected          = "connected" // Local lifecycle event, never sent
)

// Envelope is the frame format on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ScopeParams is the payload for join_scope and leave_scope.
type ScopeParams struct {
	ScopeID string `json:"scopeId"`
}

// EntitiesParams is the payload for subscribe_entities and unsubscribe_entities.
type EntitiesParams struct {
	ScopeID   string           `json:"scopeId,omitempty"`
	EntityIDs []model.EntityID `json:"entityIds"`
}

// Frame is one decoded inbound envelope stamped with its local arrival time.
type Frame struct {
	Event      string
	Data       json.RawMessage
	ReceivedAt time.Time
}

// Handler receives the payload of a named inbound event.
type Handler func(data json.RawMessage, receivedAt time.Time)

// StatusHandler is notified on every transport status change.
type StatusHandler func(status model.TransportStatus)

// Emitter sends named events to the server.
type Emitter interface {
	Emit(event string, payload any) error
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., wss://telemetry.example.net/ws)
	APIKey       string        // Bearer token for the Authorization header
	SessionID    string        // Sent as X-Session-ID for server-side log correlation
	PingTimeout  time.Duration // Max silence before the socket is considered stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Decoded frame buffer
	ReadLimit    int64         // Largest accepted inbound frame in bytes
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   4096,
		ReadLimit:    1 << 20,
	}
}

// ChannelConfig configures the reconnecting Channel.
type ChannelConfig struct {
	Client       ClientConfig
	ReconnectMin time.Duration // First reconnect delay
	ReconnectMax time.Duration // Reconnect delay cap
	Factor       float64       // Backoff multiplier
}

// DefaultChannelConfig returns sensible defaults.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		Client:       DefaultClientConfig(),
		ReconnectMin: 1 * time.Second,
		ReconnectMax: 60 * time.Second,
		Factor:       2,
	}
}
