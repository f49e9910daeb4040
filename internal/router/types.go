package router

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultAggregateKey is the reserved key carrying totals in entity_telemetry.
const DefaultAggregateKey = "_total"

// Config holds configuration for the Router.
type Config struct {
	AggregateKey string // Stripped before per-entity processing. Default: "_total"
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		AggregateKey: DefaultAggregateKey,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	MessagesReceived int64
	SnapshotsRouted  int64
	ParseErrors      int64
}

// Wire types for JSON parsing

// entityWire is one entry of an entity_telemetry payload.
type entityWire struct {
	Status   any             `json:"status"` // bool or status string
	Upload   *float64        `json:"upload"`
	Download *float64        `json:"download"`
	LastSeen json.RawMessage `json:"last_seen"`
}

// interfaceTelemetryWire is the wire format for interface_telemetry.
type interfaceTelemetryWire struct {
	ScopeID flexString             `json:"scopeId"`
	Traffic map[string]trafficWire `json:"traffic"`
}

// trafficWire is the counter pair of one interface.
type trafficWire struct {
	Tx *float64 `json:"tx"`
	Rx *float64 `json:"rx"`
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("scope id: %w", err)
	}
	*s = flexString(n.String())
	return nil
}

// parseLastSeen accepts an RFC3339 string or unix seconds. Null and absent
// values yield nil.
func parseLastSeen(raw json.RawMessage) (*time.Time, error) {
	v := strings.TrimSpace(string(raw))
	if v == "" || v == "null" {
		return nil, nil
	}

	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if s == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("last_seen: %w", err)
		}
		return &t, nil
	}

	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("last_seen: %w", err)
	}
	t := time.Unix(0, int64(secs*float64(time.Second))).UTC()
	return &t, nil
}
