package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConnectionsResponse from GET /connections
type ConnectionsResponse struct {
	Connections []APIConnection `json:"connections"`
}

// APIConnection is one subscriber connection in a bulk listing.
type APIConnection struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Status   any    `json:"status"` // bool or status string
}

// InterfacesResponse from GET /routers/{id}/interfaces
type InterfacesResponse struct {
	Interfaces []APIInterface `json:"interfaces"`
}

// APIInterface is one router interface.
type APIInterface struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// TrafficResponse from GET /entities/{id}/traffic
type TrafficResponse struct {
	Points []APITrafficPoint `json:"points"`
}

// APITrafficPoint is one historical bandwidth sample.
type APITrafficPoint struct {
	Timestamp   Timestamp `json:"timestamp"`
	DownloadBps float64   `json:"download_bps"`
	UploadBps   float64   `json:"upload_bps"`
}

// ID is an entity identifier sent as a JSON number or string.
// Numbers are kept in base-10.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Timestamp is a point in time sent as unix milliseconds or RFC3339.
type Timestamp int64

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		*ts = Timestamp(t.UnixMilli())
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*ts = Timestamp(ms)
	return nil
}
