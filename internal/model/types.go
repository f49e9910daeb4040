package model

import (
	"errors"
	"fmt"
	"time"
)

// EntityID identifies a subscriber connection or a router interface.
type EntityID string

// Status is the server-reported liveness of an entity.
type Status string

const (
	StatusOnline          Status = "online"
	StatusOffline         Status = "offline"
	StatusDetectedNoQueue Status = "detected_no_queue" // Seen on the router but no queue assigned
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusDetectedNoQueue:
		return true
	}
	return false
}

// SortRank orders statuses for sorting. detected_no_queue ranks with online
// even though it is not counted as online.
func (s Status) SortRank() int {
	switch s {
	case StatusOnline, StatusDetectedNoQueue:
		return 0
	default:
		return 1
	}
}

// ParseStatus converts a wire status value to a Status.
// Booleans map to online/offline.
func ParseStatus(v any) (Status, error) {
	switch x := v.(type) {
	case bool:
		if x {
			return StatusOnline, nil
		}
		return StatusOffline, nil
	case string:
		s := Status(x)
		if !s.Valid() {
			return "", fmt.Errorf("unknown status %q", x)
		}
		return s, nil
	case nil:
		return "", errors.New("missing status")
	default:
		return "", fmt.Errorf("unsupported status type %T", v)
	}
}

// TransportStatus is the connectivity state of the shared transport.
type TransportStatus int

const (
	TransportDisconnected TransportStatus = iota
	TransportConnected
	TransportReconnecting
)

func (s TransportStatus) String() string {
	switch s {
	case TransportConnected:
		return "connected"
	case TransportReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Entity is an entity declared by a bulk listing. Telemetry only annotates it.
type Entity struct {
	ID     EntityID
	Scope  string // Router ID for interfaces, empty for connections
	Name   string // Display name (username, interface name)
	Status Status // Status at listing time
}

// Field identifies a telemetry-affected attribute of an entity.
type Field uint8

const (
	FieldStatus Field = 1 << iota
	FieldSpeed
	FieldLastSeen
)

// Has reports whether every bit of other is set in f.
func (f Field) Has(other Field) bool {
	return f&other == other
}

// Snapshot is one telemetry payload for one entity.
// A newer snapshot replaces an older one wholesale.
type Snapshot struct {
	EntityID    EntityID
	Scope       string // Router ID for interface telemetry
	Status      Status
	UploadBps   *float64
	DownloadBps *float64
	LastSeen    *time.Time
	ReceivedAt  time.Time
}

// ErrMalformedSnapshot is returned for snapshots missing required fields.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Validate checks required fields.
func (s Snapshot) Validate() error {
	if s.EntityID == "" {
		return fmt.Errorf("%w: empty entity id", ErrMalformedSnapshot)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: entity %s: invalid status %q", ErrMalformedSnapshot, s.EntityID, s.Status)
	}
	return nil
}

// Fields returns the set of telemetry fields carried by the snapshot.
func (s Snapshot) Fields() Field {
	f := FieldStatus
	if s.UploadBps != nil || s.DownloadBps != nil {
		f |= FieldSpeed
	}
	if s.LastSeen != nil {
		f |= FieldLastSeen
	}
	return f
}

// Upload returns the upload rate or 0.
func (s Snapshot) Upload() float64 {
	if s.UploadBps == nil {
		return 0
	}
	return *s.UploadBps
}

// Download returns the download rate or 0.
func (s Snapshot) Download() float64 {
	if s.DownloadBps == nil {
		return 0
	}
	return *s.DownloadBps
}

// OfflineSnapshot is the sentinel returned for entities with no telemetry yet.
func OfflineSnapshot(id EntityID) Snapshot {
	return Snapshot{EntityID: id, Status: StatusOffline}
}

// SeriesPoint is one sample of a bandwidth chart.
type SeriesPoint struct {
	Timestamp   int64   `json:"timestamp"` // Unix milliseconds
	DownloadBps float64 `json:"download_bps"`
	UploadBps   float64 `json:"upload_bps"`
}

// Rate returns a pointer to v for optional snapshot fields.
func Rate(v float64) *float64 {
	return &v
}
