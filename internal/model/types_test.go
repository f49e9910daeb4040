package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    Status
		wantErr bool
	}{
		{"bool true", true, StatusOnline, false},
		{"bool false", false, StatusOffline, false},
		{"online", "online", StatusOnline, false},
		{"offline", "offline", StatusOffline, false},
		{"detected_no_queue", "detected_no_queue", StatusDetectedNoQueue, false},
		{"unknown string", "ONLINE", "", true},
		{"nil", nil, "", true},
		{"number", 1.0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStatus(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStatus(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStatus_SortRank(t *testing.T) {
	if StatusOnline.SortRank() != StatusDetectedNoQueue.SortRank() {
		t.Error("detected_no_queue should sort with online")
	}
	if StatusOnline.SortRank() >= StatusOffline.SortRank() {
		t.Error("online should sort before offline")
	}
}

func TestSnapshot_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s := Snapshot{EntityID: "1", Status: StatusOnline}
		if err := s.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})

	t.Run("empty id", func(t *testing.T) {
		s := Snapshot{Status: StatusOnline}
		if err := s.Validate(); !errors.Is(err, ErrMalformedSnapshot) {
			t.Errorf("Validate() = %v, want ErrMalformedSnapshot", err)
		}
	})

	t.Run("bad status", func(t *testing.T) {
		s := Snapshot{EntityID: "1", Status: "up"}
		if err := s.Validate(); !errors.Is(err, ErrMalformedSnapshot) {
			t.Errorf("Validate() = %v, want ErrMalformedSnapshot", err)
		}
	})
}

func TestSnapshot_Fields(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		s    Snapshot
		want Field
	}{
		{"status only", Snapshot{Status: StatusOffline}, FieldStatus},
		{"speeds", Snapshot{Status: StatusOnline, DownloadBps: Rate(10)}, FieldStatus | FieldSpeed},
		{"all", Snapshot{Status: StatusOnline, UploadBps: Rate(1), LastSeen: &now}, FieldStatus | FieldSpeed | FieldLastSeen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Fields(); got != tt.want {
				t.Errorf("Fields() = %b, want %b", got, tt.want)
			}
		})
	}
}

func TestOfflineSnapshot(t *testing.T) {
	s := OfflineSnapshot("42")
	if s.EntityID != "42" || s.Status != StatusOffline {
		t.Errorf("OfflineSnapshot = %+v", s)
	}
	if s.Upload() != 0 || s.Download() != 0 {
		t.Error("sentinel should carry no rates")
	}
}

func TestTransportStatus_String(t *testing.T) {
	tests := map[TransportStatus]string{
		TransportConnected:    "connected",
		TransportDisconnected: "disconnected",
		TransportReconnecting: "reconnecting",
	}
	for st, want := range tests {
		if got := st.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
