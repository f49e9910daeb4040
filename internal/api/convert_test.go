package api

import (
	"testing"

	"github.com/rickgao/netpulse/internal/model"
)

func TestConnectionsToEntities(t *testing.T) {
	conns := []APIConnection{
		{ID: "1", Username: "alice", Status: true},
		{ID: "2", Username: "bob", Status: false},
		{ID: "3", Username: "", Status: "detected_no_queue"},
		{ID: "4", Username: "dave", Status: "suspended"},
		{ID: "", Username: "ghost", Status: true},
	}

	entities, errs := ConnectionsToEntities(conns)
	if len(entities) != 3 {
		t.Fatalf("entities = %d, want 3", len(entities))
	}
	if len(errs) != 2 {
		t.Errorf("errors = %d, want 2", len(errs))
	}

	tests := []struct {
		idx    int
		id     model.EntityID
		name   string
		status model.Status
	}{
		{0, "1", "alice", model.StatusOnline},
		{1, "2", "bob", model.StatusOffline},
		{2, "3", "3", model.StatusDetectedNoQueue},
	}
	for _, tt := range tests {
		e := entities[tt.idx]
		if e.ID != tt.id || e.Name != tt.name || e.Status != tt.status {
			t.Errorf("entities[%d] = %+v, want id=%s name=%s status=%s", tt.idx, e, tt.id, tt.name, tt.status)
		}
	}
}

func TestInterfacesToEntities(t *testing.T) {
	entities := InterfacesToEntities("r1", []APIInterface{
		{Name: "ether1", Running: true},
		{Name: "", Running: true},
		{Name: "wlan1", Running: false},
	})

	if len(entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(entities))
	}
	if entities[0].Scope != "r1" || entities[0].Status != model.StatusOnline {
		t.Errorf("entities[0] = %+v", entities[0])
	}
	if entities[1].Status != model.StatusOffline {
		t.Errorf("entities[1].Status = %s, want offline", entities[1].Status)
	}
}

func TestEntitiesToSnapshots(t *testing.T) {
	snaps := EntitiesToSnapshots([]model.Entity{{ID: "ether1", Scope: "r1", Status: model.StatusOnline}})
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	if err := snaps[0].Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if snaps[0].Scope != "r1" {
		t.Errorf("Scope = %s, want r1", snaps[0].Scope)
	}
}
