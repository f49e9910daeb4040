package status

import (
	"sort"
	"sync"

	"github.com/rickgao/netpulse/internal/model"
)

// Predicate selects snapshots for CountBy.
type Predicate func(model.Snapshot) bool

// Store is a thread-safe map from entity ID to its last snapshot.
type Store struct {
	mu      sync.RWMutex
	entries map[model.EntityID]model.Snapshot
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[model.EntityID]model.Snapshot),
	}
}

// Apply records s as the latest snapshot for its entity.
// Malformed snapshots are rejected without touching any entry.
func (s *Store) Apply(snap model.Snapshot) error {
	_, _, err := s.Replace(snap)
	return err
}

// Replace is Apply that also returns the entry it replaced, if any.
func (s *Store) Replace(snap model.Snapshot) (prev model.Snapshot, known bool, err error) {
	if err := snap.Validate(); err != nil {
		return model.Snapshot{}, false, err
	}

	s.mu.Lock()
	prev, known = s.entries[snap.EntityID]
	s.entries[snap.EntityID] = snap
	s.mu.Unlock()
	return prev, known, nil
}

// Seed sets the listing status for entities that have no entry yet.
// Entities already reported by telemetry keep their snapshot.
func (s *Store) Seed(entities []model.Entity) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seeded := 0
	for _, e := range entities {
		if e.ID == "" || !e.Status.Valid() {
			continue
		}
		if _, ok := s.entries[e.ID]; ok {
			continue
		}
		s.entries[e.ID] = model.Snapshot{
			EntityID: e.ID,
			Scope:    e.Scope,
			Status:   e.Status,
		}
		seeded++
	}
	return seeded
}

// Get returns the last snapshot for id, or an offline sentinel.
func (s *Store) Get(id model.EntityID) model.Snapshot {
	if snap, ok := s.Lookup(id); ok {
		return snap
	}
	return model.OfflineSnapshot(id)
}

// Lookup returns the last snapshot for id and whether one exists.
func (s *Store) Lookup(id model.EntityID) (model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.entries[id]
	return snap, ok
}

// CountBy returns the number of known entities matching pred.
func (s *Store) CountBy(pred Predicate) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, snap := range s.entries {
		if pred(snap) {
			n++
		}
	}
	return n
}

// Len returns the number of known entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IDs returns all known entity IDs in ascending order.
func (s *Store) IDs() []model.EntityID {
	s.mu.RLock()
	ids := make([]model.EntityID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Forget removes the entry for id.
func (s *Store) Forget(id model.EntityID) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Reset removes all entries. Used on consumer teardown.
func (s *Store) Reset() {
	s.mu.Lock()
	s.entries = make(map[model.EntityID]model.Snapshot)
	s.mu.Unlock()
}

// Common predicates.

// IsOnline matches entities reporting online. detected_no_queue is not online.
func IsOnline(s model.Snapshot) bool { return s.Status == model.StatusOnline }

// IsOffline matches offline entities.
func IsOffline(s model.Snapshot) bool { return s.Status == model.StatusOffline }

// IsDetectedNoQueue matches entities seen without a queue.
func IsDetectedNoQueue(s model.Snapshot) bool { return s.Status == model.StatusDetectedNoQueue }

// Any matches every entity.
func Any(model.Snapshot) bool { return true }
