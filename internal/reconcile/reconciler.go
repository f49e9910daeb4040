package reconcile

import (
	"log/slog"
	"sync"

	"github.com/rickgao/netpulse/internal/model"
	"github.com/rickgao/netpulse/internal/scheduler"
	"github.com/rickgao/netpulse/internal/status"
)

// Node is a rendered element for one entity.
type Node interface {
	// PatchTelemetry updates the telemetry-driven parts of the node only.
	PatchTelemetry(snap model.Snapshot)
}

// Surface is the render target of a view.
type Surface interface {
	// Lookup finds the rendered node for id, if it is currently rendered.
	Lookup(id model.EntityID) (Node, bool)
	// FilterFields returns the telemetry fields the active filter depends on.
	FilterFields() model.Field
	// Refilter re-evaluates the active filter against current statuses.
	Refilter()
	// WriteCounters replaces the displayed counters.
	WriteCounters(counts map[string]int)
}

// Counter is a named count over the status store.
type Counter struct {
	Name  string
	Match status.Predicate
}

// DefaultCounters returns the counters shown by entity list views.
func DefaultCounters() []Counter {
	return []Counter{
		{Name: "total", Match: status.Any},
		{Name: "online", Match: status.IsOnline},
		{Name: "offline", Match: status.IsOffline},
		{Name: "detected_no_queue", Match: status.IsDetectedNoQueue},
	}
}

// Result summarizes one ReconcileBatch call.
type Result struct {
	Patched    int  // Nodes patched
	Skipped    int  // Batch entities with no rendered node
	Lookups    int  // Surface lookups performed
	Refiltered bool // Whether the surface was asked to refilter
}

// Reconciler owns the render cache of one view.
type Reconciler struct {
	surface  Surface
	store    *status.Store
	counters []Counter
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[model.EntityID]Node // nil value caches a miss
}

// New creates a Reconciler for surface, reading counters from store.
func New(surface Surface, store *status.Store, counters []Counter, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		surface:  surface,
		store:    store,
		counters: counters,
		logger:   logger,
		cache:    make(map[model.EntityID]Node),
	}
}

// ReconcileBatch applies b to the surface.
func (r *Reconciler) ReconcileBatch(b scheduler.Batch) Result {
	r.mu.Lock()

	var res Result
	var changed model.Field

	for _, id := range b.IDs() {
		snap := b.Snapshots[id]

		node, cached := r.cache[id]
		if !cached {
			res.Lookups++
			if n, ok := r.surface.Lookup(id); ok {
				node = n
			}
			r.cache[id] = node
		}

		if b.StatusChanged(id) {
			changed |= model.FieldStatus
		}
		changed |= snap.Fields() &^ model.FieldStatus

		if node == nil {
			res.Skipped++
			continue
		}
		node.PatchTelemetry(snap)
		res.Patched++
	}

	r.writeCountersLocked()
	r.mu.Unlock()

	// Refilter runs unlocked: render hooks call back into InvalidateCache.
	if b.Len() > 0 && r.surface.FilterFields()&changed != 0 {
		r.surface.Refilter()
		r.InvalidateCache()
		res.Refiltered = true
	}

	r.logger.Debug("batch reconciled",
		"entities", b.Len(),
		"patched", res.Patched,
		"skipped", res.Skipped,
		"lookups", res.Lookups,
		"refiltered", res.Refiltered,
	)
	return res
}

// RefreshCounters recomputes counters without a batch.
func (r *Reconciler) RefreshCounters() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeCountersLocked()
}

// InvalidateCache drops every cached node and miss.
// Called on filter, page, sort or layout change and on bulk reload.
func (r *Reconciler) InvalidateCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked()
}

// CacheSize returns the number of cached entries, hits and misses.
func (r *Reconciler) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

func (r *Reconciler) invalidateLocked() {
	r.cache = make(map[model.EntityID]Node)
}

func (r *Reconciler) writeCountersLocked() {
	if len(r.counters) == 0 {
		return
	}
	counts := make(map[string]int, len(r.counters))
	for _, c := range r.counters {
		counts[c.Name] = r.store.CountBy(c.Match)
	}
	r.surface.WriteCounters(counts)
}
