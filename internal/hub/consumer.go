package hub

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/netpulse/internal/model"
	"github.com/rickgao/netpulse/internal/reconcile"
	"github.com/rickgao/netpulse/internal/scheduler"
	"github.com/rickgao/netpulse/internal/series"
	"github.com/rickgao/netpulse/internal/status"
	"github.com/rickgao/netpulse/internal/subscription"
)

// ErrConsumerClosed is returned by operations on a closed consumer.
var ErrConsumerClosed = errors.New("consumer closed")

// ConsumerOptions configures a consumer.
type ConsumerOptions struct {
	// Visible reports whether the view is currently shown. Nil means always.
	Visible func() bool
	// Frames overrides the frame source. Nil uses clock frames.
	Frames scheduler.FrameSource
}

// Consumer is one view's handle on the hub.
type Consumer struct {
	id     string
	hub    *Hub
	store  *status.Store
	sched  *scheduler.Scheduler
	logger *slog.Logger

	// Held for the whole flush so Close waits for an in-flight render.
	flushMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	registered bool
	scope      subscription.Scope
	onBatch    []func(scheduler.Batch)
	reconciler *reconcile.Reconciler
	series     map[model.EntityID]*series.Buffer
}

func newConsumer(id string, h *Hub, opts ConsumerOptions) *Consumer {
	logger := h.logger.With("consumer", id)
	c := &Consumer{
		id:         id,
		hub:        h,
		store:      status.NewStore(),
		logger:     logger,
		registered: true,
		series:     make(map[model.EntityID]*series.Buffer),
	}

	frames := opts.Frames
	if frames == nil {
		frames = scheduler.ClockFrames{Clock: h.clock, Interval: h.cfg.FrameInterval}
	}
	schedOpts := []scheduler.Option{
		scheduler.WithClock(h.clock),
		scheduler.WithFrames(frames),
		scheduler.WithSkipHook(func(reason string) {
			h.metrics.FlushSkipped(id, reason)
		}),
	}
	if opts.Visible != nil {
		schedOpts = append(schedOpts, scheduler.WithVisibility(opts.Visible))
	}
	c.sched = scheduler.New(h.cfg.Scheduler, c.flush, logger, schedOpts...)

	return c
}

// ID returns the consumer id.
func (c *Consumer) ID() string {
	return c.id
}

// Store returns the consumer's status store.
func (c *Consumer) Store() *status.Store {
	return c.store
}

// Subscribe replaces the consumer's entity set. An empty set pauses updates.
func (c *Consumer) Subscribe(ids []model.EntityID, scope subscription.Scope) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConsumerClosed
	}
	needRegister := !c.registered
	c.registered = true
	c.scope = scope
	c.mu.Unlock()

	if needRegister {
		c.hub.registry.Register(c.id)
	}
	c.hub.registry.Subscribe(c.id, scope, ids)
	c.hub.metrics.SetSubscribedEntities(c.hub.registry.Stats().Entities)
	return nil
}

// Unsubscribe withdraws the consumer's interest. Idempotent, and safe
// after Close.
func (c *Consumer) Unsubscribe() {
	c.mu.Lock()
	wasRegistered := c.registered
	c.registered = false
	c.scope = subscription.Scope{}
	c.mu.Unlock()

	if !wasRegistered {
		return
	}
	c.hub.registry.Unsubscribe(c.id)
	c.hub.metrics.SetSubscribedEntities(c.hub.registry.Stats().Entities)
}

// Scope returns the scope of the current subscription.
func (c *Consumer) Scope() subscription.Scope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope
}

// OnBatch registers fn to run after each flush, on the flush goroutine.
func (c *Consumer) OnBatch(fn func(scheduler.Batch)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBatch = append(c.onBatch, fn)
}

// AttachReconciler binds a render surface. Flushes then patch it and
// refresh counters computed from this consumer's store.
func (c *Consumer) AttachReconciler(surface reconcile.Surface, counters []reconcile.Counter) *reconcile.Reconciler {
	r := reconcile.New(surface, c.store, counters, c.logger)

	c.mu.Lock()
	c.reconciler = r
	c.mu.Unlock()

	return r
}

// InvalidateRenderCache drops the reconciler's node cache. Call on filter,
// page, sort or layout change.
func (c *Consumer) InvalidateRenderCache() {
	c.mu.Lock()
	r := c.reconciler
	c.mu.Unlock()

	if r != nil {
		r.InvalidateCache()
	}
}

// Counts evaluates each named predicate over the store.
func (c *Consumer) Counts(preds map[string]status.Predicate) map[string]int {
	out := make(map[string]int, len(preds))
	for name, p := range preds {
		out[name] = c.store.CountBy(p)
	}
	return out
}

// Seed declares entity statuses from a bulk listing. Entities that already
// received telemetry keep it.
func (c *Consumer) Seed(entities []model.Entity) int {
	n := c.store.Seed(entities)

	c.mu.Lock()
	r := c.reconciler
	c.mu.Unlock()
	if r != nil {
		r.InvalidateCache()
		r.RefreshCounters()
	}
	return n
}

// FlushNow forces a flush of the pending batch.
func (c *Consumer) FlushNow() bool {
	return c.sched.FlushNow()
}

// Resume re-arms a flush after the view becomes visible again.
func (c *Consumer) Resume() {
	c.sched.Resume()
}

// Pending returns the number of entities waiting for a flush.
func (c *Consumer) Pending() int {
	return c.sched.Pending()
}

// OpenSeries attaches a live chart buffer for id. Flushed snapshots with
// speeds for id are appended to it. An existing buffer is destroyed first.
func (c *Consumer) OpenSeries(id model.EntityID, chart series.Chart) (*series.Buffer, error) {
	b := series.New(c.hub.cfg.Series, chart, c.logger.With("entity", id))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConsumerClosed
	}
	prev := c.series[id]
	c.series[id] = b
	c.mu.Unlock()

	if prev != nil {
		if err := prev.Destroy(); err != nil {
			c.logger.Warn("failed to release chart", "entity", id, "error", err)
		}
	}
	return b, nil
}

// Series returns the open buffer for id.
func (c *Consumer) Series(id model.EntityID) (*series.Buffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.series[id]
	return b, ok
}

// CloseSeries destroys the buffer for id, if any.
func (c *Consumer) CloseSeries(id model.EntityID) error {
	c.mu.Lock()
	b := c.series[id]
	delete(c.series, id)
	c.mu.Unlock()

	if b == nil {
		return nil
	}
	return b.Destroy()
}

// Close tears the consumer down: interest withdrawn, scheduler stopped,
// charts released, store cleared. Idempotent.
func (c *Consumer) Close() error {
	return c.close(true)
}

func (c *Consumer) close(unregister bool) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasRegistered := c.registered
	c.registered = false
	c.scope = subscription.Scope{}
	buffers := c.series
	c.series = make(map[model.EntityID]*series.Buffer)
	c.onBatch = nil
	c.reconciler = nil
	c.mu.Unlock()

	c.sched.Stop()
	if unregister {
		if wasRegistered {
			c.hub.registry.Unsubscribe(c.id)
			c.hub.metrics.SetSubscribedEntities(c.hub.registry.Stats().Entities)
		}
		c.hub.remove(c)
	}

	var errs []error
	for id, b := range buffers {
		if err := b.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("series %s: %w", id, err))
		}
	}
	c.store.Reset()

	c.logger.Debug("consumer closed")
	return errors.Join(errs...)
}

// deliver applies snap to the store and queues it for rendering.
func (c *Consumer) deliver(snap model.Snapshot) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	prev, known, err := c.store.Replace(snap)
	if err != nil {
		c.logger.Warn("dropping malformed snapshot", "entity", snap.EntityID, "error", err)
		return
	}
	c.sched.PushChange(snap, prev, known)
}

// flush runs on the scheduler's goroutine.
func (c *Consumer) flush(b scheduler.Batch) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.hub.metrics.FlushSkipped(c.id, "closed")
		return
	}
	r := c.reconciler
	callbacks := make([]func(scheduler.Batch), len(c.onBatch))
	copy(callbacks, c.onBatch)
	buffers := make(map[model.EntityID]*series.Buffer, len(c.series))
	for id, buf := range c.series {
		buffers[id] = buf
	}
	c.mu.Unlock()

	if r != nil {
		res := r.ReconcileBatch(b)
		c.hub.metrics.Reconciled(c.id, res.Patched, res.Lookups, res.Skipped, res.Refiltered)
	}

	for _, id := range b.IDs() {
		buf, ok := buffers[id]
		if !ok {
			continue
		}
		snap := b.Snapshots[id]
		if !snap.Fields().Has(model.FieldSpeed) {
			continue
		}
		ts := snap.ReceivedAt
		if ts.IsZero() {
			ts = b.FlushedAt
		}
		point := model.SeriesPoint{
			Timestamp:   ts.UnixMilli(),
			DownloadBps: snap.Download(),
			UploadBps:   snap.Upload(),
		}
		if err := buf.AppendLive(point); err != nil && !errors.Is(err, series.ErrDestroyed) {
			c.logger.Warn("failed to append series point", "entity", id, "error", err)
		}
	}

	for _, fn := range callbacks {
		fn(b)
	}

	c.hub.metrics.Flushed(c.id)
}
