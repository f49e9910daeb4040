package scheduler

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/rickgao/netpulse/internal/model"
)

// Batch is the coalesced set of snapshots between two flushes.
type Batch struct {
	Snapshots map[model.EntityID]model.Snapshot
	// Prior is each entity's status before the first snapshot of the batch.
	// Entities the store did not know are absent.
	Prior     map[model.EntityID]model.Status
	Transport model.TransportStatus
	FlushedAt time.Time
}

// StatusChanged reports whether id's status differs from the one it had
// before the batch. An entity with no prior status counts as changed.
func (b Batch) StatusChanged(id model.EntityID) bool {
	prev, ok := b.Prior[id]
	return !ok || prev != b.Snapshots[id].Status
}

// Len returns the number of entities in the batch.
func (b Batch) Len() int {
	return len(b.Snapshots)
}

// IDs returns the batch's entity IDs in ascending order.
func (b Batch) IDs() []model.EntityID {
	ids := make([]model.EntityID, 0, len(b.Snapshots))
	for id := range b.Snapshots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FlushFunc applies a batch to a view.
type FlushFunc func(Batch)

// Config holds scheduler configuration.
type Config struct {
	MinInterval time.Duration // Minimum time between two flushes
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinInterval: 1 * time.Second,
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock. Defaults to the real clock.
func WithClock(c quartz.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithFrames sets the frame source. Defaults to ClockFrames on the scheduler clock.
func WithFrames(f FrameSource) Option {
	return func(s *Scheduler) {
		s.frames = f
	}
}

// WithVisibility sets the predicate consulted at flush time.
func WithVisibility(visible func() bool) Option {
	return func(s *Scheduler) {
		s.visible = visible
	}
}

// WithSkipHook is called with a reason whenever a due flush is skipped.
func WithSkipHook(fn func(reason string)) Option {
	return func(s *Scheduler) {
		s.onSkip = fn
	}
}

// Scheduler coalesces snapshots and decides when a view renders them.
type Scheduler struct {
	cfg     Config
	flush   FlushFunc
	clock   quartz.Clock
	frames  FrameSource
	visible func() bool
	onSkip  func(reason string)
	logger  *slog.Logger

	// Serializes flush callbacks
	flushMu sync.Mutex

	mu          sync.Mutex
	pending     map[model.EntityID]model.Snapshot
	prior       map[model.EntityID]model.Status
	transport   model.TransportStatus
	statusDirty bool
	armed       bool
	cancel      func()
	lastFlush   time.Time
	stopped     bool
}

// New creates a Scheduler calling flush with each batch.
func New(cfg Config, flush FlushFunc, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cfg:     cfg,
		flush:   flush,
		logger:  logger,
		pending: make(map[model.EntityID]model.Snapshot),
		prior:   make(map[model.EntityID]model.Status),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = quartz.NewReal()
	}
	if s.frames == nil {
		s.frames = ClockFrames{Clock: s.clock, Interval: DefaultFrameInterval}
	}
	return s
}

// Push adds snap to the pending batch, replacing any earlier snapshot for
// the same entity, and arms a flush.
func (s *Scheduler) Push(snap model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.pending[snap.EntityID] = snap
	s.armLocked()
}

// PushChange is Push for a snapshot that replaced prev in the store. The
// status prev carried is kept as the batch prior unless the entity is
// already pending.
func (s *Scheduler) PushChange(snap, prev model.Snapshot, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if _, pending := s.pending[snap.EntityID]; !pending && known {
		s.prior[snap.EntityID] = prev.Status
	}
	s.pending[snap.EntityID] = snap
	s.armLocked()
}

// SetTransportStatus records the transport status carried on batches.
// A change arms a flush so the view can render the new state.
func (s *Scheduler) SetTransportStatus(st model.TransportStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || st == s.transport {
		return
	}
	s.transport = st
	s.statusDirty = true
	s.armLocked()
}

// Resume re-arms a flush if work accumulated while the view was hidden.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || (len(s.pending) == 0 && !s.statusDirty) {
		return
	}
	s.armLocked()
}

// FlushNow flushes immediately, ignoring the minimum interval. It still
// respects visibility. Reports whether a batch was delivered.
func (s *Scheduler) FlushNow() bool {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.armed = false
	s.mu.Unlock()

	return s.run()
}

// Pending returns the number of entities waiting for the next flush.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels any scheduled flush and drops later pushes. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.armed = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.pending = make(map[model.EntityID]model.Snapshot)
	s.prior = make(map[model.EntityID]model.Status)
}

// armLocked schedules the next flush unless one is already scheduled.
func (s *Scheduler) armLocked() {
	if s.armed {
		return
	}
	s.armed = true

	wait := s.cfg.MinInterval - s.clock.Since(s.lastFlush)
	if wait > 0 && !s.lastFlush.IsZero() {
		t := s.clock.AfterFunc(wait, s.requestFrame, "scheduler", "throttle")
		s.cancel = func() { t.Stop("scheduler", "throttle") }
		return
	}
	s.cancel = s.frames.RequestFrame(s.fire)
}

// requestFrame runs once the minimum interval has elapsed.
func (s *Scheduler) requestFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || !s.armed {
		return
	}
	s.cancel = s.frames.RequestFrame(s.fire)
}

// fire is the frame callback.
func (s *Scheduler) fire() {
	s.mu.Lock()
	if !s.armed {
		s.mu.Unlock()
		return
	}
	s.armed = false
	s.cancel = nil
	s.mu.Unlock()

	s.run()
}

// run delivers the pending batch if there is one and the view is visible.
func (s *Scheduler) run() bool {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if s.stopped || (len(s.pending) == 0 && !s.statusDirty) {
		s.mu.Unlock()
		return false
	}
	if s.visible != nil && !s.visible() {
		n := len(s.pending)
		s.mu.Unlock()
		s.logger.Debug("view hidden, keeping batch", "pending", n)
		if s.onSkip != nil {
			s.onSkip("hidden")
		}
		return false
	}

	now := s.clock.Now("scheduler", "flush")
	batch := Batch{
		Snapshots: s.pending,
		Prior:     s.prior,
		Transport: s.transport,
		FlushedAt: now,
	}
	s.pending = make(map[model.EntityID]model.Snapshot)
	s.prior = make(map[model.EntityID]model.Status)
	s.statusDirty = false
	s.lastFlush = now
	s.mu.Unlock()

	s.flush(batch)
	return true
}
