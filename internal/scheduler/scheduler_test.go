package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/rickgao/netpulse/internal/model"
)

// manualFrames queues frame callbacks until the test ticks them.
type manualFrames struct {
	mu  sync.Mutex
	fns []func()
}

func (f *manualFrames) RequestFrame(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.fns)
	f.fns = append(f.fns, fn)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if idx < len(f.fns) {
			f.fns[idx] = nil
		}
	}
}

func (f *manualFrames) requested() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fn := range f.fns {
		if fn != nil {
			n++
		}
	}
	return n
}

func (f *manualFrames) tick() {
	f.mu.Lock()
	fns := f.fns
	f.fns = nil
	f.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

type recorder struct {
	mu      sync.Mutex
	batches []Batch
}

func (r *recorder) flush(b Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *recorder) last() Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[len(r.batches)-1]
}

func snap(id string, st model.Status) model.Snapshot {
	return model.Snapshot{EntityID: model.EntityID(id), Status: st}
}

func TestScheduler_CoalescesBurst(t *testing.T) {
	mClock := quartz.NewMock(t)
	frames := &manualFrames{}
	rec := &recorder{}
	s := New(DefaultConfig(), rec.flush, nil, WithClock(mClock), WithFrames(frames))
	defer s.Stop()

	for i := 0; i < 100; i++ {
		st := model.StatusOnline
		if i%2 == 1 {
			st = model.StatusOffline
		}
		s.Push(snap("e1", st))
	}
	s.Push(snap("e2", model.StatusOnline))

	if got := frames.requested(); got != 1 {
		t.Fatalf("frames requested = %d, want 1", got)
	}
	frames.tick()

	if rec.count() != 1 {
		t.Fatalf("flushes = %d, want 1", rec.count())
	}
	b := rec.last()
	if b.Len() != 2 {
		t.Errorf("batch len = %d, want 2", b.Len())
	}
	if b.Snapshots["e1"].Status != model.StatusOffline {
		t.Errorf("e1 status = %v, want last pushed %v", b.Snapshots["e1"].Status, model.StatusOffline)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

func TestScheduler_PushChangeKeepsFirstPrior(t *testing.T) {
	frames := &manualFrames{}
	rec := &recorder{}
	s := New(Config{}, rec.flush, nil, WithClock(quartz.NewMock(t)), WithFrames(frames))
	defer s.Stop()

	s.PushChange(snap("e1", model.StatusOffline), snap("e1", model.StatusOnline), true)
	s.PushChange(snap("e1", model.StatusOnline), snap("e1", model.StatusOffline), true)
	s.PushChange(snap("e2", model.StatusOnline), model.Snapshot{}, false)
	frames.tick()

	if rec.count() != 1 {
		t.Fatalf("flushes = %d, want 1", rec.count())
	}
	b := rec.last()
	if got, ok := b.Prior["e1"]; !ok || got != model.StatusOnline {
		t.Errorf("Prior[e1] = %v (%v), want online", got, ok)
	}
	if _, ok := b.Prior["e2"]; ok {
		t.Error("Prior[e2] set for an entity new to the store")
	}
	if b.StatusChanged("e1") {
		t.Error("e1 went online -> offline -> online, want unchanged")
	}
	if !b.StatusChanged("e2") {
		t.Error("new entity e2 should count as changed")
	}

	// Priors do not leak into the next batch.
	s.PushChange(snap("e1", model.StatusOffline), snap("e1", model.StatusOnline), true)
	frames.tick()
	if b := rec.last(); len(b.Prior) != 1 || !b.StatusChanged("e1") {
		t.Errorf("second batch Prior = %v, want only e1 and changed", b.Prior)
	}
}

func TestScheduler_ThrottlesToMinInterval(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mClock := quartz.NewMock(t)
	frames := &manualFrames{}
	rec := &recorder{}
	s := New(Config{MinInterval: time.Second}, rec.flush, nil, WithClock(mClock), WithFrames(frames))
	defer s.Stop()

	s.Push(snap("e1", model.StatusOnline))
	frames.tick()
	if rec.count() != 1 {
		t.Fatalf("flushes = %d, want 1", rec.count())
	}

	s.Push(snap("e1", model.StatusOffline))
	if got := frames.requested(); got != 0 {
		t.Fatalf("frames requested before interval = %d, want 0", got)
	}

	mClock.Advance(999 * time.Millisecond).MustWait(ctx)
	if got := frames.requested(); got != 0 {
		t.Fatalf("frames requested at 999ms = %d, want 0", got)
	}

	mClock.Advance(time.Millisecond).MustWait(ctx)
	if got := frames.requested(); got != 1 {
		t.Fatalf("frames requested at 1s = %d, want 1", got)
	}
	frames.tick()

	if rec.count() != 2 {
		t.Fatalf("flushes = %d, want 2", rec.count())
	}
	if got := rec.last().Snapshots["e1"].Status; got != model.StatusOffline {
		t.Errorf("e1 status = %v, want %v", got, model.StatusOffline)
	}
}

func TestScheduler_HiddenKeepsBatch(t *testing.T) {
	mClock := quartz.NewMock(t)
	frames := &manualFrames{}
	rec := &recorder{}

	var mu sync.Mutex
	visible := false
	skips := 0
	s := New(DefaultConfig(), rec.flush, nil,
		WithClock(mClock),
		WithFrames(frames),
		WithVisibility(func() bool {
			mu.Lock()
			defer mu.Unlock()
			return visible
		}),
		WithSkipHook(func(reason string) {
			if reason != "hidden" {
				t.Errorf("skip reason = %q, want hidden", reason)
			}
			skips++
		}),
	)
	defer s.Stop()

	s.Push(snap("e1", model.StatusOnline))
	frames.tick()
	s.Push(snap("e1", model.StatusOffline))
	s.Push(snap("e2", model.StatusOnline))
	frames.tick()

	if rec.count() != 0 {
		t.Fatalf("flushes while hidden = %d, want 0", rec.count())
	}
	if skips == 0 {
		t.Error("expected skip hook to be called")
	}
	if s.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", s.Pending())
	}

	mu.Lock()
	visible = true
	mu.Unlock()
	s.Resume()
	frames.tick()

	if rec.count() != 1 {
		t.Fatalf("flushes after resume = %d, want 1", rec.count())
	}
	b := rec.last()
	if b.Len() != 2 {
		t.Errorf("batch len = %d, want 2", b.Len())
	}
	if b.Snapshots["e1"].Status != model.StatusOffline {
		t.Errorf("e1 status = %v, want %v", b.Snapshots["e1"].Status, model.StatusOffline)
	}
}

func TestScheduler_FlushNowBypassesInterval(t *testing.T) {
	mClock := quartz.NewMock(t)
	frames := &manualFrames{}
	rec := &recorder{}
	s := New(Config{MinInterval: time.Minute}, rec.flush, nil, WithClock(mClock), WithFrames(frames))
	defer s.Stop()

	s.Push(snap("e1", model.StatusOnline))
	frames.tick()
	s.Push(snap("e2", model.StatusOnline))

	if !s.FlushNow() {
		t.Fatal("FlushNow() = false, want true")
	}
	if rec.count() != 2 {
		t.Fatalf("flushes = %d, want 2", rec.count())
	}
	if s.FlushNow() {
		t.Error("FlushNow() with nothing pending = true, want false")
	}
}

func TestScheduler_TransportStatusArmsFlush(t *testing.T) {
	mClock := quartz.NewMock(t)
	frames := &manualFrames{}
	rec := &recorder{}
	s := New(DefaultConfig(), rec.flush, nil, WithClock(mClock), WithFrames(frames))
	defer s.Stop()

	s.SetTransportStatus(model.TransportConnected)
	frames.tick()

	if rec.count() != 1 {
		t.Fatalf("flushes = %d, want 1", rec.count())
	}
	b := rec.last()
	if b.Len() != 0 {
		t.Errorf("batch len = %d, want 0", b.Len())
	}
	if b.Transport != model.TransportConnected {
		t.Errorf("Transport = %v, want %v", b.Transport, model.TransportConnected)
	}

	// Same status again is not a change.
	s.SetTransportStatus(model.TransportConnected)
	if got := frames.requested(); got != 0 {
		t.Errorf("frames requested = %d, want 0", got)
	}
}

func TestScheduler_StopCancelsPending(t *testing.T) {
	mClock := quartz.NewMock(t)
	frames := &manualFrames{}
	rec := &recorder{}
	s := New(DefaultConfig(), rec.flush, nil, WithClock(mClock), WithFrames(frames))

	s.Push(snap("e1", model.StatusOnline))
	s.Stop()
	s.Stop()
	frames.tick()
	s.Push(snap("e2", model.StatusOnline))

	if rec.count() != 0 {
		t.Errorf("flushes after stop = %d, want 0", rec.count())
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

func TestScheduler_ClockFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mClock := quartz.NewMock(t)
	rec := &recorder{}
	s := New(DefaultConfig(), rec.flush, nil, WithClock(mClock))
	defer s.Stop()

	s.Push(snap("e1", model.StatusOnline))
	if rec.count() != 0 {
		t.Fatal("flush ran synchronously with push")
	}

	d, w := mClock.AdvanceNext()
	w.MustWait(ctx)
	if d != DefaultFrameInterval {
		t.Errorf("frame delay = %v, want %v", d, DefaultFrameInterval)
	}
	if rec.count() != 1 {
		t.Fatalf("flushes = %d, want 1", rec.count())
	}
}

func TestBatch_IDsSorted(t *testing.T) {
	b := Batch{Snapshots: map[model.EntityID]model.Snapshot{
		"c": {}, "a": {}, "b": {},
	}}
	ids := b.IDs()
	want := []model.EntityID{"a", "b", "c"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("IDs()[%d] = %v, want %v", i, ids[i], want[i])
		}
	}
}
