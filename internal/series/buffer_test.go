package series

import (
	"errors"
	"testing"
	"time"

	"github.com/rickgao/netpulse/internal/model"
)

type fakeChart struct {
	renders    int
	last       []model.SeriesPoint
	releases   int
	releaseErr error
}

func (c *fakeChart) Render(p []model.SeriesPoint) {
	c.renders++
	c.last = p
}

func (c *fakeChart) Release() error {
	c.releases++
	return c.releaseErr
}

func TestAppendLive_Capacity(t *testing.T) {
	chart := &fakeChart{}
	b := New(Config{LiveCapacity: 3, HistoricalCapacity: 10}, chart, nil)

	for i := int64(1); i <= 5; i++ {
		if err := b.AppendLive(model.SeriesPoint{Timestamp: i}); err != nil {
			t.Fatalf("AppendLive() error = %v", err)
		}
		if n := len(b.Points()); n > 3 {
			t.Fatalf("len(Points()) = %d, exceeds capacity 3", n)
		}
	}

	got := b.Points()
	want := []int64{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("len(Points()) = %d, want %d", len(got), len(want))
	}
	for i, ts := range want {
		if got[i].Timestamp != ts {
			t.Errorf("Points()[%d].Timestamp = %d, want %d", i, got[i].Timestamp, ts)
		}
	}
	if b.Mode() != ModeLive {
		t.Errorf("Mode() = %v, want %v", b.Mode(), ModeLive)
	}
	if chart.renders != 5 {
		t.Errorf("renders = %d, want 5", chart.renders)
	}
}

func TestLoadHistorical_BucketMean(t *testing.T) {
	b := New(DefaultConfig(), nil, nil)

	base := int64(1_700_000_000_000)
	bucket := 30 * time.Minute
	start := base - base%bucket.Milliseconds()
	points := []model.SeriesPoint{
		{Timestamp: start + 60_000, DownloadBps: 100, UploadBps: 10},
		{Timestamp: start + 600_000, DownloadBps: 300, UploadBps: 30},
	}

	if err := b.LoadHistorical(points, bucket); err != nil {
		t.Fatalf("LoadHistorical() error = %v", err)
	}

	got := b.Points()
	if len(got) != 1 {
		t.Fatalf("len(Points()) = %d, want 1", len(got))
	}
	if got[0].DownloadBps != 200 {
		t.Errorf("DownloadBps = %v, want 200", got[0].DownloadBps)
	}
	if got[0].UploadBps != 20 {
		t.Errorf("UploadBps = %v, want 20", got[0].UploadBps)
	}
	if got[0].Timestamp != start {
		t.Errorf("Timestamp = %d, want %d", got[0].Timestamp, start)
	}
	if b.Mode() != ModeHistorical {
		t.Errorf("Mode() = %v, want %v", b.Mode(), ModeHistorical)
	}
}

func TestLoadHistorical_Capacity(t *testing.T) {
	b := New(Config{LiveCapacity: 3, HistoricalCapacity: 4}, nil, nil)

	var points []model.SeriesPoint
	for i := int64(10); i > 0; i-- {
		points = append(points, model.SeriesPoint{Timestamp: i})
	}
	if err := b.LoadHistorical(points, 0); err != nil {
		t.Fatalf("LoadHistorical() error = %v", err)
	}

	got := b.Points()
	if len(got) != 4 {
		t.Fatalf("len(Points()) = %d, want 4", len(got))
	}
	if got[0].Timestamp != 7 || got[3].Timestamp != 10 {
		t.Errorf("Points() = %v, want newest four ascending", got)
	}
}

func TestModeSwitchDiscards(t *testing.T) {
	b := New(DefaultConfig(), nil, nil)

	_ = b.AppendLive(model.SeriesPoint{Timestamp: 1})
	_ = b.AppendLive(model.SeriesPoint{Timestamp: 2})
	_ = b.LoadHistorical([]model.SeriesPoint{{Timestamp: 100}}, 0)
	if got := b.Points(); len(got) != 1 || got[0].Timestamp != 100 {
		t.Errorf("historical Points() = %v, want only loaded point", got)
	}

	_ = b.AppendLive(model.SeriesPoint{Timestamp: 3})
	if got := b.Points(); len(got) != 1 || got[0].Timestamp != 3 {
		t.Errorf("live Points() = %v, want only appended point", got)
	}
}

func TestDestroy(t *testing.T) {
	chart := &fakeChart{}
	b := New(DefaultConfig(), chart, nil)
	_ = b.AppendLive(model.SeriesPoint{Timestamp: 1})

	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if err := b.Destroy(); err != nil {
		t.Fatalf("second Destroy() error = %v", err)
	}
	if chart.releases != 1 {
		t.Errorf("releases = %d, want 1", chart.releases)
	}
	if err := b.AppendLive(model.SeriesPoint{}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("AppendLive() after destroy error = %v, want %v", err, ErrDestroyed)
	}
	if err := b.LoadHistorical(nil, 0); !errors.Is(err, ErrDestroyed) {
		t.Errorf("LoadHistorical() after destroy error = %v, want %v", err, ErrDestroyed)
	}
}

func TestDestroy_ReleaseError(t *testing.T) {
	chart := &fakeChart{releaseErr: errors.New("boom")}
	b := New(DefaultConfig(), chart, nil)

	if err := b.Destroy(); err == nil {
		t.Error("Destroy() error = nil, want release error")
	}
	if b.Mode() != ModeDestroyed {
		t.Errorf("Mode() = %v, want %v", b.Mode(), ModeDestroyed)
	}
}

func TestAggregate(t *testing.T) {
	points := []model.SeriesPoint{
		{Timestamp: 2500, DownloadBps: 4},
		{Timestamp: 500, DownloadBps: 1},
		{Timestamp: 900, DownloadBps: 3},
		{Timestamp: 2100, DownloadBps: 6},
	}
	got := Aggregate(points, time.Second)

	want := []model.SeriesPoint{
		{Timestamp: 0, DownloadBps: 2},
		{Timestamp: 2000, DownloadBps: 5},
	}
	if len(got) != len(want) {
		t.Fatalf("len(Aggregate()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Aggregate()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
