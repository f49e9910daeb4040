package series

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/netpulse/internal/model"
)

// Default capacities.
const (
	DefaultLiveCapacity       = 60
	DefaultHistoricalCapacity = 500
)

// ErrDestroyed is returned by operations on a destroyed buffer.
var ErrDestroyed = errors.New("series buffer destroyed")

// Mode is the buffer's lifecycle state.
type Mode int

const (
	ModeUninitialized Mode = iota
	ModeLive
	ModeHistorical
	ModeDestroyed
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeHistorical:
		return "historical"
	case ModeDestroyed:
		return "destroyed"
	default:
		return "uninitialized"
	}
}

// Chart is the rendering resource attached to a buffer.
type Chart interface {
	Render(points []model.SeriesPoint)
	Release() error
}

// Config holds buffer capacities.
type Config struct {
	LiveCapacity       int
	HistoricalCapacity int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LiveCapacity:       DefaultLiveCapacity,
		HistoricalCapacity: DefaultHistoricalCapacity,
	}
}

// Buffer is the point window of one chart instance.
type Buffer struct {
	cfg    Config
	chart  Chart
	logger *slog.Logger

	mu     sync.Mutex
	mode   Mode
	points []model.SeriesPoint
}

// New creates a Buffer drawing into chart. chart may be nil.
func New(cfg Config, chart Chart, logger *slog.Logger) *Buffer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LiveCapacity <= 0 {
		cfg.LiveCapacity = DefaultLiveCapacity
	}
	if cfg.HistoricalCapacity <= 0 {
		cfg.HistoricalCapacity = DefaultHistoricalCapacity
	}

	return &Buffer{
		cfg:    cfg,
		chart:  chart,
		logger: logger,
	}
}

// AppendLive adds p at the tail, entering live mode if needed.
func (b *Buffer) AppendLive(p model.SeriesPoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.mode {
	case ModeDestroyed:
		return ErrDestroyed
	case ModeLive:
	default:
		b.mode = ModeLive
		b.points = make([]model.SeriesPoint, 0, b.cfg.LiveCapacity)
	}

	if len(b.points) >= b.cfg.LiveCapacity {
		drop := len(b.points) - b.cfg.LiveCapacity + 1
		b.points = append(b.points[:0], b.points[drop:]...)
	}
	b.points = append(b.points, p)

	b.renderLocked()
	return nil
}

// LoadHistorical replaces the buffer with points, entering historical mode.
// A positive bucket averages points per bucket width.
func (b *Buffer) LoadHistorical(points []model.SeriesPoint, bucket time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.mode == ModeDestroyed {
		return ErrDestroyed
	}

	var out []model.SeriesPoint
	if bucket > 0 {
		out = Aggregate(points, bucket)
	} else {
		out = make([]model.SeriesPoint, len(points))
		copy(out, points)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	}
	if len(out) > b.cfg.HistoricalCapacity {
		out = out[len(out)-b.cfg.HistoricalCapacity:]
	}

	b.mode = ModeHistorical
	b.points = out

	b.renderLocked()
	return nil
}

// Points returns a copy of the current points.
func (b *Buffer) Points() []model.SeriesPoint {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.SeriesPoint, len(b.points))
	copy(out, b.points)
	return out
}

// Mode returns the current mode.
func (b *Buffer) Mode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// Destroy releases the chart. Safe to call more than once; only the first
// call releases.
func (b *Buffer) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.mode == ModeDestroyed {
		return nil
	}
	b.mode = ModeDestroyed
	b.points = nil

	if b.chart == nil {
		return nil
	}
	if err := b.chart.Release(); err != nil {
		return fmt.Errorf("release chart: %w", err)
	}
	return nil
}

func (b *Buffer) renderLocked() {
	if b.chart == nil {
		return
	}
	out := make([]model.SeriesPoint, len(b.points))
	copy(out, b.points)
	b.chart.Render(out)
}

// Aggregate averages points into buckets of width w keyed by
// floor(timestamp / w) * w, one point per non-empty bucket, ascending.
func Aggregate(points []model.SeriesPoint, w time.Duration) []model.SeriesPoint {
	widthMs := w.Milliseconds()
	if widthMs <= 0 {
		widthMs = 1
	}

	type acc struct {
		down, up float64
		n        int
	}
	buckets := make(map[int64]*acc)
	for _, p := range points {
		key := floorDiv(p.Timestamp, widthMs) * widthMs
		a, ok := buckets[key]
		if !ok {
			a = &acc{}
			buckets[key] = a
		}
		a.down += p.DownloadBps
		a.up += p.UploadBps
		a.n++
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]model.SeriesPoint, 0, len(keys))
	for _, k := range keys {
		a := buckets[k]
		out = append(out, model.SeriesPoint{
			Timestamp:   k,
			DownloadBps: a.down / float64(a.n),
			UploadBps:   a.up / float64(a.n),
		})
	}
	return out
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
