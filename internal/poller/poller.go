package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/netpulse/internal/api"
	"github.com/rickgao/netpulse/internal/metrics"
	"github.com/rickgao/netpulse/internal/model"
)

// ConnectionSource lists subscriber connections.
type ConnectionSource interface {
	ListConnections(ctx context.Context) ([]model.Entity, error)
}

// InterfaceSource lists the interfaces of a router.
type InterfaceSource interface {
	ListInterfaces(ctx context.Context, routerID string) ([]api.APIInterface, error)
}

// Target receives refreshed snapshots.
type Target interface {
	Status() model.TransportStatus
	Inject(snaps []model.Snapshot)
}

// APIConnections adapts the REST client to a ConnectionSource.
type APIConnections struct {
	Client *api.Client
	Logger *slog.Logger
}

func (a APIConnections) ListConnections(ctx context.Context) ([]model.Entity, error) {
	conns, err := a.Client.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	entities, errs := api.ConnectionsToEntities(conns)
	if len(errs) > 0 && a.Logger != nil {
		a.Logger.Warn("skipped connections", "count", len(errs), "first", errs[0])
	}
	return entities, nil
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 30s)
	Concurrency int           // Max concurrent requests (default: 4)
	Timeout     time.Duration // Per-request timeout (default: 10s)
	Routers     []string      // Routers whose interfaces are refreshed
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

// Sources are the directories the poller reads from. Either may be nil.
type Sources struct {
	Connections ConnectionSource
	Interfaces  InterfaceSource
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock overrides the clock driving the poll interval.
func WithClock(c quartz.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// Poller periodically refreshes statuses while the transport is down.
type Poller struct {
	cfg     Config
	src     Sources
	target  Target
	metrics *metrics.Metrics
	clock   quartz.Clock
	logger  *slog.Logger

	cycles atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, src Sources, target Target, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	p := &Poller{
		cfg:     cfg,
		src:     src,
		target:  target,
		metrics: m,
		clock:   quartz.NewReal(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("status poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
		"routers", len(p.cfg.Routers),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("status poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cycles returns the number of completed refreshes.
func (p *Poller) Cycles() int64 {
	return p.cycles.Load()
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := p.clock.NewTicker(p.cfg.Interval, "poller")
	defer ticker.Stop()

	p.maybePoll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.maybePoll()
		}
	}
}

func (p *Poller) maybePoll() {
	if st := p.target.Status(); st == model.TransportConnected {
		p.logger.Debug("transport connected, skipping refresh")
		return
	}
	if err := p.Poll(p.ctx); err != nil && p.ctx.Err() == nil {
		p.logger.Warn("status refresh failed", "error", err)
	}
}

// Poll fetches every source once and injects the result. Source failures
// are logged; snapshots from the sources that succeeded are still injected.
func (p *Poller) Poll(ctx context.Context) error {
	start := p.clock.Now()

	var (
		mu       sync.Mutex
		snaps    []model.Snapshot
		failures atomic.Int64
	)
	collect := func(entities []model.Entity) {
		mu.Lock()
		snaps = append(snaps, api.EntitiesToSnapshots(entities)...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	if p.src.Connections != nil {
		g.Go(func() error {
			entities, err := p.fetchConnections(gctx)
			if err != nil {
				p.logger.Warn("failed to refresh connections", "error", err)
				failures.Add(1)
				return nil
			}
			collect(entities)
			return nil
		})
	}
	if p.src.Interfaces != nil {
		for _, routerID := range p.cfg.Routers {
			g.Go(func() error {
				entities, err := p.fetchInterfaces(gctx, routerID)
				if err != nil {
					p.logger.Warn("failed to refresh interfaces", "router", routerID, "error", err)
					failures.Add(1)
					return nil
				}
				collect(entities)
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	if len(snaps) > 0 {
		p.target.Inject(snaps)
	}
	p.cycles.Add(1)
	p.metrics.PollRefreshed()

	p.logger.Info("status refresh complete",
		"snapshots", len(snaps),
		"errors", failures.Load(),
		"duration", p.clock.Since(start),
	)

	if n := failures.Load(); n > 0 && len(snaps) == 0 {
		return fmt.Errorf("all %d sources failed", n)
	}
	return nil
}

func (p *Poller) fetchConnections(ctx context.Context) ([]model.Entity, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.src.Connections.ListConnections(ctx)
}

func (p *Poller) fetchInterfaces(ctx context.Context, routerID string) ([]model.Entity, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	ifaces, err := p.src.Interfaces.ListInterfaces(ctx, routerID)
	if err != nil {
		return nil, err
	}
	return api.InterfacesToEntities(routerID, ifaces), nil
}

func (p *Poller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.Timeout)
}
