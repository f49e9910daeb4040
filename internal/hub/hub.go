package hub

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/rickgao/netpulse/internal/metrics"
	"github.com/rickgao/netpulse/internal/model"
	"github.com/rickgao/netpulse/internal/router"
	"github.com/rickgao/netpulse/internal/scheduler"
	"github.com/rickgao/netpulse/internal/series"
	"github.com/rickgao/netpulse/internal/subscription"
	"github.com/rickgao/netpulse/internal/transport"
)

// Channel is the transport surface the hub needs.
type Channel interface {
	transport.Emitter
	On(event string, h transport.Handler)
	OnStatus(h transport.StatusHandler)
	Status() model.TransportStatus
}

// Config holds hub configuration.
type Config struct {
	Scheduler     scheduler.Config
	FrameInterval time.Duration
	Series        series.Config
	Router        router.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Scheduler:     scheduler.DefaultConfig(),
		FrameInterval: scheduler.DefaultFrameInterval,
		Series:        series.DefaultConfig(),
		Router:        router.DefaultConfig(),
	}
}

// Stats describes the hub.
type Stats struct {
	Consumers    int
	Subscription subscription.Stats
	Router       router.Stats
	Transport    model.TransportStatus
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock sets the clock used by consumer schedulers.
func WithClock(c quartz.Clock) Option {
	return func(h *Hub) {
		h.clock = c
	}
}

// WithScopeValidator is passed through to the subscription registry.
func WithScopeValidator(fn func(string) bool) Option {
	return func(h *Hub) {
		h.validScope = fn
	}
}

// Hub routes telemetry from one channel to many consumers.
type Hub struct {
	cfg        Config
	ch         Channel
	registry   *subscription.Registry
	router     *router.Router
	clock      quartz.Clock
	validScope func(string) bool
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu        sync.RWMutex
	consumers map[string]*Consumer
	status    model.TransportStatus
}

// New creates a Hub on ch and registers its handlers.
func New(cfg Config, ch Channel, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		cfg:       cfg,
		ch:        ch,
		metrics:   m,
		logger:    logger,
		consumers: make(map[string]*Consumer),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.clock == nil {
		h.clock = quartz.NewReal()
	}

	regOpts := []subscription.Option{subscription.WithMetrics(m)}
	if h.validScope != nil {
		regOpts = append(regOpts, subscription.WithScopeValidator(h.validScope))
	}
	h.registry = subscription.NewRegistry(ch, logger.With("component", "registry"), regOpts...)
	h.router = router.New(cfg.Router, h.Deliver, m, logger.With("component", "router"))
	h.router.Attach(ch)
	ch.OnStatus(h.setTransportStatus)

	// Pick up a status reached before the handler was registered.
	if st := ch.Status(); st != model.TransportDisconnected {
		h.setTransportStatus(st)
	}

	return h
}

// RegisterConsumer creates a consumer. An empty id gets a generated one.
// Registering an existing id closes the previous consumer.
func (h *Hub) RegisterConsumer(id string, opts ConsumerOptions) *Consumer {
	if id == "" {
		id = uuid.NewString()
	}

	h.mu.Lock()
	prev := h.consumers[id]
	delete(h.consumers, id)
	status := h.status
	h.mu.Unlock()

	if prev != nil {
		h.logger.Warn("consumer registered twice, replacing", "consumer", id)
		prev.close(false)
	}

	c := newConsumer(id, h, opts)
	c.sched.SetTransportStatus(status)

	h.mu.Lock()
	h.consumers[id] = c
	h.mu.Unlock()

	h.registry.Register(id)
	h.logger.Debug("consumer registered", "consumer", id)
	return c
}

// Consumer returns a registered consumer by id.
func (h *Hub) Consumer(id string) (*Consumer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.consumers[id]
	return c, ok
}

// ConsumerIDs returns registered consumer ids, sorted.
func (h *Hub) ConsumerIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.consumers))
	for id := range h.consumers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Deliver routes one inbound snapshot to every interested consumer.
func (h *Hub) Deliver(snap model.Snapshot) {
	for _, id := range h.registry.Interested(snap.Scope, snap.EntityID) {
		h.mu.RLock()
		c := h.consumers[id]
		h.mu.RUnlock()
		if c != nil {
			c.deliver(snap)
		}
	}
}

// Inject routes snapshots obtained outside the transport, such as a
// fallback poll. Routing follows the same interest rules as Deliver.
func (h *Hub) Inject(snaps []model.Snapshot) {
	for _, s := range snaps {
		h.Deliver(s)
	}
}

// Status returns the last transport status seen.
func (h *Hub) Status() model.TransportStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Stats returns hub statistics.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.consumers)
	st := h.status
	h.mu.RUnlock()

	return Stats{
		Consumers:    n,
		Subscription: h.registry.Stats(),
		Router:       h.router.Stats(),
		Transport:    st,
	}
}

// Close closes every consumer.
func (h *Hub) Close() {
	h.mu.Lock()
	cs := make([]*Consumer, 0, len(h.consumers))
	for _, c := range h.consumers {
		cs = append(cs, c)
	}
	h.mu.Unlock()

	for _, c := range cs {
		c.Close()
	}
}

func (h *Hub) setTransportStatus(st model.TransportStatus) {
	h.mu.Lock()
	h.status = st
	cs := make([]*Consumer, 0, len(h.consumers))
	for _, c := range h.consumers {
		cs = append(cs, c)
	}
	h.mu.Unlock()

	h.registry.SetTransportStatus(st)
	h.metrics.SetSubscribedEntities(h.registry.Stats().Entities)
	for _, c := range cs {
		c.sched.SetTransportStatus(st)
	}
}

func (h *Hub) remove(c *Consumer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.consumers[c.id] == c {
		delete(h.consumers, c.id)
	}
}
