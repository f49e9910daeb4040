package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"github.com/rickgao/netpulse/internal/metrics"
	"github.com/rickgao/netpulse/internal/model"
)

// Channel is the reconnecting named-event channel shared by all consumers.
type Channel struct {
	cfg       ChannelConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
	clock     quartz.Clock
	newClient func(ClientConfig, *slog.Logger) Client

	// Handlers
	hmu            sync.RWMutex
	handlers       map[string][]Handler
	statusHandlers []StatusHandler

	// State
	mu     sync.RWMutex
	client Client
	status model.TransportStatus

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithClock sets the clock driving reconnect delays. Defaults to the real clock.
func WithClock(c quartz.Clock) ChannelOption {
	return func(ch *Channel) {
		ch.clock = c
	}
}

// NewChannel creates a Channel. Start must be called to connect.
func NewChannel(cfg ChannelConfig, m *metrics.Metrics, logger *slog.Logger, opts ...ChannelOption) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Client.SessionID == "" {
		cfg.Client.SessionID = uuid.NewString()
	}
	if cfg.Factor <= 1 {
		cfg.Factor = 2
	}

	ch := &Channel{
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With("session_id", cfg.Client.SessionID),
		clock:     quartz.NewReal(),
		newClient: NewClient,
		handlers:  make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// On registers h for the named inbound event. Handlers run on the channel's
// read goroutine in registration order.
func (ch *Channel) On(event string, h Handler) {
	ch.hmu.Lock()
	defer ch.hmu.Unlock()
	ch.handlers[event] = append(ch.handlers[event], h)
}

// OnStatus registers h for transport status changes.
func (ch *Channel) OnStatus(h StatusHandler) {
	ch.hmu.Lock()
	defer ch.hmu.Unlock()
	ch.statusHandlers = append(ch.statusHandlers, h)
}

// Emit sends a named event with payload.
func (ch *Channel) Emit(event string, payload any) error {
	ch.mu.RLock()
	c := ch.client
	connected := ch.status == model.TransportConnected
	ch.mu.RUnlock()

	if c == nil || !connected {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event, err)
	}

	if err := c.Send(frame); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// Status returns the current transport status.
func (ch *Channel) Status() model.TransportStatus {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.status
}

// Start begins connecting in the background.
func (ch *Channel) Start(ctx context.Context) error {
	ch.ctx, ch.cancel = context.WithCancel(ctx)

	ch.wg.Add(1)
	go ch.run()

	ch.logger.Info("transport channel started", "url", ch.cfg.Client.URL)
	return nil
}

// Stop closes the connection and waits for the read goroutine.
func (ch *Channel) Stop(ctx context.Context) error {
	ch.logger.Info("stopping transport channel")

	if ch.cancel != nil {
		ch.cancel()
	}

	done := make(chan struct{})
	go func() {
		ch.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ch.logger.Info("transport channel stopped")
	case <-ctx.Done():
		ch.logger.Warn("transport channel stop timed out")
	}

	return nil
}

// run connects, serves and reconnects until the context is cancelled.
func (ch *Channel) run() {
	defer ch.wg.Done()
	defer ch.setStatus(model.TransportDisconnected)

	b := &backoff.Backoff{
		Min:    ch.cfg.ReconnectMin,
		Max:    ch.cfg.ReconnectMax,
		Factor: ch.cfg.Factor,
		Jitter: true,
	}
	connectedBefore := false

	for {
		if ch.ctx.Err() != nil {
			return
		}

		c := ch.newClient(ch.cfg.Client, ch.logger)
		if err := c.Connect(ch.ctx); err != nil {
			c.Close()
			if ch.ctx.Err() != nil {
				return
			}
			wait := b.Duration()
			ch.logger.Warn("connect failed",
				"error", err,
				"retry_in", wait,
				"attempt", int(b.Attempt()),
			)
			if connectedBefore {
				ch.setStatus(model.TransportReconnecting)
			}
			if !ch.sleep(wait) {
				return
			}
			continue
		}

		b.Reset()
		ch.mu.Lock()
		ch.client = c
		ch.mu.Unlock()

		if connectedBefore {
			ch.metrics.Reconnected()
			ch.logger.Info("reconnected")
		} else {
			ch.logger.Info("connected")
		}
		connectedBefore = true
		ch.setStatus(model.TransportConnected)
		ch.dispatch(EventConnected, nil, ch.clock.Now("transport", "connected"))

		err := ch.serve(c)

		ch.mu.Lock()
		ch.client = nil
		ch.mu.Unlock()
		c.Close()

		if ch.ctx.Err() != nil {
			return
		}

		ch.logger.Warn("connection lost", "error", err)
		ch.setStatus(model.TransportReconnecting)
		if !ch.sleep(b.Duration()) {
			return
		}
	}
}

// serve pumps frames from c until it fails or the channel stops.
func (ch *Channel) serve(c Client) error {
	for {
		select {
		case <-ch.ctx.Done():
			return ch.ctx.Err()

		case err := <-c.Err():
			return err

		case f := <-c.Frames():
			ch.dispatch(f.Event, f.Data, f.ReceivedAt)
		}
	}
}

func (ch *Channel) dispatch(event string, data json.RawMessage, receivedAt time.Time) {
	ch.hmu.RLock()
	hs := ch.handlers[event]
	ch.hmu.RUnlock()

	if len(hs) == 0 {
		ch.logger.Debug("no handler for event", "event", event)
		return
	}
	for _, h := range hs {
		h(data, receivedAt)
	}
}

func (ch *Channel) setStatus(st model.TransportStatus) {
	ch.mu.Lock()
	if ch.status == st {
		ch.mu.Unlock()
		return
	}
	ch.status = st
	ch.mu.Unlock()

	ch.metrics.SetTransportStatus(st)
	ch.logger.Debug("transport status changed", "status", st)

	ch.hmu.RLock()
	hs := make([]StatusHandler, len(ch.statusHandlers))
	copy(hs, ch.statusHandlers)
	ch.hmu.RUnlock()

	for _, h := range hs {
		h(st)
	}
}

// sleep waits d on the channel clock. False means the channel stopped.
func (ch *Channel) sleep(d time.Duration) bool {
	t := ch.clock.NewTimer(d, "transport", "reconnect")
	defer t.Stop()

	select {
	case <-ch.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
