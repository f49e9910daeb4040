package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one telemetry socket. It is single use: after the socket fails
// or Close is called, a new Client must be created.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	// Send writes one text frame.
	Send(data []byte) error

	// Frames delivers decoded envelopes in arrival order.
	Frames() <-chan Frame

	// Err receives at most one error: the reason the socket died.
	Err() <-chan error

	IsConnected() bool
}

type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	frames chan Frame
	errc   chan error
	done   chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool
	connected atomic.Bool
	lastSeen  atomic.Int64 // unix nanos of the last inbound frame or control message
}

// NewClient creates an unconnected telemetry socket.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	return &client{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, cfg.BufferSize),
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (c *client) handshakeHeader() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		h.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.SessionID != "" {
		h.Set("X-Session-ID", c.cfg.SessionID)
	}
	return h
}

func (c *client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrAlreadyClosed
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, c.handshakeHeader())
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (http %d)", c.cfg.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	conn.SetReadLimit(c.cfg.ReadLimit)
	conn.SetPingHandler(func(data string) error {
		c.touch()
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	c.conn = conn
	c.touch()
	c.connected.Store(true)

	go c.readLoop()
	go c.keepalive()

	c.logger.Debug("telemetry socket open", "url", c.cfg.URL)
	return nil
}

func (c *client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.connected.Store(false)
		close(c.done)

		if c.conn == nil {
			return
		}
		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *client) Send(data []byte) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) Frames() <-chan Frame { return c.frames }

func (c *client) Err() <-chan error { return c.errc }

func (c *client) IsConnected() bool { return c.connected.Load() }

func (c *client) touch() { c.lastSeen.Store(time.Now().UnixNano()) }

// fail records the first terminal error unless the client is already closing.
func (c *client) fail(err error) {
	c.connected.Store(false)
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.errc <- err:
	default:
	}
}

func (c *client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		receivedAt := time.Now()
		c.lastSeen.Store(receivedAt.UnixNano())

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("undecodable telemetry frame", "error", err, "bytes", len(data))
			continue
		}
		if env.Event == "" {
			c.logger.Debug("frame without event name")
			continue
		}

		select {
		case c.frames <- Frame{Event: env.Event, Data: env.Data, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		default:
			c.logger.Warn("frame buffer full, dropping", "event", env.Event)
		}
	}
}

// keepalive pings the server and reports ErrStaleConnection when nothing
// has arrived for PingTimeout.
func (c *client) keepalive() {
	interval := c.cfg.PingTimeout / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.writeMu.Lock()
		err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
		c.writeMu.Unlock()
		if err != nil {
			c.logger.Debug("keepalive ping failed", "error", err)
		}

		if c.cfg.PingTimeout <= 0 {
			continue
		}
		idle := time.Since(time.Unix(0, c.lastSeen.Load()))
		if idle > c.cfg.PingTimeout {
			c.logger.Warn("telemetry socket silent", "idle", idle, "timeout", c.cfg.PingTimeout)
			c.fail(ErrStaleConnection)
			return
		}
	}
}
