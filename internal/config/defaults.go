package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL            = "http://localhost:8000/api"
	DefaultWSURL              = "ws://localhost:8000/ws"
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultReconnectMin       = 1 * time.Second
	DefaultReconnectMax       = 60 * time.Second
	DefaultPingTimeout        = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultBufferSize         = 4096
	DefaultMinInterval        = 1 * time.Second
	DefaultFrameInterval      = 16 * time.Millisecond
	DefaultLiveCapacity       = 60
	DefaultHistoricalCapacity = 500
	DefaultPageSize           = 50
	DefaultActiveWindow       = 30 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultPollInterval       = 30 * time.Second
	DefaultPollConcurrency    = 4
	DefaultServerPort         = 8080
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *Config) applyDefaults() {
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	if c.Transport.ReconnectMin == 0 {
		c.Transport.ReconnectMin = DefaultReconnectMin
	}
	if c.Transport.ReconnectMax == 0 {
		c.Transport.ReconnectMax = DefaultReconnectMax
	}
	if c.Transport.PingTimeout == 0 {
		c.Transport.PingTimeout = DefaultPingTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.BufferSize == 0 {
		c.Transport.BufferSize = DefaultBufferSize
	}

	if c.Scheduler.MinInterval == 0 {
		c.Scheduler.MinInterval = DefaultMinInterval
	}
	if c.Scheduler.FrameInterval == 0 {
		c.Scheduler.FrameInterval = DefaultFrameInterval
	}

	if c.Series.LiveCapacity == 0 {
		c.Series.LiveCapacity = DefaultLiveCapacity
	}
	if c.Series.HistoricalCapacity == 0 {
		c.Series.HistoricalCapacity = DefaultHistoricalCapacity
	}

	if c.Views.PageSize == 0 {
		c.Views.PageSize = DefaultPageSize
	}
	if c.Views.ActiveWindow == 0 {
		c.Views.ActiveWindow = DefaultActiveWindow
	}

	db := &c.Database.Postgres
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}

	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
