package config

import (
	"errors"
	"fmt"
	"log/slog"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if c.API.RestURL == "" {
		return errors.New("api.rest_url is required")
	}
	if c.API.WSURL == "" {
		return errors.New("api.ws_url is required")
	}

	if c.Transport.ReconnectMin <= 0 {
		return errors.New("transport.reconnect_min must be > 0")
	}
	if c.Transport.ReconnectMax < c.Transport.ReconnectMin {
		return fmt.Errorf("transport.reconnect_max (%s) cannot be less than reconnect_min (%s)",
			c.Transport.ReconnectMax, c.Transport.ReconnectMin)
	}
	if c.Transport.BufferSize < 1 {
		return errors.New("transport.buffer_size must be >= 1")
	}

	if c.Scheduler.MinInterval < 0 {
		return errors.New("scheduler.min_interval must be >= 0")
	}
	if c.Scheduler.FrameInterval <= 0 {
		return errors.New("scheduler.frame_interval must be > 0")
	}

	if c.Series.LiveCapacity < 1 {
		return errors.New("series.live_capacity must be >= 1")
	}
	if c.Series.HistoricalCapacity < 1 {
		return errors.New("series.historical_capacity must be >= 1")
	}
	if c.Series.BucketMinutes < 0 {
		return errors.New("series.bucket_minutes must be >= 0")
	}

	if c.Views.PageSize < 1 {
		return errors.New("views.page_size must be >= 1")
	}
	seen := make(map[string]bool, len(c.Views.Routers))
	for _, r := range c.Views.Routers {
		if r == "" {
			return errors.New("views.routers entries must not be empty")
		}
		if seen[r] {
			return fmt.Errorf("views.routers contains duplicate %q", r)
		}
		seen[r] = true
	}

	if c.Database.Enabled {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}
	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// ParseLevel maps a logging.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return lvl, nil
}
