package config

import "time"

// Config is the root configuration for a netpulse instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	API       APIConfig       `yaml:"api"`
	Transport TransportConfig `yaml:"transport"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Series    SeriesConfig    `yaml:"series"`
	Views     ViewsConfig     `yaml:"views"`
	Database  DatabaseConfig  `yaml:"database"`
	Poller    PollerConfig    `yaml:"poller"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InstanceConfig identifies this console backend.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds management API and telemetry endpoint settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	APIKey     string        `yaml:"api_key"` // Bearer token for REST and WebSocket
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// TransportConfig holds the shared telemetry channel settings.
type TransportConfig struct {
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
}

// SchedulerConfig holds render flush settings.
type SchedulerConfig struct {
	MinInterval   time.Duration `yaml:"min_interval"`
	FrameInterval time.Duration `yaml:"frame_interval"`
}

// SeriesConfig holds bandwidth chart buffer settings.
type SeriesConfig struct {
	LiveCapacity       int `yaml:"live_capacity"`
	HistoricalCapacity int `yaml:"historical_capacity"`
	BucketMinutes      int `yaml:"bucket_minutes"` // 0 keeps raw historical points
}

// ViewsConfig describes the views served to operators.
type ViewsConfig struct {
	PageSize     int           `yaml:"page_size"`
	Routers      []string      `yaml:"routers"` // One interfaces view per router
	ActiveWindow time.Duration `yaml:"active_window"`
}

// DatabaseConfig holds the optional Postgres entity directory.
type DatabaseConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PollerConfig holds fallback status poller settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Bucket returns the historical aggregation window.
func (s SeriesConfig) Bucket() time.Duration {
	return time.Duration(s.BucketMinutes) * time.Minute
}
