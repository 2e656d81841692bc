package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Gateway  GatewayConfig  `yaml:"gateway"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableRangeGuard       bool   `yaml:"enable_range_guard"`
}

// QueueConfig tunes downlink retry and gateway rate limiting.
type QueueConfig struct {
	MaxAttempts           int           `yaml:"max_attempts"`
	BackoffBaseSeconds    int           `yaml:"backoff_base_seconds"`
	BackoffCapSeconds     int           `yaml:"backoff_cap_seconds"`
	BackoffBase           time.Duration `yaml:"-"`
	BackoffCap            time.Duration `yaml:"-"`
	GatewaySendsPerMinute float64       `yaml:"gateway_sends_per_minute"`
	GatewayBurst          int           `yaml:"gateway_burst"`
}

// DispatchConfig tunes the dispatch worker loop.
type DispatchConfig struct {
	IntervalSeconds    int           `yaml:"interval_seconds"`
	Interval           time.Duration `yaml:"-"`
	SendTimeoutSeconds int           `yaml:"send_timeout_seconds"`
	SendTimeout        time.Duration `yaml:"-"`
	PoolSize           int           `yaml:"pool_size"`
	BatchSize          int           `yaml:"batch_size"`
}

// GatewayConfig points at the network server's downlink endpoint.
type GatewayConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Queue.MaxAttempts <= 0 {
		cfg.Queue.MaxAttempts = 5
	}
	if cfg.Queue.BackoffBaseSeconds <= 0 {
		cfg.Queue.BackoffBaseSeconds = 5
	}
	if cfg.Queue.BackoffCapSeconds <= 0 {
		cfg.Queue.BackoffCapSeconds = 300
	}
	cfg.Queue.BackoffBase = time.Duration(cfg.Queue.BackoffBaseSeconds) * time.Second
	cfg.Queue.BackoffCap = time.Duration(cfg.Queue.BackoffCapSeconds) * time.Second
	if cfg.Queue.GatewaySendsPerMinute <= 0 {
		cfg.Queue.GatewaySendsPerMinute = 30
	}
	if cfg.Queue.GatewayBurst <= 0 {
		cfg.Queue.GatewayBurst = 5
	}

	if cfg.Dispatch.IntervalSeconds <= 0 {
		cfg.Dispatch.IntervalSeconds = 1
	}
	cfg.Dispatch.Interval = time.Duration(cfg.Dispatch.IntervalSeconds) * time.Second
	if cfg.Dispatch.SendTimeoutSeconds <= 0 {
		cfg.Dispatch.SendTimeoutSeconds = 10
	}
	cfg.Dispatch.SendTimeout = time.Duration(cfg.Dispatch.SendTimeoutSeconds) * time.Second
	if cfg.Dispatch.PoolSize <= 0 {
		cfg.Dispatch.PoolSize = 4
	}
	if cfg.Dispatch.BatchSize <= 0 {
		cfg.Dispatch.BatchSize = 100
	}

	return &cfg, nil
}
