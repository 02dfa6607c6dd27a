// Package config loads the per-exchange and global operational configuration
// described in the external-interfaces configuration surface: symbols,
// streams, timeframes, rate limits, retry policy, websocket behavior, writer
// batching, quality thresholds, and backfill concurrency.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/ingestd/internal/secrets"
)

// Config is the complete operational configuration: one entry per exchange
// plus global storage/cache/metrics settings.
type Config struct {
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`
	Storage   StorageConfig             `yaml:"storage"`
	Cache     CacheConfig               `yaml:"cache"`
	Metrics   MetricsConfig             `yaml:"metrics"`
}

// ExchangeConfig is the per-exchange configuration block. Missing exchanges
// default to disabled; every other option has a zero-value-safe default
// applied by ApplyDefaults.
type ExchangeConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Symbols    []string      `yaml:"symbols"`
	Streams    []string      `yaml:"streams"` // subset of: trades, orderbook, kline
	Timeframes []string      `yaml:"timeframes"`
	RateLimit  RateLimit     `yaml:"rate_limit"`
	Retry      RetryConfig   `yaml:"retry"`
	WS         WSConfig      `yaml:"ws"`
	Writer     WriterConfig  `yaml:"writer"`
	Quality    QualityConfig `yaml:"quality"`
	Backfill   BackfillConfig `yaml:"backfill"`
}

// RateLimit bounds REST call frequency for one exchange.
type RateLimit struct {
	MinIntervalMS int `yaml:"min_interval_ms"`
	MaxConcurrent int `yaml:"max_concurrent"`
}

// RetryConfig drives the REST collector's exponential-backoff retry policy.
type RetryConfig struct {
	Attempts   int     `yaml:"attempts"`
	BaseMS     int     `yaml:"base_ms"`
	MaxMS      int     `yaml:"max_ms"`
	Multiplier float64 `yaml:"multiplier"`
}

// WSConfig drives the stream collector's session lifecycle.
type WSConfig struct {
	HeartbeatMS     int `yaml:"heartbeat_ms"`
	ReconnectBaseMS int `yaml:"reconnect_base_ms"`
	MaxAttempts     int `yaml:"max_attempts"`
}

// WriterConfig drives the batch writer's flush trigger.
type WriterConfig struct {
	BatchSize       int `yaml:"batch_size"`
	FlushIntervalMS int `yaml:"flush_interval_ms"`
}

// QualityConfig drives the quality scanner's anomaly thresholds.
type QualityConfig struct {
	WindowMinutes        int     `yaml:"window_minutes"`
	PriceJumpThreshold   float64 `yaml:"price_jump_threshold"`
	VolumeSpikeK         float64 `yaml:"volume_spike_k"`
	ScanIntervalMinutes  int     `yaml:"scan_interval_minutes"`
}

// BackfillConfig drives backfill task creation and retry.
type BackfillConfig struct {
	PriorityFloor int `yaml:"priority_floor"`
	MaxRetries    int `yaml:"max_retries"`
	Concurrency   int `yaml:"concurrency"`
}

// StorageConfig configures the Postgres time-series store.
type StorageConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MigrationsPath  string `yaml:"migrations_path"`
}

// CacheConfig configures the shared cache/queue.
type CacheConfig struct {
	RedisAddr    string `yaml:"redis_addr"` // empty means use the in-process fallback
	QueueMaxLen  int    `yaml:"queue_max_len"`
}

// MetricsConfig configures the observability HTTP endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads and validates configuration from a YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for name, ex := range cfg.Exchanges {
		ex.ApplyDefaults()
		cfg.Exchanges[name] = ex
	}
	cfg.Storage.ApplyDefaults()
	cfg.Cache.ApplyDefaults()
	cfg.Metrics.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// secretResolver is the subset of *secrets.Resolver ApplySecrets needs,
// narrowed so callers can pass a stub in tests without touching the
// environment or a Kubernetes mount.
type secretResolver interface {
	ResolveDSN(ctx context.Context, fallback string) string
	ResolveRedisAddr(ctx context.Context, fallback string) string
}

var _ secretResolver = (*secrets.Resolver)(nil)

// ApplySecrets overrides the Storage DSN and Cache Redis address with values
// from r, falling back to whatever Load parsed from YAML when the secret
// provider has nothing for that key. Connection strings are the only fields
// in Config sensitive enough to warrant keeping out of the checked-in YAML.
func (c *Config) ApplySecrets(ctx context.Context, r secretResolver) {
	c.Storage.DSN = r.ResolveDSN(ctx, c.Storage.DSN)
	c.Cache.RedisAddr = r.ResolveRedisAddr(ctx, c.Cache.RedisAddr)
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (e *ExchangeConfig) ApplyDefaults() {
	if e.RateLimit.MinIntervalMS == 0 {
		e.RateLimit.MinIntervalMS = 200
	}
	if e.RateLimit.MaxConcurrent == 0 {
		e.RateLimit.MaxConcurrent = 2
	}
	if e.Retry.Attempts == 0 {
		e.Retry.Attempts = 5
	}
	if e.Retry.BaseMS == 0 {
		e.Retry.BaseMS = 500
	}
	if e.Retry.MaxMS == 0 {
		e.Retry.MaxMS = 30_000
	}
	if e.Retry.Multiplier == 0 {
		e.Retry.Multiplier = 2.0
	}
	if e.WS.HeartbeatMS == 0 {
		e.WS.HeartbeatMS = 30_000
	}
	if e.WS.ReconnectBaseMS == 0 {
		e.WS.ReconnectBaseMS = 1_000
	}
	if e.WS.MaxAttempts == 0 {
		e.WS.MaxAttempts = 10
	}
	if e.Writer.BatchSize == 0 {
		e.Writer.BatchSize = 500
	}
	if e.Writer.FlushIntervalMS == 0 {
		e.Writer.FlushIntervalMS = 2_000
	}
	if e.Quality.WindowMinutes == 0 {
		e.Quality.WindowMinutes = 1440
	}
	if e.Quality.PriceJumpThreshold == 0 {
		e.Quality.PriceJumpThreshold = 0.20
	}
	if e.Quality.VolumeSpikeK == 0 {
		e.Quality.VolumeSpikeK = 6
	}
	if e.Quality.ScanIntervalMinutes == 0 {
		e.Quality.ScanIntervalMinutes = 10
	}
	if e.Backfill.PriorityFloor == 0 {
		e.Backfill.PriorityFloor = 10
	}
	if e.Backfill.MaxRetries == 0 {
		e.Backfill.MaxRetries = 5
	}
	if e.Backfill.Concurrency == 0 {
		e.Backfill.Concurrency = 1
	}
	if len(e.Timeframes) == 0 {
		e.Timeframes = []string{"1m"}
	}
}

// ApplyDefaults fills zero-valued storage settings.
func (s *StorageConfig) ApplyDefaults() {
	if s.MaxOpenConns == 0 {
		s.MaxOpenConns = 10
	}
	if s.MaxIdleConns == 0 {
		s.MaxIdleConns = 5
	}
	if s.MigrationsPath == "" {
		s.MigrationsPath = "internal/storage/postgres/migrations"
	}
}

// ApplyDefaults fills zero-valued cache settings.
func (c *CacheConfig) ApplyDefaults() {
	if c.QueueMaxLen == 0 {
		c.QueueMaxLen = 10_000
	}
}

// ApplyDefaults fills zero-valued metrics settings.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddr == "" {
		m.ListenAddr = ":9090"
	}
}

// Validate checks invariants that ApplyDefaults cannot fix on its own.
func (c *Config) Validate() error {
	for name, ex := range c.Exchanges {
		if !ex.Enabled {
			continue
		}
		if ex.RateLimit.MaxConcurrent <= 0 {
			return fmt.Errorf("exchange %s: rate_limit.max_concurrent must be positive", name)
		}
		if ex.Retry.Multiplier < 1 {
			return fmt.Errorf("exchange %s: retry.multiplier must be >= 1", name)
		}
		if len(ex.Symbols) == 0 {
			return fmt.Errorf("exchange %s: enabled but no symbols configured", name)
		}
	}
	return nil
}

// MinInterval returns the rate limiter's minimum inter-call spacing.
func (r RateLimit) MinInterval() time.Duration {
	return time.Duration(r.MinIntervalMS) * time.Millisecond
}

// Base returns the retry policy's initial backoff.
func (r RetryConfig) Base() time.Duration { return time.Duration(r.BaseMS) * time.Millisecond }

// Max returns the retry policy's backoff ceiling.
func (r RetryConfig) Max() time.Duration { return time.Duration(r.MaxMS) * time.Millisecond }

// Heartbeat returns the WS session's idle-message timeout.
func (w WSConfig) Heartbeat() time.Duration { return time.Duration(w.HeartbeatMS) * time.Millisecond }

// ReconnectBase returns the WS session's initial reconnect backoff.
func (w WSConfig) ReconnectBase() time.Duration {
	return time.Duration(w.ReconnectBaseMS) * time.Millisecond
}

// FlushInterval returns the writer's time-based flush trigger.
func (w WriterConfig) FlushInterval() time.Duration {
	return time.Duration(w.FlushIntervalMS) * time.Millisecond
}

// Window returns the quality scanner's look-back window.
func (q QualityConfig) Window() time.Duration {
	return time.Duration(q.WindowMinutes) * time.Minute
}

// ScanInterval returns the quality scanner's periodic schedule.
func (q QualityConfig) ScanInterval() time.Duration {
	return time.Duration(q.ScanIntervalMinutes) * time.Minute
}
