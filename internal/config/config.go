// Package config loads runtime configuration from STOCKLEDGER_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix of every environment variable, e.g. STOCKLEDGER_DATABASE_URL.
const Prefix = "STOCKLEDGER"

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config holds runtime configuration for the server and the worker.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	HTTPPort         string        `envconfig:"HTTP_PORT" default:"8080"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`

	DatabaseURL      string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns       int32         `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns       int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	StatementTimeout time.Duration `envconfig:"DB_STATEMENT_TIMEOUT" default:"30s"`
	RowLockTimeout   time.Duration `envconfig:"DB_LOCK_TIMEOUT" default:"5s"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// LockBackend is "local" for a single instance, "redis" when several share the database.
	LockBackend string        `envconfig:"LOCK_BACKEND" default:"local"`
	LockTTL     time.Duration `envconfig:"LOCK_TTL" default:"30s"`
	LockTimeout time.Duration `envconfig:"LOCK_TIMEOUT" default:"5s"`

	// CatalogEnforced rejects movements whose item or location is missing from cat_* tables.
	CatalogEnforced  bool `envconfig:"CATALOG_ENFORCED" default:"true"`
	// VoucherNumbering numbers movements posted without a voucher (REC-2026-00001).
	VoucherNumbering bool `envconfig:"VOUCHER_NUMBERING" default:"true"`

	ExpiryWarningDays int     `envconfig:"EXPIRY_WARNING_DAYS" default:"30"`
	LowStockThreshold float64 `envconfig:"LOW_STOCK_THRESHOLD" default:"10"`

	OutboxBatchSize     int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxRetention     time.Duration `envconfig:"OUTBOX_RETENTION" default:"168h"`
	EventStream         string        `envconfig:"EVENT_STREAM" default:"stock:events"`
	EventStreamMaxLen   int64         `envconfig:"EVENT_STREAM_MAXLEN" default:"100000"`
	JournalCompressOver int           `envconfig:"JOURNAL_COMPRESS_OVER" default:"4096"`

	// Cron specs (robfig/cron, with seconds).
	OutboxSchedule    string `envconfig:"OUTBOX_SCHEDULE" default:"*/5 * * * * *"`
	ExpirySchedule    string `envconfig:"EXPIRY_SCHEDULE" default:"0 0 6 * * *"`
	ReconcileSchedule string `envconfig:"RECONCILE_SCHEDULE" default:"0 30 2 * * *"`
	LowStockSchedule  string `envconfig:"LOW_STOCK_SCHEDULE" default:"0 0 7 * * *"`
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch c.LockBackend {
	case LockLocal, LockRedis:
	default:
		return fmt.Errorf("config: LOCK_BACKEND must be %q or %q, got %q", LockLocal, LockRedis, c.LockBackend)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("config: LOCK_TIMEOUT must be positive")
	}
	if c.LockBackend == LockRedis && c.LockTTL <= c.LockTimeout {
		return fmt.Errorf("config: LOCK_TTL (%s) must exceed LOCK_TIMEOUT (%s)", c.LockTTL, c.LockTimeout)
	}
	if c.ExpiryWarningDays < 0 {
		return fmt.Errorf("config: EXPIRY_WARNING_DAYS must not be negative")
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("config: OUTBOX_BATCH_SIZE must be positive")
	}
	return nil
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}
