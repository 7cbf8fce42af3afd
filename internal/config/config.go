// Package config provides centralized configuration for the data-access layer.
// It loads configuration from environment variables with sensible defaults and
// validates all settings up front to fail fast on misconfiguration.
package config

import "time"

// Config holds all configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Import   ImportConfig
	Export   ExportConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// TeardownTimeout bounds how long a pool recreation waits for the
	// old pool to drain (default: 30s)
	TeardownTimeout time.Duration `env:"DB_TEARDOWN_TIMEOUT" default:"30s"`
}

// ImportConfig holds CSV import settings.
type ImportConfig struct {
	// BatchSize is the number of data rows per insert batch (default: 5000)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"5000"`

	// EmptyAsNull inserts empty CSV cells as NULL instead of '' (default: false)
	EmptyAsNull bool `env:"IMPORT_EMPTY_AS_NULL" default:"false"`
}

// ExportConfig holds CSV export settings.
type ExportConfig struct {
	// HighWaterMark is the number of rows buffered between the query
	// and the file writer (default: 5)
	HighWaterMark int `env:"EXPORT_HIGH_WATER_MARK" default:"5"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}
