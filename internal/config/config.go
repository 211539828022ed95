// Package config provides centralized configuration management for dqgate.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"errors"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Templates TemplatesConfig
	Storage   StorageConfig
	Run       RunConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 0, runs can be long)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Required by commands that
	// persist results; see RequireDatabase.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// TemplatesConfig locates template and suite definitions.
type TemplatesConfig struct {
	// Dir holds template YAML files (default: templates)
	Dir string `env:"TEMPLATES_DIR" default:"templates"`

	// SuitesDir holds expectation suite files (default: expectations)
	SuitesDir string `env:"SUITES_DIR" default:"expectations"`
}

// StorageConfig holds object store and output settings.
type StorageConfig struct {
	// Region is the AWS region; empty uses the default credential chain's region
	Region string `env:"AWS_REGION" envAlt:"AWS_DEFAULT_REGION"`

	// Endpoint overrides the S3 endpoint (MinIO, LocalStack)
	Endpoint string `env:"S3_ENDPOINT"`

	// ForcePathStyle uses path-style addressing (default: false)
	ForcePathStyle bool `env:"S3_FORCE_PATH_STYLE" default:"false"`

	// ResultsBucket receives routed datasets and result JSON; empty writes to OutputDir
	ResultsBucket string `env:"RESULTS_BUCKET"`

	// OutputDir is the local fallback for run artifacts (default: .)
	OutputDir string `env:"OUTPUT_DIR" default:"."`

	// DataDir is the only local directory the HTTP API reads datasets from;
	// empty limits the API to s3:// datasets
	DataDir string `env:"DATA_DIR"`
}

// RunConfig bounds validation runs.
type RunConfig struct {
	// Timeout is the maximum duration for a single run (default: 10m)
	Timeout time.Duration `env:"RUN_TIMEOUT" default:"10m"`

	// MaxConcurrent is the maximum number of parallel runs served over HTTP (default: 4)
	MaxConcurrent int `env:"RUN_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long an HTTP request waits for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"RUN_MAX_WAIT_TIME" default:"30s"`

	// MaxFileSize is the maximum dataset size; accepts B/KB/MB/GB suffixes (default: 100MB)
	MaxFileSize int64 `env:"RUN_MAX_FILE_SIZE" default:"100MB"`
}

// SecurityConfig holds HTTP API access settings.
type SecurityConfig struct {
	// RequireAPIKey enforces X-API-Key on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of CIDRs whose X-Real-IP and
	// X-Forwarded-For headers are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ErrDatabaseURLMissing is returned by RequireDatabase.
var ErrDatabaseURLMissing = errors.New("DATABASE_URL is required")

// RequireDatabase reports whether a connection string is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return ErrDatabaseURLMissing
	}
	return nil
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
