// Package config provides centralized configuration management for the
// service. It loads configuration from environment variables with sensible
// defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Backend names accepted by SYNC_CATALOG_STORE and SYNC_SCHEDULE_STORE.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Sync     SyncConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	S3       S3Config
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request, body included (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout must exceed SYNC_WAIT_TIMEOUT (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required when any store uses postgres.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies pending migrations at startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// UploadConfig holds upload handling settings.
type UploadConfig struct {
	// MaxFileSize is the maximum accepted source size in bytes, for uploads
	// and fetched sources alike (default: 20MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"20971520"`
}

// SyncConfig holds worker pool, job and scheduler settings.
type SyncConfig struct {
	// Workers is the number of concurrent sync jobs (default: 4)
	Workers int `env:"SYNC_WORKERS" default:"4"`

	// QueueSize bounds jobs waiting for a worker (default: 100)
	QueueSize int `env:"SYNC_QUEUE_SIZE" default:"100"`

	// QueueWait is how long an enqueue waits for room before failing (default: 5s)
	QueueWait time.Duration `env:"SYNC_QUEUE_WAIT" default:"5s"`

	// WaitTimeout is how long a request waits for its job before answering "running" (default: 30s)
	WaitTimeout time.Duration `env:"SYNC_WAIT_TIMEOUT" default:"30s"`

	// JobTimeout caps one job's run time (default: 10m)
	JobTimeout time.Duration `env:"SYNC_JOB_TIMEOUT" default:"10m"`

	// JobRetention is how long finished results stay pollable (default: 1h)
	JobRetention time.Duration `env:"SYNC_JOB_RETENTION" default:"1h"`

	// Timezone for daily schedules, an IANA name; empty means server local
	Timezone string `env:"SYNC_TIMEZONE"`

	// SheetName selects the worksheet of spreadsheet sources; empty means the first
	SheetName string `env:"SYNC_SHEET_NAME"`

	// SourceDir resolves relative file sources
	SourceDir string `env:"SYNC_SOURCE_DIR"`

	// CatalogStore is postgres or memory (default: postgres)
	CatalogStore string `env:"SYNC_CATALOG_STORE" default:"postgres"`

	// ScheduleStore is postgres, redis or memory (default: postgres)
	ScheduleStore string `env:"SYNC_SCHEDULE_STORE" default:"postgres"`
}

// Location resolves Timezone. Validate guarantees it loads.
func (c *SyncConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// RedisConfig holds the schedule store connection when SYNC_SCHEDULE_STORE=redis.
type RedisConfig struct {
	URL       string `env:"REDIS_URL" default:"redis://localhost:6379/0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" default:"menusync"`
}

// KafkaConfig enables sync result events when Brokers is set.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS"`
	Topic   string   `env:"KAFKA_TOPIC" default:"menusync.sync-results"`
}

// Enabled reports whether events should be published.
func (c *KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// S3Config enables s3:// sources.
type S3Config struct {
	Enabled         bool   `env:"S3_ENABLED" default:"false"`
	Region          string `env:"S3_REGION" default:"us-east-1"`
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID" envAlt:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY" envAlt:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" default:"false"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for sync-triggering endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// CORSOrigins lists origins allowed to call the API from a browser
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// NeedsDatabase reports whether any store is backed by postgres.
func (c *Config) NeedsDatabase() bool {
	return c.Sync.CatalogStore == BackendPostgres || c.Sync.ScheduleStore == BackendPostgres
}
