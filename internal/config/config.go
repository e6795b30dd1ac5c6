// Package config loads onboarding service settings from environment
// variables. Every field has a default except secrets; Load validates the
// whole configuration and reports every problem at once.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Cache    CacheConfig
	Store    StoreConfig
	Delivery DeliveryConfig
	FollowUp FollowUpConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware deadline per request.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds PostgreSQL settings. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// InMemory reports whether no database is configured.
func (d DatabaseConfig) InMemory() bool { return d.URL == "" }

// ImportConfig holds bulk CSV import settings.
type ImportConfig struct {
	// MaxFileSize is the largest accepted payload in bytes (default: 10MB)
	MaxFileSize   int64         `env:"IMPORT_MAX_FILE_SIZE" default:"10485760"`
	MaxConcurrent int           `env:"IMPORT_MAX_CONCURRENT" default:"3"`
	MaxWaitTime   time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// ChunkSize is the number of rows committed per lock acquisition.
	ChunkSize int           `env:"IMPORT_CHUNK_SIZE" default:"100"`
	Timeout   time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`
}

// CacheConfig holds query cache settings.
type CacheConfig struct {
	TTL             time.Duration `env:"CACHE_TTL" default:"5m"`
	CleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" default:"10m"`
}

// StoreConfig bounds calls into the persistence store.
type StoreConfig struct {
	Timeout time.Duration `env:"STORE_TIMEOUT" default:"5s"`
}

// Delivery modes.
const (
	DeliveryLog    = "log"
	DeliveryPubSub = "pubsub"
	DeliveryHTTP   = "http"
)

// DeliveryConfig selects and configures the outbound message channel.
type DeliveryConfig struct {
	// Mode is log, pubsub or http (default: log)
	Mode     string        `env:"DELIVERY_MODE" default:"log"`
	Endpoint string        `env:"DELIVERY_ENDPOINT"`
	APIKey   string        `env:"DELIVERY_API_KEY"`
	Timeout  time.Duration `env:"DELIVERY_TIMEOUT" default:"10s"`
	Retries  int           `env:"DELIVERY_RETRIES" default:"3"`
	Topic    string        `env:"DELIVERY_TOPIC" default:"onboarding.messages"`

	// StrictTemplates fails rendering when a placeholder has no value.
	StrictTemplates bool `env:"DELIVERY_STRICT_TEMPLATES" default:"true"`
}

// FollowUpConfig holds follow-up reminder settings.
type FollowUpConfig struct {
	Enabled    bool          `env:"FOLLOWUP_ENABLED" default:"true"`
	Interval   time.Duration `env:"FOLLOWUP_INTERVAL" default:"1h"`
	TemplateID string        `env:"FOLLOWUP_TEMPLATE" default:"follow_up"`
}

// RateLimitConfig holds per-IP rate limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for the import endpoint.
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// APIKeys is a comma-separated list of accepted API keys.
	APIKeys       []string `env:"API_KEYS"`
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	EnableCSP     bool     `env:"SECURITY_ENABLE_CSP" default:"true"`

	// TrustedProxies lists proxy CIDRs whose X-Real-IP and X-Forwarded-For
	// headers are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
