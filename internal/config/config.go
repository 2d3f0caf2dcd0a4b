// Package config loads service settings from struct tag defaults, an
// optional TOML file and environment variables, in that order, and
// validates the result on startup.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Config holds all application configuration. Every leaf field has an
// environment variable; the toml tags name its key in a config file.
type Config struct {
	Server   ServerConfig    `toml:"server"`
	Database DatabaseConfig  `toml:"database"`
	Pipeline PipelineConfig  `toml:"pipeline"`
	Rate     RateLimitConfig `toml:"rate_limit"`
	Security SecurityConfig  `toml:"security"`
	Logging  LoggingConfig   `toml:"logging"`
	Metrics  MetricsConfig   `toml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `toml:"host" env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `toml:"port" env:"SERVER_PORT" default:"8080" validate:"min=1,max=65535"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `toml:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"15s" validate:"gte=0s"`

	// WriteTimeout is the maximum duration for writing response (default: 2m)
	WriteTimeout time.Duration `toml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"2m" validate:"gte=0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `toml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s" validate:"gte=0s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `toml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" default:"60s" validate:"gte=0s"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// PostgreSQL connection modes.
const (
	// ModeDirect connects over the Cloud SQL unix socket for InstanceConnectionName.
	ModeDirect = "direct"
	// ModeProxy connects through a Cloud SQL Auth Proxy listening on ProxyHost:ProxyPort.
	ModeProxy = "proxy"
	// ModeLocal connects to a plain PostgreSQL server on Host:Port.
	ModeLocal = "local"
)

// ErrMissingInstance is returned by ConnectionString in direct mode without an instance name.
var ErrMissingInstance = errors.New("DB_INSTANCE_CONNECTION_NAME is required for direct mode")

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the store backend: postgres, sqlite or memory (default: postgres)
	Driver string `toml:"driver" env:"DB_DRIVER" default:"postgres" validate:"oneof=postgres sqlite memory"`

	// URL is a full PostgreSQL connection string. When set it wins over the
	// per-part settings below. Supports both DATABASE_URL and DB_URL.
	URL string `toml:"url" env:"DATABASE_URL" envAlt:"DB_URL"`

	// Mode is the PostgreSQL connection mode: direct, proxy or local (default: proxy)
	Mode string `toml:"mode" env:"DB_CONNECTION_MODE" envAlt:"DB_MODE" default:"proxy"`

	Host     string `toml:"host" env:"DB_HOST" envAlt:"DB_LOCAL_HOST" default:"localhost"`
	Port     int    `toml:"port" env:"DB_PORT" envAlt:"DB_LOCAL_PORT" default:"5432"`
	Name     string `toml:"name" env:"DB_NAME" default:"saastify_edge"`
	User     string `toml:"user" env:"DB_USER" default:"postgres"`
	Password string `toml:"password" env:"DB_PASSWORD"`

	// InstanceConnectionName is the Cloud SQL instance (project:region:instance)
	InstanceConnectionName string `toml:"instance_connection_name" env:"DB_INSTANCE_CONNECTION_NAME" envAlt:"DB_INSTANCE"`

	ProxyHost string `toml:"proxy_host" env:"DB_PROXY_HOST" default:"localhost"`
	ProxyPort int    `toml:"proxy_port" env:"DB_PROXY_PORT" default:"5432"`

	// UseSSL requires TLS on proxy and local connections (default: false)
	UseSSL bool `toml:"use_ssl" env:"DB_USE_SSL" default:"false"`

	// SQLitePath is the database file used by the sqlite driver (default: edge.db)
	SQLitePath string `toml:"sqlite_path" env:"SQLITE_PATH" default:"edge.db" validate:"required_if=Driver sqlite"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `toml:"max_conns" env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `toml:"min_conns" env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `toml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `toml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ConnectionString returns the DSN for the configured driver.
// For postgres it honours URL first, then builds one from the connection mode.
func (c *DatabaseConfig) ConnectionString() (string, error) {
	switch c.Driver {
	case DriverSQLite:
		return c.SQLitePath, nil
	case DriverMemory:
		return "", nil
	}
	if c.URL != "" {
		return c.URL, nil
	}

	u := url.URL{Scheme: "postgres", Path: "/" + c.Name}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	q := url.Values{}

	switch c.Mode {
	case ModeDirect:
		if c.InstanceConnectionName == "" {
			return "", ErrMissingInstance
		}
		// Unix socket; TLS is handled by the socket itself.
		q.Set("host", "/cloudsql/"+c.InstanceConnectionName)
		u.RawQuery = q.Encode()
		return u.String(), nil
	case ModeLocal:
		u.Host = c.Host + ":" + strconv.Itoa(c.Port)
	default:
		u.Host = c.ProxyHost + ":" + strconv.Itoa(c.ProxyPort)
	}

	if c.UseSSL {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Transform error policies.
const (
	// OnErrorFallback keeps the raw value when a field's transform fails.
	OnErrorFallback = "fallback"
	// OnErrorReject drops the whole row when any field's transform fails.
	OnErrorReject = "reject"
)

// PipelineConfig holds import/export processing settings.
type PipelineConfig struct {
	// OnTransformError is the policy when a field transform fails: fallback or reject (default: fallback)
	OnTransformError string `toml:"on_transform_error" env:"PIPELINE_ON_TRANSFORM_ERROR" default:"fallback" validate:"oneof=fallback reject"`

	// BatchSize is the number of completeness records written per batch (default: 500)
	BatchSize int `toml:"batch_size" env:"PIPELINE_BATCH_SIZE" default:"500" validate:"gt=0"`

	// MaxConcurrentJobs is the maximum number of parallel import/export jobs (default: 5)
	MaxConcurrentJobs int `toml:"max_concurrent_jobs" env:"PIPELINE_MAX_CONCURRENT_JOBS" default:"5" validate:"gt=0"`

	// MaxWaitTime is how long a job waits for a free slot (default: 30s)
	MaxWaitTime time.Duration `toml:"max_wait_time" env:"PIPELINE_MAX_WAIT_TIME" default:"30s" validate:"gt=0s"`

	// JobTimeout bounds a single import or export (default: 10m)
	JobTimeout time.Duration `toml:"job_timeout" env:"PIPELINE_JOB_TIMEOUT" default:"10m" validate:"gt=0s"`

	// TemplateDir is scanned for *.yaml, *.yml, *.toml and *.json templates (default: templates)
	TemplateDir string `toml:"template_dir" env:"TEMPLATE_DIR" default:"templates"`

	// OutputDir receives exported files; empty keeps exports in memory only
	OutputDir string `toml:"output_dir" env:"OUTPUT_DIR"`

	// MaxUploadMB caps the size of an uploaded import file (default: 100)
	MaxUploadMB int64 `toml:"max_upload_mb" env:"PIPELINE_MAX_UPLOAD_MB" default:"100" validate:"gt=0"`

	// RemoteFiles lets import, export and preview requests name a file_url
	// instead of uploading the file (default: false)
	RemoteFiles bool `toml:"remote_files" env:"PIPELINE_REMOTE_FILES" default:"false"`

	// FetchTimeout bounds the download of a remote file (default: 2m)
	FetchTimeout time.Duration `toml:"fetch_timeout" env:"PIPELINE_FETCH_TIMEOUT" default:"2m" validate:"gt=0s"`
}

// MaxUploadBytes returns MaxUploadMB in bytes.
func (c *PipelineConfig) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `toml:"enabled" env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `toml:"requests_per_minute" env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// JobLimit is requests per minute for import/export endpoints (default: 10)
	JobLimit int `toml:"job_limit" env:"RATE_LIMIT_JOBS" default:"10" validate:"gte=0"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `toml:"trusted_proxies" env:"TRUSTED_PROXIES"`

	// APIKeys is a comma-separated list of accepted X-API-Key values
	APIKeys []string `toml:"api_keys" env:"API_KEYS"`

	// RequireAPIKey rejects /api requests without a valid key (default: false)
	RequireAPIKey bool `toml:"require_api_key" env:"REQUIRE_API_KEY" default:"false"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `toml:"level" env:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Format is the log format: text or json (default: text)
	Format string `toml:"format" env:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled mounts the metrics endpoint (default: true)
	Enabled bool `toml:"enabled" env:"METRICS_ENABLED" default:"true"`

	// Path is where metrics are served (default: /metrics)
	Path string `toml:"path" env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
