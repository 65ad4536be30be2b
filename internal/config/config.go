// Package config loads the dashboard's settings from environment variables,
// applying defaults and validating everything up front so a bad setting
// stops the process at startup rather than on first use.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Device   DeviceConfig
	Editor   EditorConfig
	Panels   PanelsConfig
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

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is 0 by default so the status WebSocket is not cut off.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the chi Timeout middleware budget per request.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DeviceConfig describes the adapter the dashboard talks to.
type DeviceConfig struct {
	// URL is the adapter's base URL, e.g. http://ebus.local (required).
	URL string `env:"DEVICE_URL" envAlt:"EBUS_URL" required:"true"`

	// RequestTimeout bounds each request to the adapter (default: 10s)
	RequestTimeout time.Duration `env:"DEVICE_REQUEST_TIMEOUT" default:"10s"`

	// MaxConcurrent caps in-flight adapter requests (default: 2)
	MaxConcurrent int `env:"DEVICE_MAX_CONCURRENT" default:"2"`

	// MaxWait is how long a request waits for a free slot (default: 10s)
	MaxWait time.Duration `env:"DEVICE_MAX_WAIT" default:"10s"`

	// Dedupe shares one adapter request between concurrent identical reads.
	Dedupe bool `env:"DEVICE_DEDUPE" default:"true"`

	// PingPrivileged uses raw ICMP sockets instead of unprivileged UDP pings.
	PingPrivileged bool `env:"DEVICE_PING_PRIVILEGED" default:"false"`

	PingCount int `env:"DEVICE_PING_COUNT" default:"3"`

	PingTimeout time.Duration `env:"DEVICE_PING_TIMEOUT" default:"3s"`

	// PingInterval is how often the background monitor checks; 0 disables it.
	PingInterval time.Duration `env:"DEVICE_PING_INTERVAL" default:"30s"`
}

// EditorConfig holds JSON editor settings.
type EditorConfig struct {
	// MaxUploadSize caps files loaded into the editor (default: 1MB)
	MaxUploadSize int64 `env:"EDITOR_MAX_UPLOAD_SIZE" default:"1048576"`

	// MaxSessions caps live browser sessions; the least recently seen one
	// is dropped to make room (default: 1000)
	MaxSessions int `env:"EDITOR_MAX_SESSIONS" default:"1000"`
}

// PanelsConfig controls the dashboard layout.
type PanelsConfig struct {
	// File is an optional YAML panel list; empty uses the built-in panels.
	File string `env:"PANELS_FILE"`

	// MaxDepth limits nested section rendering (default: 32)
	MaxDepth int `env:"SECTIONS_MAX_DEPTH" default:"32"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// ActionLimit is requests per minute for routes that trigger adapter
	// actions or accept uploads (default: 30)
	ActionLimit int `env:"RATE_LIMIT_ACTIONS" default:"30"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey protects the JSON API routes with X-API-Key.
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys.
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// DiagnosticsCapacity is how many records /api/diagnostics keeps (default: 200)
	DiagnosticsCapacity int `env:"DIAGNOSTICS_CAPACITY" default:"200"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
