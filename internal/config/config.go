// Package config provides configuration loading and parsing for meshgate.
package config

import (
	"strings"
	"time"

	"github.com/healthmesh/meshgate/internal/cache"
	"github.com/healthmesh/meshgate/internal/health"
	"github.com/healthmesh/meshgate/internal/ratelimit"
	"github.com/healthmesh/meshgate/internal/registry"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// RuntimeConfig defines the interface for accessing runtime configuration that supports hot-reload.
// Components that need to observe config changes should use this interface instead of
// holding a direct *Config pointer, which would become stale after hot-reload.
//
// Usage pattern:
//
//	func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
//		cfg := h.runtime.Get()
//		fields := cfg.Gateway.RemoveFields
//		// Use fields for this request...
//	}
type RuntimeConfig interface {
	Get() *Config
}

// Log level constants.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Resolver modes for gateway target lookup.
const (
	// ResolverRegistry probes the target on demand (cached) before forwarding.
	ResolverRegistry = "registry"
	// ResolverRegistrySync trusts the last background check.
	ResolverRegistrySync = "registry_sync"
	// ResolverStatic forwards to the configured URL without health checks.
	ResolverStatic = "static"
)

// Default values.
const (
	DefaultListen            = "127.0.0.1:8080"
	DefaultTimeoutMS         = 30000
	DefaultShutdownTimeoutMS = 10000
	DefaultAPIVersion        = "v1"
	DefaultAuthService       = "auth"
	DefaultAuthCacheTTLMS    = 60000
	DefaultMaxBodyLogSize    = 1000
)

// Config represents the complete meshgate configuration.
type Config struct {
	Services       []ServiceConfig      `yaml:"services" toml:"services"`
	Gateway        GatewayConfig        `yaml:"gateway" toml:"gateway"`
	Logging        LoggingConfig        `yaml:"logging" toml:"logging"`
	Auth           AuthConfig           `yaml:"auth" toml:"auth"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" toml:"circuit_breaker"`
	Cache          cache.Config         `yaml:"cache" toml:"cache"`
	Server         ServerConfig         `yaml:"server" toml:"server"`
	Registry       registry.Config      `yaml:"registry" toml:"registry"`
	RateLimit      ratelimit.Config     `yaml:"rate_limit" toml:"rate_limit"`
}

// ServerConfig defines server-level settings.
type ServerConfig struct {
	Listen            string `yaml:"listen" toml:"listen"`
	TimeoutMS         int    `yaml:"timeout_ms" toml:"timeout_ms"`
	ShutdownTimeoutMS int    `yaml:"shutdown_timeout_ms" toml:"shutdown_timeout_ms"`
	MaxConcurrent     int    `yaml:"max_concurrent" toml:"max_concurrent"`
	MaxBodyBytes      int64  `yaml:"max_body_bytes" toml:"max_body_bytes"`
	EnableHTTP2       bool   `yaml:"enable_http2" toml:"enable_http2"` // HTTP/2 cleartext (h2c)
}

// GetListen returns the listen address with default fallback.
func (s *ServerConfig) GetListen() string {
	if s.Listen == "" {
		return DefaultListen
	}
	return s.Listen
}

// GetTimeout returns the server read/write timeout, default 30s.
func (s *ServerConfig) GetTimeout() time.Duration {
	if s.TimeoutMS <= 0 {
		return time.Duration(DefaultTimeoutMS) * time.Millisecond
	}
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// GetShutdownTimeout returns the graceful shutdown budget, default 10s.
func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	if s.ShutdownTimeoutMS <= 0 {
		return time.Duration(DefaultShutdownTimeoutMS) * time.Millisecond
	}
	return time.Duration(s.ShutdownTimeoutMS) * time.Millisecond
}

// GetMaxConcurrentOption returns the max concurrent setting as an Option.
// Returns None if MaxConcurrent is zero (unlimited).
func (s *ServerConfig) GetMaxConcurrentOption() mo.Option[int] {
	if s.MaxConcurrent <= 0 {
		return mo.None[int]()
	}
	return mo.Some(s.MaxConcurrent)
}

// ServiceConfig declares one downstream service.
type ServiceConfig struct {
	Name     string `yaml:"name" toml:"name" json:"name"`
	URL      string `yaml:"url" toml:"url" json:"url"`
	Required bool   `yaml:"required" toml:"required" json:"required"`
}

// GatewayConfig controls routing, versioning and response shaping.
type GatewayConfig struct {
	// Routes maps the first path segment after the version to a service name.
	// Unmapped segments are used as the service name directly.
	Routes map[string]string `yaml:"routes" toml:"routes"`

	// Deprecated maps a version to its sunset date (RFC 1123 or empty).
	// Responses for these versions carry Deprecation and Sunset headers.
	Deprecated map[string]string `yaml:"deprecated" toml:"deprecated"`

	// Resolver selects how targets are looked up: registry (default), registry_sync, static.
	Resolver string `yaml:"resolver" toml:"resolver"`

	// DefaultVersion applies when a request names no version. Default: v1.
	DefaultVersion string `yaml:"default_version" toml:"default_version"`

	// VendorPrefix is the media type prefix for Accept based versioning,
	// e.g. "application/vnd.healthmesh". Any vendor matches when empty.
	VendorPrefix string `yaml:"vendor_prefix" toml:"vendor_prefix"`

	// SupportedVersions lists accepted versions. Default: v1, v2.
	SupportedVersions []string `yaml:"supported_versions" toml:"supported_versions"`

	// RemoveFields are stripped from every JSON response at any depth.
	RemoveFields []string `yaml:"remove_fields" toml:"remove_fields"`
}

// GetResolver returns the resolver mode, default registry.
func (g *GatewayConfig) GetResolver() string {
	if g.Resolver == "" {
		return ResolverRegistry
	}
	return g.Resolver
}

// GetDefaultVersion returns the fallback API version.
func (g *GatewayConfig) GetDefaultVersion() string {
	if g.DefaultVersion == "" {
		return DefaultAPIVersion
	}
	return g.DefaultVersion
}

// GetSupportedVersions returns the accepted versions, default v1 and v2.
func (g *GatewayConfig) GetSupportedVersions() []string {
	if len(g.SupportedVersions) == 0 {
		return []string{"v1", "v2"}
	}
	return g.SupportedVersions
}

// IsSupported reports whether version is accepted.
func (g *GatewayConfig) IsSupported(version string) bool {
	return lo.Contains(g.GetSupportedVersions(), version)
}

// Sunset returns the sunset date of a deprecated version.
// The Option is absent when the version is not deprecated.
func (g *GatewayConfig) Sunset(version string) mo.Option[string] {
	sunset, ok := g.Deprecated[version]
	if !ok {
		return mo.None[string]()
	}
	return mo.Some(sunset)
}

// ServiceFor maps a path segment to a service name.
func (g *GatewayConfig) ServiceFor(segment string) string {
	if name, ok := g.Routes[segment]; ok && name != "" {
		return name
	}
	return segment
}

// AuthConfig defines token delegation and admin protection.
type AuthConfig struct {
	// AdminKey protects /health/services via X-Admin-Key when set.
	AdminKey string `yaml:"admin_key" toml:"admin_key"`

	// APIKey lets machine clients authenticate with X-API-Key instead of a bearer token.
	APIKey string `yaml:"api_key" toml:"api_key"`

	// Service is the registry name of the auth service. Default: auth.
	Service string `yaml:"service" toml:"service"`

	// PublicPaths are path prefixes that skip token validation.
	PublicPaths []string `yaml:"public_paths" toml:"public_paths"`

	// CacheTTLMS keeps verdicts for this long. Default: 60000. Negative disables caching.
	CacheTTLMS int `yaml:"cache_ttl_ms" toml:"cache_ttl_ms"`

	// Enabled requires a valid bearer token on /api routes.
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// GetService returns the auth service name.
func (a *AuthConfig) GetService() string {
	if a.Service == "" {
		return DefaultAuthService
	}
	return a.Service
}

// GetCacheTTL returns the verdict cache TTL. Zero means no caching.
func (a *AuthConfig) GetCacheTTL() time.Duration {
	switch {
	case a.CacheTTLMS < 0:
		return 0
	case a.CacheTTLMS == 0:
		return time.Duration(DefaultAuthCacheTTLMS) * time.Millisecond
	default:
		return time.Duration(a.CacheTTLMS) * time.Millisecond
	}
}

// IsPublic reports whether path skips authentication.
func (a *AuthConfig) IsPublic(path string) bool {
	return lo.SomeBy(a.PublicPaths, func(prefix string) bool {
		return prefix != "" && strings.HasPrefix(path, prefix)
	})
}

// CircuitBreakerConfig holds breaker defaults and per-service overrides.
type CircuitBreakerConfig struct {
	// Services overrides individual fields of Defaults per service name.
	Services map[string]health.BreakerConfig `yaml:"services" toml:"services"`
	Defaults health.BreakerConfig            `yaml:"defaults" toml:"defaults"`
}

// For returns the effective breaker configuration for a service.
func (c *CircuitBreakerConfig) For(service string) health.BreakerConfig {
	override, ok := c.Services[service]
	if !ok {
		return c.Defaults
	}
	return c.Defaults.Merge(override)
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level        string       `yaml:"level" toml:"level"`                 // debug, info, warn, error
	Format       string       `yaml:"format" toml:"format"`               // json, console, auto
	Output       string       `yaml:"output" toml:"output"`               // stdout, stderr, or file path
	Pretty       bool         `yaml:"pretty" toml:"pretty"`               // enable colored console output
	DebugOptions DebugOptions `yaml:"debug_options" toml:"debug_options"` // granular debug logging controls
}

// ParseLevel converts a string log level to zerolog.Level.
// Returns zerolog.InfoLevel if the level string is invalid.
func (l *LoggingConfig) ParseLevel() zerolog.Level {
	switch strings.ToLower(l.Level) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// EnableAllDebugOptions turns on all debug logging features.
// Used by --debug CLI flag shortcut.
func (l *LoggingConfig) EnableAllDebugOptions() {
	l.Level = LevelDebug
	l.DebugOptions = DebugOptions{
		LogRequestBody:     true,
		LogResponseHeaders: true,
		MaxBodyLogSize:     DefaultMaxBodyLogSize,
	}
}

// DebugOptions defines granular debug logging controls.
type DebugOptions struct {
	// LogRequestBody logs the (redacted, truncated) request body in debug mode.
	LogRequestBody bool `yaml:"log_request_body" toml:"log_request_body"`

	// LogResponseHeaders logs upstream response headers in debug mode.
	LogResponseHeaders bool `yaml:"log_response_headers" toml:"log_response_headers"`

	// MaxBodyLogSize is the maximum number of bytes logged from a body. Default: 1000.
	MaxBodyLogSize int `yaml:"max_body_log_size" toml:"max_body_log_size"`
}

// GetMaxBodyLogSize returns the effective max body log size with default fallback.
func (d *DebugOptions) GetMaxBodyLogSize() int {
	if d.MaxBodyLogSize <= 0 {
		return DefaultMaxBodyLogSize
	}
	return d.MaxBodyLogSize
}

// IsEnabled returns true if any debug option is enabled.
func (d *DebugOptions) IsEnabled() bool {
	return d.LogRequestBody || d.LogResponseHeaders
}

// RequiredServices returns the names of services marked required.
func (c *Config) RequiredServices() []string {
	return lo.FilterMap(c.Services, func(s ServiceConfig, _ int) (string, bool) {
		return s.Name, s.Required
	})
}

// ServiceURL returns the configured URL of a service.
func (c *Config) ServiceURL(name string) mo.Option[string] {
	svc, ok := lo.Find(c.Services, func(s ServiceConfig) bool { return s.Name == name })
	if !ok {
		return mo.None[string]()
	}
	return mo.Some(svc.URL)
}

// RegistryServices converts the service list for registry.Sync.
func (c *Config) RegistryServices() []registry.Service {
	return lo.Map(c.Services, func(s ServiceConfig, _ int) registry.Service {
		return registry.Service{Name: s.Name, URL: s.URL, Required: s.Required}
	})
}
