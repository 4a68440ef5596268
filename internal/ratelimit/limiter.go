// Package ratelimit throttles gateway callers with one token bucket per client.
//
// Buckets are created on first use and kept in a bounded LRU store, so a flood
// of distinct client keys cannot grow memory without limit.
//
// Basic usage:
//
//	store, _ := ratelimit.NewStore(cfg)
//	if d := store.Allow(clientKey); !d.Allowed {
//		// reply 429 with Retry-After: d.RetryAfter
//	}
package ratelimit

import (
	"errors"
	"time"
)

// Common errors returned by rate limiters.
var (
	// ErrRateLimitExceeded is returned when a rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("ratelimit: rate limit exceeded")
)

// Default configuration values.
const (
	DefaultRequestsPerMinute = 600
	DefaultMaxClients        = 10000
	DefaultKeyHeader         = "X-API-Key"
)

// Config defines per-client request limits.
type Config struct {
	// KeyHeader identifies a client. Callers without it are keyed by remote IP.
	KeyHeader string `yaml:"key_header" toml:"key_header"`

	// RequestsPerMinute is the sustained rate per client. Default: 600.
	RequestsPerMinute int `yaml:"requests_per_minute" toml:"requests_per_minute"`

	// Burst is the bucket size. Default: RequestsPerMinute.
	Burst int `yaml:"burst" toml:"burst"`

	// MaxClients bounds the number of tracked buckets. Default: 10000.
	MaxClients int `yaml:"max_clients" toml:"max_clients"`

	// Enabled turns the limiter on.
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// TrustForwardedFor keys anonymous clients by the first X-Forwarded-For hop.
	TrustForwardedFor bool `yaml:"trust_forwarded_for" toml:"trust_forwarded_for"`
}

// GetRequestsPerMinute returns the per-client rate with default fallback.
func (c *Config) GetRequestsPerMinute() int {
	if c.RequestsPerMinute <= 0 {
		return DefaultRequestsPerMinute
	}
	return c.RequestsPerMinute
}

// GetBurst returns the bucket size, defaulting to one minute of traffic.
func (c *Config) GetBurst() int {
	if c.Burst <= 0 {
		return c.GetRequestsPerMinute()
	}
	return c.Burst
}

// GetMaxClients returns the bucket store capacity.
func (c *Config) GetMaxClients() int {
	if c.MaxClients <= 0 {
		return DefaultMaxClients
	}
	return c.MaxClients
}

// GetKeyHeader returns the client key header.
func (c *Config) GetKeyHeader() string {
	if c.KeyHeader == "" {
		return DefaultKeyHeader
	}
	return c.KeyHeader
}

// Decision is the outcome of one Allow call.
type Decision struct {
	// RetryAfter is how long the client should wait; zero when Allowed.
	RetryAfter time.Duration
	// Remaining approximates the tokens left in the bucket.
	Remaining int
	// Limit is the bucket size.
	Limit int
	// Allowed reports whether the request may proceed.
	Allowed bool
}
