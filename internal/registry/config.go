// Package registry maps logical service names to live, health-checked base URLs.
package registry

import "time"

// Default configuration values.
const (
	DefaultIntervalMS    = 30000 // between background check passes
	DefaultTimeoutMS     = 5000  // per probe
	DefaultMaxFailures   = 3     // consecutive failures before a service is unhealthy
	DefaultHealthPath    = "/health"
	DefaultConcurrency   = 8 // probes in flight during one pass
	DefaultHealthEnabled = true
)

// Config defines health-check behavior of the registry.
type Config struct {
	// Enabled starts the background checker on serve. Default: true.
	Enabled *bool `yaml:"enabled" toml:"enabled"`

	// HealthPath is appended to each base URL when probing. Default: /health.
	HealthPath string `yaml:"health_path" toml:"health_path"`

	// IntervalMS is the time between background check passes. Default: 30000.
	IntervalMS int `yaml:"interval_ms" toml:"interval_ms"`

	// TimeoutMS bounds one probe. Default: 5000.
	TimeoutMS int `yaml:"timeout_ms" toml:"timeout_ms"`

	// MaxFailures is the consecutive-failure count that marks a service unhealthy. Default: 3.
	MaxFailures int `yaml:"max_failures" toml:"max_failures"`

	// JitterMS adds up to this much random delay to the check interval. Default: 0.
	JitterMS int `yaml:"jitter_ms" toml:"jitter_ms"`

	// ProbeCacheTTLMS lets on-demand lookups reuse a probe outcome this recent.
	// Zero probes on every lookup.
	ProbeCacheTTLMS int `yaml:"probe_cache_ttl_ms" toml:"probe_cache_ttl_ms"`

	// Concurrency caps probes in flight during one pass. Default: 8.
	Concurrency int `yaml:"concurrency" toml:"concurrency"`
}

// IsEnabled returns whether background checks should run. Default true.
func (c *Config) IsEnabled() bool {
	if c.Enabled == nil {
		return DefaultHealthEnabled
	}
	return *c.Enabled
}

// GetHealthPath returns the probe path, default /health.
func (c *Config) GetHealthPath() string {
	if c.HealthPath == "" {
		return DefaultHealthPath
	}
	return c.HealthPath
}

// GetInterval returns the check interval, default 30s.
func (c *Config) GetInterval() time.Duration {
	if c.IntervalMS <= 0 {
		return time.Duration(DefaultIntervalMS) * time.Millisecond
	}
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// GetTimeout returns the probe timeout, default 5s.
func (c *Config) GetTimeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return time.Duration(DefaultTimeoutMS) * time.Millisecond
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// GetMaxFailures returns the unhealthy threshold, default 3.
func (c *Config) GetMaxFailures() int {
	if c.MaxFailures <= 0 {
		return DefaultMaxFailures
	}
	return c.MaxFailures
}

// GetJitter returns the maximum interval jitter.
func (c *Config) GetJitter() time.Duration {
	if c.JitterMS <= 0 {
		return 0
	}
	return time.Duration(c.JitterMS) * time.Millisecond
}

// GetProbeCacheTTL returns how long a probe outcome satisfies on-demand lookups.
func (c *Config) GetProbeCacheTTL() time.Duration {
	if c.ProbeCacheTTLMS <= 0 {
		return 0
	}
	return time.Duration(c.ProbeCacheTTLMS) * time.Millisecond
}

// GetConcurrency returns the per-pass probe parallelism, default 8.
func (c *Config) GetConcurrency() int {
	if c.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return c.Concurrency
}

// StalenessLimit is the age beyond which a health verdict is no longer trusted.
func (c *Config) StalenessLimit() time.Duration {
	return c.GetInterval() * time.Duration(c.GetMaxFailures())
}
