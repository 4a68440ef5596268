// Package health provides the circuit breaker that guards every outbound call meshgate makes.
//
// The package implements:
//   - A generic CircuitBreaker[Req, Resp] (CLOSED -> OPEN -> HALF-OPEN -> CLOSED)
//     tripping on a rolling failure percentage once a minimum call volume is reached
//   - The DependencyError taxonomy reported to callers
//   - A Tracker holding the per-service breakers used by the gateway
//
// The breaker never retries. Retry policy belongs to the caller.
package health

import "time"

// Default configuration values.
const (
	DefaultTimeoutMS                = 3000  // per-call deadline
	DefaultErrorThresholdPercentage = 50    // failure percentage that trips the breaker
	DefaultResetTimeoutMS           = 30000 // time spent OPEN before a half-open probe
	DefaultVolumeThreshold          = 5     // completed calls required before the percentage counts
	DefaultRollingWindowMS          = 10000 // width of the rolling statistics window
	DefaultRollingBuckets           = 10    // buckets the window is split into
)

// BreakerConfig defines circuit breaker behavior for one dependency.
type BreakerConfig struct {
	// TimeoutMS is the per-call deadline. Calls exceeding it count as failures.
	TimeoutMS int `yaml:"timeout_ms" toml:"timeout_ms"`

	// ErrorThresholdPercentage is the failure rate (0-100) at which the breaker opens.
	ErrorThresholdPercentage int `yaml:"error_threshold_percentage" toml:"error_threshold_percentage"`

	// ResetTimeoutMS is how long the breaker stays OPEN before admitting a probe.
	ResetTimeoutMS int `yaml:"reset_timeout_ms" toml:"reset_timeout_ms"`

	// VolumeThreshold is the minimum number of completed calls in the window
	// before the failure percentage is evaluated.
	VolumeThreshold int `yaml:"volume_threshold" toml:"volume_threshold"`

	// RollingWindowMS is the statistics window. Older outcomes age out bucket by bucket.
	RollingWindowMS int `yaml:"rolling_window_ms" toml:"rolling_window_ms"`

	// RollingBuckets is the number of buckets the window is divided into.
	RollingBuckets int `yaml:"rolling_buckets" toml:"rolling_buckets"`
}

// GetTimeout returns the per-call deadline or the 3s default.
func (c *BreakerConfig) GetTimeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return time.Duration(DefaultTimeoutMS) * time.Millisecond
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// GetErrorThresholdPercentage returns the trip percentage clamped to 1-100, default 50.
func (c *BreakerConfig) GetErrorThresholdPercentage() int {
	switch {
	case c.ErrorThresholdPercentage <= 0:
		return DefaultErrorThresholdPercentage
	case c.ErrorThresholdPercentage > 100:
		return 100
	default:
		return c.ErrorThresholdPercentage
	}
}

// GetResetTimeout returns how long the breaker stays open, default 30s.
func (c *BreakerConfig) GetResetTimeout() time.Duration {
	if c.ResetTimeoutMS <= 0 {
		return time.Duration(DefaultResetTimeoutMS) * time.Millisecond
	}
	return time.Duration(c.ResetTimeoutMS) * time.Millisecond
}

// GetVolumeThreshold returns the minimum sample size, default 5.
func (c *BreakerConfig) GetVolumeThreshold() int {
	if c.VolumeThreshold <= 0 {
		return DefaultVolumeThreshold
	}
	return c.VolumeThreshold
}

// GetRollingWindow returns the statistics window, default 10s.
func (c *BreakerConfig) GetRollingWindow() time.Duration {
	if c.RollingWindowMS <= 0 {
		return time.Duration(DefaultRollingWindowMS) * time.Millisecond
	}
	return time.Duration(c.RollingWindowMS) * time.Millisecond
}

// GetRollingBuckets returns the bucket count, default 10.
func (c *BreakerConfig) GetRollingBuckets() int {
	if c.RollingBuckets <= 0 {
		return DefaultRollingBuckets
	}
	return c.RollingBuckets
}

// GetBucketPeriod returns the width of one rolling bucket.
func (c *BreakerConfig) GetBucketPeriod() time.Duration {
	period := c.GetRollingWindow() / time.Duration(c.GetRollingBuckets())
	if period <= 0 {
		return c.GetRollingWindow()
	}
	return period
}

// Merge returns a copy of c with every non-zero field of override applied.
func (c BreakerConfig) Merge(override BreakerConfig) BreakerConfig {
	if override.TimeoutMS > 0 {
		c.TimeoutMS = override.TimeoutMS
	}
	if override.ErrorThresholdPercentage > 0 {
		c.ErrorThresholdPercentage = override.ErrorThresholdPercentage
	}
	if override.ResetTimeoutMS > 0 {
		c.ResetTimeoutMS = override.ResetTimeoutMS
	}
	if override.VolumeThreshold > 0 {
		c.VolumeThreshold = override.VolumeThreshold
	}
	if override.RollingWindowMS > 0 {
		c.RollingWindowMS = override.RollingWindowMS
	}
	if override.RollingBuckets > 0 {
		c.RollingBuckets = override.RollingBuckets
	}
	return c
}
