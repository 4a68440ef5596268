package cache

import (
	"errors"
	"fmt"
)

// Mode represents the cache operating mode.
type Mode string

const (
	// ModeSingle uses the local Ristretto cache (default).
	ModeSingle Mode = "single"

	// ModeDisabled turns every lookup into a miss.
	ModeDisabled Mode = "disabled"
)

// Config defines cache configuration.
type Config struct {
	Mode      Mode            `yaml:"mode" toml:"mode"`
	Ristretto RistrettoConfig `yaml:"ristretto" toml:"ristretto"`
}

// RistrettoConfig configures the Ristretto local cache.
type RistrettoConfig struct {
	// NumCounters is the number of access counters, ideally 10x the expected item count.
	NumCounters int64 `yaml:"num_counters" toml:"num_counters"`

	// MaxCost is the byte budget of cached values.
	MaxCost int64 `yaml:"max_cost" toml:"max_cost"`

	// BufferItems is the number of keys per Get buffer. Default 64.
	BufferItems int64 `yaml:"buffer_items" toml:"buffer_items"`
}

// GetMode returns the mode, defaulting to single.
func (c *Config) GetMode() Mode {
	if c.Mode == "" {
		return ModeSingle
	}
	return c.Mode
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.GetMode() {
	case ModeSingle:
		r := c.Ristretto.withDefaults()
		if r.MaxCost <= 0 {
			return errors.New("cache: ristretto.max_cost must be positive")
		}
		if r.NumCounters <= 0 {
			return errors.New("cache: ristretto.num_counters must be positive")
		}
	case ModeDisabled:
	default:
		return fmt.Errorf("cache: unknown mode %q", c.Mode)
	}
	return nil
}

// DefaultRistrettoConfig sizes the cache for ~10K entries within 16 MB.
func DefaultRistrettoConfig() RistrettoConfig {
	return RistrettoConfig{
		NumCounters: 100_000,
		MaxCost:     16 << 20,
		BufferItems: 64,
	}
}

func (r RistrettoConfig) withDefaults() RistrettoConfig {
	def := DefaultRistrettoConfig()
	if r.NumCounters == 0 {
		r.NumCounters = def.NumCounters
	}
	if r.MaxCost == 0 {
		r.MaxCost = def.MaxCost
	}
	if r.BufferItems <= 0 {
		r.BufferItems = def.BufferItems
	}
	return r
}
