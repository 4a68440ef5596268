package cache

import (
	"fmt"

	"github.com/rs/zerolog"
)

// New creates a Cache for cfg.
func New(cfg *Config, logger zerolog.Logger) (Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.With().Str("component", "cache").Logger()

	switch cfg.GetMode() {
	case ModeSingle:
		c, err := newRistrettoCache(cfg.Ristretto, log)
		if err != nil {
			return nil, fmt.Errorf("cache: create ristretto: %w", err)
		}
		return c, nil
	case ModeDisabled:
		log.Debug().Msg("caching disabled")
		return NewNoop(), nil
	default:
		return nil, fmt.Errorf("cache: unknown mode %q", cfg.Mode)
	}
}
