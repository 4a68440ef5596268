package di

import "github.com/healthmesh/meshgate/internal/config"

// Exported for testing.

// HasWatcher reports whether hot-reload is active.
func (c *ConfigService) HasWatcher() bool {
	return c.watcher != nil
}

// NewConfigServiceWithConfig creates a ConfigService holding cfg and no watcher.
func NewConfigServiceWithConfig(cfg *config.Config) *ConfigService {
	return &ConfigService{runtime: config.NewRuntime(cfg)}
}

// ApplyConcurrency runs the hot-reload callback of the concurrency service.
func (s *ConcurrencyService) ApplyConcurrency(cfg *config.Config) error {
	return s.applyConfig(cfg)
}

// RequiredServices exposes the required service computation.
var RequiredServices = requiredServices
