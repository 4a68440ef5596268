package di

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/healthmesh/meshgate/internal/cache"
)

// CacheService wraps the cache shared by registry probes and auth verdicts.
type CacheService struct {
	Cache cache.Cache
}

// NewCache creates the cache based on configuration.
func NewCache(i do.Injector) (*CacheService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	c, err := cache.New(&cfgSvc.Get().Cache, *loggerSvc.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &CacheService{Cache: c}, nil
}

// Shutdown implements do.Shutdowner for graceful cache cleanup.
func (c *CacheService) Shutdown() error {
	if c.Cache != nil {
		return c.Cache.Close()
	}
	return nil
}
