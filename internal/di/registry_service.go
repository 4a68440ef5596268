package di

import (
	"fmt"

	"github.com/samber/do/v2"
	"github.com/samber/lo"

	"github.com/healthmesh/meshgate/internal/config"
	"github.com/healthmesh/meshgate/internal/registry"
)

// RegistryService wraps the service registry for DI.
type RegistryService struct {
	Registry *registry.Registry
}

// NewRegistry creates the registry, registers the configured services and
// fails when a required one is missing. Reloads re-sync the service list.
func NewRegistry(i do.Injector) (*RegistryService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)
	cacheSvc := do.MustInvoke[*CacheService](i)

	cfg := cfgSvc.Get()
	prober := registry.NewHTTPProber(cfg.Registry.GetHealthPath(), nil)
	reg := registry.New(cfg.Registry, prober, cacheSvc.Cache, *loggerSvc.Logger)

	reg.Sync(cfg.RegistryServices())
	if err := reg.VerifyRequired(requiredServices(cfg)); err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	cfgSvc.OnReload(func(newCfg *config.Config) error {
		reg.Sync(newCfg.RegistryServices())
		if err := reg.VerifyRequired(requiredServices(newCfg)); err != nil {
			return fmt.Errorf("registry re-sync: %w", err)
		}
		loggerSvc.Logger.Info().
			Int("services", reg.GetServiceCount()).
			Msg("registry re-synced via hot-reload")
		return nil
	})

	return &RegistryService{Registry: reg}, nil
}

// Start launches background health checks when enabled in config.
func (s *RegistryService) Start(cfg *config.Config) {
	if cfg.Registry.IsEnabled() {
		s.Registry.StartHealthChecks()
	}
}

// Shutdown implements do.Shutdowner and stops background checks.
func (s *RegistryService) Shutdown() error {
	return s.Registry.Shutdown()
}

// requiredServices lists services that must be registered: the ones marked
// required plus the auth service when authentication is on.
func requiredServices(cfg *config.Config) []string {
	names := cfg.RequiredServices()
	if cfg.Auth.Enabled {
		names = append(names, cfg.Auth.GetService())
	}
	return lo.Uniq(names)
}
