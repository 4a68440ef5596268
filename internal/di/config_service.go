package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/healthmesh/meshgate/internal/config"
)

// ConfigPathKey is the named key for the config path string.
// This allows multiple string values in the container.
const ConfigPathKey = "config.path"

// ConfigService holds the live configuration with hot-reload support.
// Reads go through an atomic pointer, so in-flight requests keep the config
// they started with while new requests see the reloaded one.
type ConfigService struct {
	runtime *config.Runtime
	watcher *config.Watcher
	path    string
}

// Get returns the current configuration. It implements config.RuntimeConfig.
func (c *ConfigService) Get() *config.Config {
	return c.runtime.Get()
}

// Path returns the file the configuration was loaded from.
func (c *ConfigService) Path() string {
	return c.path
}

// OnReload registers cb to run after each validated reload.
// Without a watcher it does nothing.
func (c *ConfigService) OnReload(cb config.ReloadCallback) {
	if c.watcher == nil {
		return
	}
	c.watcher.OnReload(cb)
}

// StartWatching begins watching the config file for changes.
// This should be called after the DI container is fully initialized.
// The context controls the watcher lifecycle - cancel to stop watching.
func (c *ConfigService) StartWatching(ctx context.Context) {
	if c.watcher == nil {
		return
	}

	go func() {
		if err := c.watcher.Watch(ctx); err != nil {
			log.Error().Err(err).Msg("config watcher error")
		}
	}()

	log.Info().Str("path", c.path).Msg("config file watcher started")
}

// Shutdown implements do.Shutdowner for graceful watcher cleanup.
func (c *ConfigService) Shutdown() error {
	if c.watcher != nil {
		return c.watcher.Shutdown()
	}
	return nil
}

// NewConfig loads and validates the configuration and creates a watcher.
// The watcher is created but not started - call StartWatching() after container init.
func NewConfig(i do.Injector) (*ConfigService, error) {
	path := do.MustInvokeNamed[string](i, ConfigPathKey)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	svc := &ConfigService{
		runtime: config.NewRuntime(cfg),
		path:    path,
	}

	// Hot-reload is optional: warn and continue without a watcher.
	watcher, err := config.NewWatcher(path, config.WithWatcherLogger(log.Logger))
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config watcher creation failed, hot-reload disabled")
		return svc, nil
	}
	svc.watcher = watcher

	// Registered first so every later callback runs against the swapped config.
	watcher.OnReload(func(newCfg *config.Config) error {
		svc.runtime.Store(newCfg)
		log.Info().Str("path", path).Msg("config hot-reloaded successfully")
		return nil
	})

	return svc, nil
}
