package config

import "sync/atomic"

// Runtime provides atomic access to configuration for hot-reload support.
// Readers see either the old or the new config, never a mix; in-flight
// requests keep the config they started with.
//
//	runtime := config.NewRuntime(initialConfig)
//
//	// In a request handler:
//	cfg := runtime.Get()
//
//	// In the config watcher callback:
//	runtime.Store(newConfig)
type Runtime struct {
	ptr atomic.Pointer[Config]
}

// NewRuntime creates a new Runtime holding initial.
func NewRuntime(initial *Config) *Runtime {
	r := &Runtime{}
	r.ptr.Store(initial)
	return r
}

// Get returns the current configuration.
func (r *Runtime) Get() *Config {
	return r.ptr.Load()
}

// Store atomically replaces the configuration.
func (r *Runtime) Store(cfg *Config) {
	r.ptr.Store(cfg)
}

var _ RuntimeConfig = (*Runtime)(nil)
