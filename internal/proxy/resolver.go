package proxy

import (
	"context"

	"github.com/healthmesh/meshgate/internal/config"
	"github.com/samber/mo"
)

// ServiceLocator looks up live service URLs. *registry.Registry implements it.
type ServiceLocator interface {
	GetServiceURL(ctx context.Context, name string) mo.Option[string]
	GetServiceURLSync(name string) mo.Option[string]
}

// Resolver turns a service name into a base URL using the configured mode.
// The mode is read from the runtime config on every call.
type Resolver struct {
	locator ServiceLocator
	runtime config.RuntimeConfig
}

// NewResolver creates a Resolver. A nil locator forces static resolution.
func NewResolver(locator ServiceLocator, runtime config.RuntimeConfig) *Resolver {
	return &Resolver{locator: locator, runtime: runtime}
}

// Resolve returns the base URL of service, absent when it is unknown or unhealthy.
func (r *Resolver) Resolve(ctx context.Context, service string) mo.Option[string] {
	cfg := r.runtime.Get()

	mode := cfg.Gateway.GetResolver()
	if r.locator == nil {
		mode = config.ResolverStatic
	}

	switch mode {
	case config.ResolverStatic:
		return cfg.ServiceURL(service)
	case config.ResolverRegistrySync:
		return r.locator.GetServiceURLSync(service)
	default:
		return r.locator.GetServiceURL(ctx, service)
	}
}
