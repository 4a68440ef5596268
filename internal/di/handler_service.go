package di

import (
	"net/http"

	"github.com/samber/do/v2"

	"github.com/healthmesh/meshgate/internal/proxy"
)

// HandlerService wraps the HTTP handler.
type HandlerService struct {
	Gateway *proxy.Gateway
	Handler http.Handler
}

// NewProxyHandler creates the gateway and the HTTP handler with all middleware.
// Routing, versioning, auth, rate limit and concurrency settings are read per
// request, so they follow hot-reloads.
func NewProxyHandler(i do.Injector) (*HandlerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)
	registrySvc := do.MustInvoke[*RegistryService](i)
	trackerSvc := do.MustInvoke[*HealthTrackerService](i)
	dashboardSvc := do.MustInvoke[*DashboardService](i)
	authSvc := do.MustInvoke[*AuthService](i)
	rateLimitSvc := do.MustInvoke[*RateLimitService](i)
	concurrencySvc := do.MustInvoke[*ConcurrencyService](i)

	resolver := proxy.NewResolver(registrySvc.Registry, cfgSvc)
	gateway := proxy.NewGateway(cfgSvc, resolver, trackerSvc.Tracker, dashboardSvc.Aggregator, *loggerSvc.Logger)

	handler := proxy.SetupRoutes(proxy.RouteDeps{
		Runtime:    cfgSvc,
		Gateway:    gateway,
		Registry:   registrySvc.Registry,
		Breakers:   trackerSvc.Tracker,
		Limiter:    concurrencySvc.Limiter,
		RateLimits: rateLimitSvc.Store,
		Bearer:     authSvc.Authenticator,
	})

	return &HandlerService{Gateway: gateway, Handler: handler}, nil
}
