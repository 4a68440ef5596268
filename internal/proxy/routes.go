package proxy

import (
	"net/http"

	"github.com/healthmesh/meshgate/internal/auth"
	"github.com/healthmesh/meshgate/internal/config"
	"github.com/healthmesh/meshgate/internal/ratelimit"
)

// RouteDeps are the collaborators of the gateway handler. Only Runtime and
// Gateway are required.
type RouteDeps struct {
	Runtime    config.RuntimeConfig
	Gateway    http.Handler
	Registry   RegistryStatus
	Breakers   BreakerStates
	Limiter    *ConcurrencyLimiter
	RateLimits *ratelimit.Store
	Bearer     auth.Authenticator
}

// SetupRoutes creates the HTTP handler with all routes configured.
// Routes:
//   - /api/... - versioned gateway to downstream services (HTTP and WebSocket)
//   - GET /health - liveness
//   - GET /health/services - registry and breaker status (admin key if configured)
//
// Middleware order on /api: RequestID, Logging, Concurrency, RateLimit,
// MaxBody, RequestContext, Auth. Health routes skip the limits.
func SetupRoutes(deps RouteDeps) http.Handler {
	rt := deps.Runtime
	mux := http.NewServeMux()

	mux.Handle("GET /health", HealthHandler())
	mux.Handle("GET /health/services", AdminKeyMiddleware(rt)(ServicesHandler(deps.Registry, deps.Breakers)))

	api := deps.Gateway
	api = AuthMiddleware(rt, deps.Bearer)(api)
	api = RequestContextMiddleware(rt)(api)
	api = MaxBodyBytesMiddleware(func() int64 {
		if cfg := getRuntimeConfig(rt); cfg != nil {
			return cfg.Server.MaxBodyBytes
		}
		return 0
	})(api)
	api = RateLimitMiddleware(deps.RateLimits, rt)(api)
	if deps.Limiter != nil {
		api = ConcurrencyMiddleware(deps.Limiter)(api)
	}
	mux.Handle(APIPrefix, api)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, CodeNotFound, "no route for "+r.URL.Path)
	})

	var root http.Handler = mux
	root = LoggingMiddleware(func() config.DebugOptions {
		if cfg := getRuntimeConfig(rt); cfg != nil {
			return cfg.Logging.DebugOptions
		}
		return config.DebugOptions{}
	})(root)
	root = RequestIDMiddleware()(root)
	return root
}
