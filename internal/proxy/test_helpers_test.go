package proxy_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/healthmesh/meshgate/internal/auth"
	"github.com/healthmesh/meshgate/internal/config"
	"github.com/healthmesh/meshgate/internal/health"
	"github.com/healthmesh/meshgate/internal/proxy"
	"github.com/healthmesh/meshgate/internal/ratelimit"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const jsonContentType = "application/json"

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.UTC)

// recordingBackend is an upstream that remembers the last request it saw.
type recordingBackend struct {
	server  *httptest.Server
	handler http.HandlerFunc
	last    *http.Request
	body    []byte
	mu      sync.Mutex
}

func newRecordingBackend(t *testing.T, handler http.HandlerFunc) *recordingBackend {
	t.Helper()

	rb := &recordingBackend{handler: handler}
	rb.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rb.mu.Lock()
		rb.last = r.Clone(r.Context())
		rb.body = body
		rb.mu.Unlock()
		rb.handler(w, r)
	}))
	t.Cleanup(rb.server.Close)
	return rb
}

func (rb *recordingBackend) URL() string {
	return rb.server.URL
}

func (rb *recordingBackend) Last() (*http.Request, []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.last, rb.body
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", jsonContentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// baseConfig returns a static-resolver config routing each name to its URL.
func baseConfig(services map[string]string) *config.Config {
	cfg := &config.Config{
		Gateway: config.GatewayConfig{Resolver: config.ResolverStatic},
		CircuitBreaker: config.CircuitBreakerConfig{
			Defaults: health.BreakerConfig{
				TimeoutMS:                2000,
				ErrorThresholdPercentage: 50,
				ResetTimeoutMS:           60000,
				VolumeThreshold:          2,
			},
		},
	}
	for name, url := range services {
		cfg.Services = append(cfg.Services, config.ServiceConfig{Name: name, URL: url})
	}
	return cfg
}

type gatewayOptions struct {
	dashboard proxy.DashboardSource
	bearer    auth.Authenticator
	limiter   *proxy.ConcurrencyLimiter
	store     *ratelimit.Store
}

type testGateway struct {
	handler http.Handler
	tracker *health.Tracker
	runtime *config.Runtime
}

func newTestGateway(t *testing.T, cfg *config.Config, opts gatewayOptions) *testGateway {
	t.Helper()

	runtime := config.NewRuntime(cfg)
	logger := zerolog.Nop()
	tracker := health.NewTracker(func(name string) health.BreakerConfig {
		return runtime.Get().CircuitBreaker.For(name)
	}, http.DefaultTransport, &logger)

	gw := proxy.NewGateway(runtime, proxy.NewResolver(nil, runtime), tracker, opts.dashboard, logger)
	gw.SetClock(func() time.Time { return fixedNow })

	handler := proxy.SetupRoutes(proxy.RouteDeps{
		Runtime:    runtime,
		Gateway:    gw,
		Breakers:   tracker,
		Limiter:    opts.limiter,
		RateLimits: opts.store,
		Bearer:     opts.bearer,
	})
	return &testGateway{handler: handler, tracker: tracker, runtime: runtime}
}

func (tg *testGateway) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	tg.handler.ServeHTTP(rec, req)
	return rec
}

func (tg *testGateway) get(path string) *httptest.ResponseRecorder {
	return tg.do(httptest.NewRequest(http.MethodGet, path, http.NoBody))
}

func newStore(t *testing.T, cfg ratelimit.Config) *ratelimit.Store {
	t.Helper()
	store, err := ratelimit.NewStore(cfg)
	require.NoError(t, err)
	return store
}
