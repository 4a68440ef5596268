package proxy

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/healthmesh/meshgate/internal/auth"
	"github.com/healthmesh/meshgate/internal/client"
	"github.com/healthmesh/meshgate/internal/config"
	"github.com/healthmesh/meshgate/internal/ratelimit"
	"github.com/samber/mo"
)

type stubAuthenticator struct {
	result auth.Result
	calls  int
	mu     sync.Mutex
}

func (s *stubAuthenticator) Validate(r *http.Request) auth.Result {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if r.Header.Get("Authorization") == "" {
		return auth.Result{Type: auth.TypeBearer, Error: "missing authorization header"}
	}
	return s.result
}

func (s *stubAuthenticator) Type() auth.Type { return auth.TypeBearer }

// captureHandler records the RequestContext it was called with.
type captureHandler struct {
	rc     RequestContext
	called bool
}

func (c *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.called = true
	c.rc, _ = RequestContextFrom(r.Context()).Get()
	w.WriteHeader(http.StatusOK)
}

func authChain(cfg *config.Config, bearer auth.Authenticator, next http.Handler) http.Handler {
	rt := config.NewRuntime(cfg)
	return RequestContextMiddleware(rt)(AuthMiddleware(rt, bearer)(next))
}

func authEnabledConfig() *config.Config {
	return &config.Config{Auth: config.AuthConfig{Enabled: true}}
}

func TestAuthMiddleware_ValidBearerAttachesUser(t *testing.T) {
	t.Parallel()

	bearer := &stubAuthenticator{result: auth.Result{
		Valid: true,
		Type:  auth.TypeBearer,
		User:  mo.Some(client.User{ID: "u-42", Roles: []string{"clinician"}}),
	}}
	next := &captureHandler{}
	handler := authChain(authEnabledConfig(), bearer, next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lab/orders", http.NoBody)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := next.rc.UserID(); got != "u-42" {
		t.Errorf("UserID() = %q, want u-42", got)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	t.Parallel()

	next := &captureHandler{}
	handler := authChain(authEnabledConfig(), &stubAuthenticator{}, next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lab/orders", http.NoBody))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), CodeUnauthorized) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if next.called {
		t.Error("next handler must not run")
	}
}

func TestAuthMiddleware_AuthServiceDown(t *testing.T) {
	t.Parallel()

	bearer := &stubAuthenticator{result: auth.Result{
		Type: auth.TypeBearer,
		Err:  errors.New("auth: breaker open"),
	}}
	cfg := authEnabledConfig()
	cfg.Auth.Service = "identity"
	handler := authChain(cfg, bearer, &captureHandler{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lab/orders", http.NoBody)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"service":"identity"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAuthMiddleware_APIKeyAlternative(t *testing.T) {
	t.Parallel()

	cfg := authEnabledConfig()
	cfg.Auth.APIKey = "machine-key"
	bearer := &stubAuthenticator{}
	handler := authChain(cfg, bearer, &captureHandler{})

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"valid key", "machine-key", http.StatusOK},
		{"wrong key", "other", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/lab/orders", http.NoBody)
		req.Header.Set(auth.HeaderAPIKey, tt.key)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestAuthMiddleware_SkipsWhenDisabledOrPublic(t *testing.T) {
	t.Parallel()

	bearer := &stubAuthenticator{}

	disabled := authChain(&config.Config{}, bearer, &captureHandler{})
	rec := httptest.NewRecorder()
	disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lab/orders", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Errorf("disabled auth: status = %d", rec.Code)
	}

	cfg := authEnabledConfig()
	cfg.Auth.PublicPaths = []string{"/api/v1/catalog"}
	public := authChain(cfg, bearer, &captureHandler{})
	rec = httptest.NewRecorder()
	public.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/tests", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Errorf("public path: status = %d", rec.Code)
	}

	if bearer.calls != 0 {
		t.Errorf("authenticator called %d times, want 0", bearer.calls)
	}
}

func TestAdminKeyMiddleware(t *testing.T) {
	t.Parallel()

	rt := config.NewRuntime(&config.Config{Auth: config.AuthConfig{AdminKey: "ops"}})
	handler := AdminKeyMiddleware(rt)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for key, want := range map[string]int{"": http.StatusUnauthorized, "nope": http.StatusUnauthorized, "ops": http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/health/services", http.NoBody)
		if key != "" {
			req.Header.Set(auth.HeaderAdminKey, key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("key %q: status = %d, want %d", key, rec.Code, want)
		}
	}

	rt.Store(&config.Config{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/services", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Errorf("no admin key configured: status = %d, want 200", rec.Code)
	}
}

func TestKeyedAuthenticatorRebuildsOnChange(t *testing.T) {
	t.Parallel()

	k := &keyedAuthenticator{header: auth.HeaderAPIKey}
	if k.get("") != nil {
		t.Error("empty key must disable the authenticator")
	}
	first := k.get("a")
	if k.get("a") != first {
		t.Error("same key should reuse the authenticator")
	}
	if k.get("b") == first {
		t.Error("changed key should rebuild the authenticator")
	}
}

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if seen == "" || rec.Header().Get(HeaderRequestID) != seen {
		t.Errorf("context id %q, header %q", seen, rec.Header().Get(HeaderRequestID))
	}
}

func TestRequestIDMiddleware_UsesProvidedID(t *testing.T) {
	t.Parallel()

	handler := RequestIDMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	req.Header.Set(HeaderRequestID, "trace-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(HeaderRequestID); got != "trace-abc" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestConcurrencyMiddleware_RejectsWhenSaturated(t *testing.T) {
	t.Parallel()

	limiter := NewConcurrencyLimiter(1)
	handler := ConcurrencyMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if !limiter.TryAcquire() {
		t.Fatal("first acquire should succeed")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lab", http.NoBody))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), CodeServerBusy) {
		t.Errorf("saturated: status = %d body %s", rec.Code, rec.Body.String())
	}

	limiter.Release()
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lab", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Errorf("after release: status = %d", rec.Code)
	}
	if limiter.CurrentInFlight() != 0 {
		t.Errorf("in flight = %d, want 0", limiter.CurrentInFlight())
	}
}

func TestConcurrencyLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	limiter := NewConcurrencyLimiter(0)
	for i := 0; i < 100; i++ {
		if !limiter.TryAcquire() {
			t.Fatalf("acquire %d failed with no limit", i)
		}
	}
	limiter.SetLimit(10)
	if limiter.TryAcquire() {
		t.Error("lowered limit should reject while 100 are in flight")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	rlCfg := ratelimit.Config{Enabled: true, RequestsPerMinute: 60, Burst: 1}
	store, err := ratelimit.NewStore(rlCfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	rt := config.NewRuntime(&config.Config{RateLimit: rlCfg})
	handler := RateLimitMiddleware(store, rt)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/lab", http.NoBody)
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send("client-a"); rec.Code != http.StatusOK || rec.Header().Get(HeaderRateLimitLimit) != "1" {
		t.Fatalf("first: status = %d limit %q", rec.Code, rec.Header().Get(HeaderRateLimitLimit))
	}

	rec := send("client-a")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get(HeaderRetryAfter) != "1" {
		t.Errorf("Retry-After = %q, want 1", rec.Header().Get(HeaderRetryAfter))
	}
	if rec.Header().Get(HeaderRateLimitRemaining) != "0" {
		t.Errorf("remaining = %q", rec.Header().Get(HeaderRateLimitRemaining))
	}

	if rec := send("client-b"); rec.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want 200", rec.Code)
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	t.Parallel()

	store, err := ratelimit.NewStore(ratelimit.Config{RequestsPerMinute: 1, Burst: 1})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	rt := config.NewRuntime(&config.Config{})
	handler := RateLimitMiddleware(store, rt)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lab", http.NoBody))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
}

func TestRateLimitKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		xff     string
		trusted bool
		want    string
	}{
		{"api key wins", "k1", "203.0.113.9", true, "key:k1"},
		{"remote address", "", "203.0.113.9", false, "ip:192.0.2.1"},
		{"first forwarded hop", "", "203.0.113.9, 10.0.0.1", true, "ip:203.0.113.9"},
		{"empty forwarded", "", " ", true, "ip:192.0.2.1"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/lab", http.NoBody)
		if tt.header != "" {
			req.Header.Set("X-API-Key", tt.header)
		}
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		got := rateLimitKey(req, &ratelimit.Config{TrustForwardedFor: tt.trusted})
		if got != tt.want {
			t.Errorf("%s: rateLimitKey = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMaxBodyBytesMiddleware(t *testing.T) {
	t.Parallel()

	var readErr error
	handler := MaxBodyBytesMiddleware(func() int64 { return 8 })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		if IsBodyTooLargeError(readErr) {
			WriteBodyTooLargeError(w)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/lab", strings.NewReader("0123456789")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413 (err %v)", rec.Code, readErr)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/lab", strings.NewReader("small")))
	if rec.Code != http.StatusOK {
		t.Errorf("small body: status = %d", rec.Code)
	}
}

func TestLoggingMiddleware_CapturesStatus(t *testing.T) {
	t.Parallel()

	handler := LoggingMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", http.NoBody))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestResponseWriter_CapturesStatusCode(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("statusCode = %d, want first written 404", rw.statusCode)
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap should return the wrapped writer")
	}
}

func TestRecordRequestContextThroughWrappers(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	outer := &unwrapper{ResponseWriter: rw}
	recordRequestContext(outer, RequestContext{TargetService: "lab"})

	if rw.rc == nil || rw.rc.TargetService != "lab" {
		t.Errorf("request context not recorded: %+v", rw.rc)
	}
}

type unwrapper struct{ http.ResponseWriter }

func (u *unwrapper) Unwrap() http.ResponseWriter { return u.ResponseWriter }

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want string
		in   time.Duration
	}{
		{"0s", 0},
		{"250µs", 250 * time.Microsecond},
		{"12.50ms", 12500 * time.Microsecond},
		{"1.50s", 1500 * time.Millisecond},
		{"2m5s", 125 * time.Second},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCompletionMessage(t *testing.T) {
	t.Parallel()

	if got := formatCompletionMessage(http.StatusOK, "✓", "1.00ms"); got != "✓ OK (1.00ms)" {
		t.Errorf("got %q", got)
	}
	if got := formatCompletionMessage(StatusClientClosedRequest, "⚠", "5s"); got != "⚠ Client Closed Request (5s)" {
		t.Errorf("got %q", got)
	}
}

func TestRedactSensitiveFields(t *testing.T) {
	t.Parallel()

	in := `{"Authorization":"Bearer x","mrn":"123","access_token":"t"}`
	out := redactSensitiveFields(in)
	if strings.Contains(out, "Bearer x") || strings.Contains(out, `"t"`) {
		t.Errorf("secrets left in %s", out)
	}
	if !strings.Contains(out, `"mrn":"123"`) {
		t.Errorf("non-sensitive field removed: %s", out)
	}
}
