package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/healthmesh/meshgate/internal/auth"
	"github.com/healthmesh/meshgate/internal/config"
	"github.com/healthmesh/meshgate/internal/ratelimit"
	"github.com/rs/zerolog"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
)

// RequestIDMiddleware adds X-Request-ID header and logger with request ID to context.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			requestID := request.Header.Get(HeaderRequestID)
			ctx := AddRequestID(request.Context(), requestID)

			if requestID == "" {
				requestID = GetRequestID(ctx)
			}
			writer.Header().Set(HeaderRequestID, requestID)

			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// DebugOptionsProvider returns current debug options for live-config logging.
type DebugOptionsProvider func() config.DebugOptions

func withRequestFields(ctx context.Context, r *http.Request, shortID string) zerolog.Context {
	return zerolog.Ctx(ctx).With().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("req_id", shortID)
}

func logRequestStart(ctx context.Context, request *http.Request, shortID string) {
	logger := withRequestFields(ctx, request, shortID).Logger()
	logger.Debug().Msgf("%s %s", request.Method, request.URL.Path)
}

func logRequestCompletion(
	ctx context.Context,
	request *http.Request,
	wrapped *responseWriter,
	duration time.Duration,
	shortID string,
) {
	durationStr := formatDuration(duration)
	completionMsg := formatCompletionMessage(wrapped.statusCode, statusSymbol(wrapped.statusCode), durationStr)

	logCtx := withRequestFields(ctx, request, shortID).
		Int("status", wrapped.statusCode).
		Str("duration", durationStr)

	if rc, ok := RequestContextFrom(ctx).Get(); ok {
		logCtx = logCtx.Str("api_version", rc.APIVersion).Str("target", rc.TargetService)
	}
	if timings := getRequestTimings(ctx); timings != nil {
		addDurationFieldsCtx(&logCtx, "auth_time", timings.Auth)
		addDurationFieldsCtx(&logCtx, "resolve_time", timings.Resolve)
		addDurationFieldsCtx(&logCtx, "upstream_time", timings.Upstream)
	}
	if isUpgrade(request) {
		logCtx = logCtx.Str("upgrade", request.Header.Get("Upgrade"))
	}

	logger := logCtx.Logger()
	switch {
	case wrapped.statusCode >= 500:
		logger.Error().Msg(completionMsg)
	case wrapped.statusCode >= 400:
		logger.Warn().Msg(completionMsg)
	default:
		logger.Info().Msg(completionMsg)
	}
}

func statusSymbol(statusCode int) string {
	switch {
	case statusCode >= 500:
		return "✗"
	case statusCode >= 400:
		return "⚠"
	default:
		return "✓"
	}
}

// LoggingMiddleware logs each request using live debug options.
func LoggingMiddleware(provider DebugOptionsProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			var debugOpts config.DebugOptions
			if provider != nil {
				debugOpts = provider()
			}

			start := time.Now()
			LogRequestDetails(request.Context(), request, debugOpts)

			ctx, _ := withRequestTimings(request.Context())
			request = request.WithContext(ctx)

			wrapped := &responseWriter{ResponseWriter: writer, statusCode: http.StatusOK}

			shortID := GetRequestID(ctx)
			if len(shortID) > 8 {
				shortID = shortID[:8]
			}

			logRequestStart(ctx, request, shortID)
			next.ServeHTTP(wrapped, request)

			// Stages below derive a new context; pick up their RequestContext for the log line.
			if wrapped.rc != nil {
				ctx = WithRequestContext(ctx, *wrapped.rc)
			}
			logRequestCompletion(ctx, request, wrapped, time.Since(start), shortID)
		})
	}
}

// formatDuration formats duration in a human-readable form with microsecond precision.
func formatDuration(duration time.Duration) string {
	if duration <= 0 {
		return "0s"
	}
	duration = duration.Round(time.Microsecond)
	switch {
	case duration < time.Millisecond:
		return fmt.Sprintf("%dµs", duration.Microseconds())
	case duration < time.Second:
		return fmt.Sprintf("%.2fms", float64(duration)/float64(time.Millisecond))
	case duration < time.Minute:
		return fmt.Sprintf("%.2fs", duration.Seconds())
	default:
		return duration.Truncate(time.Second).String()
	}
}

// formatCompletionMessage formats the completion message with status.
func formatCompletionMessage(status int, symbol, duration string) string {
	text := http.StatusText(status)
	if status == StatusClientClosedRequest {
		text = "Client Closed Request"
	}
	return symbol + " " + text + " (" + duration + ")"
}

// responseWriter captures the status code and the final RequestContext.
type responseWriter struct {
	http.ResponseWriter
	rc          *RequestContext
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = code >= http.StatusOK || code == http.StatusSwitchingProtocols
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	return rw.ResponseWriter.Write(data)
}

// Unwrap lets http.ResponseController reach Flush and Hijack on the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// recordRequestContext makes rc visible to LoggingMiddleware.
func recordRequestContext(w http.ResponseWriter, rc RequestContext) {
	for {
		switch rw := w.(type) {
		case *responseWriter:
			rw.rc = &rc
			return
		case interface{ Unwrap() http.ResponseWriter }:
			w = rw.Unwrap()
		default:
			return
		}
	}
}

// ConcurrencyLimiter enforces a global maximum number of concurrent requests.
// It uses an atomic counter with a configurable limit that supports hot-reload.
type ConcurrencyLimiter struct {
	limit   atomic.Int64
	current atomic.Int64
}

// NewConcurrencyLimiter creates a new concurrency limiter with the given max limit.
// A limit of 0 or negative means unlimited.
func NewConcurrencyLimiter(maxLimit int64) *ConcurrencyLimiter {
	limiter := &ConcurrencyLimiter{}
	limiter.limit.Store(maxLimit)
	return limiter
}

// SetLimit updates the concurrency limit for hot-reload support.
func (l *ConcurrencyLimiter) SetLimit(maxLimit int64) {
	l.limit.Store(maxLimit)
}

// GetLimit returns the current configured limit.
func (l *ConcurrencyLimiter) GetLimit() int64 {
	return l.limit.Load()
}

// CurrentInFlight returns the current number of in-flight requests.
func (l *ConcurrencyLimiter) CurrentInFlight() int64 {
	return l.current.Load()
}

// TryAcquire attempts to acquire a slot for a request.
// Returns false if the limit is reached.
func (l *ConcurrencyLimiter) TryAcquire() bool {
	limit := l.limit.Load()
	if limit <= 0 {
		l.current.Add(1)
		return true
	}

	for {
		current := l.current.Load()
		if current >= limit {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release releases a slot after request completion.
// Must be called after a successful TryAcquire.
func (l *ConcurrencyLimiter) Release() {
	l.current.Add(-1)
}

// ConcurrencyMiddleware rejects requests with 503 while the limiter is saturated.
func ConcurrencyMiddleware(limiter *ConcurrencyLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if !limiter.TryAcquire() {
				zerolog.Ctx(request.Context()).Warn().
					Int64("limit", limiter.GetLimit()).
					Int64("current", limiter.CurrentInFlight()).
					Msg("request rejected: concurrency limit reached")
				WriteError(writer, http.StatusServiceUnavailable, CodeServerBusy,
					"server is at maximum capacity, please retry later")
				return
			}
			defer limiter.Release()
			next.ServeHTTP(writer, request)
		})
	}
}

// RateLimitMiddleware applies a per-client token bucket. Clients are keyed by
// the configured header, else by remote address. Settings are read per request.
func RateLimitMiddleware(store *ratelimit.Store, cfgProvider config.RuntimeConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			cfg := getRuntimeConfig(cfgProvider)
			if store == nil || cfg == nil || !cfg.RateLimit.Enabled {
				next.ServeHTTP(writer, request)
				return
			}

			key := rateLimitKey(request, &cfg.RateLimit)
			decision := store.Allow(key)

			writer.Header().Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
			writer.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				zerolog.Ctx(request.Context()).Warn().
					Dur("retry_after", decision.RetryAfter).
					Msg("request rejected: rate limit exceeded")
				WriteRateLimitError(writer, decision.RetryAfter)
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}

func rateLimitKey(r *http.Request, cfg *ratelimit.Config) string {
	if key := r.Header.Get(cfg.GetKeyHeader()); key != "" {
		return "key:" + key
	}
	if cfg.TrustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return "ip:" + ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// MaxBodyBytesMiddleware limits request body size.
// The limitProvider is called per-request to support hot-reload.
func MaxBodyBytesMiddleware(limitProvider func() int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			limit := limitProvider()
			if limit > 0 && request.Body != nil {
				request.Body = http.MaxBytesReader(writer, request.Body, limit)
			}
			next.ServeHTTP(writer, request)
		})
	}
}

// RequestContextMiddleware builds the RequestContext for /api requests: it
// detects the API version, rejects unsupported versions and maps the path
// segment to a service. Other paths pass through.
func RequestContextMiddleware(cfgProvider config.RuntimeConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			apiPath, ok := ParseAPIPath(request.URL.Path)
			cfg := getRuntimeConfig(cfgProvider)
			if !ok || cfg == nil {
				next.ServeHTTP(writer, request)
				return
			}

			gw := &cfg.Gateway
			version, source := DetectVersion(request, apiPath, gw)
			if !gw.IsSupported(version) {
				zerolog.Ctx(request.Context()).Warn().
					Str("api_version", version).
					Str("source", string(source)).
					Msg("unsupported api version")
				WriteError(writer, http.StatusBadRequest, CodeUnsupportedVersion,
					"api version "+version+" is not supported")
				return
			}

			writer.Header().Set(HeaderAPIVersion, version)
			if sunset, deprecated := gw.Sunset(version).Get(); deprecated {
				writer.Header().Set("Deprecation", "true")
				if sunset != "" {
					writer.Header().Set("Sunset", sunset)
				}
			}

			rc := NewRequestContext(request, apiPath, version, source, gw.ServiceFor(apiPath.Segment))
			recordRequestContext(writer, rc)
			next.ServeHTTP(writer, request.WithContext(WithRequestContext(request.Context(), rc)))
		})
	}
}

func getRuntimeConfig(cfgProvider config.RuntimeConfig) *config.Config {
	if cfgProvider == nil {
		return nil
	}
	return cfgProvider.Get()
}

func recordAuthTiming(ctx context.Context, start time.Time) {
	if timings := getRequestTimings(ctx); timings != nil {
		timings.Auth = time.Since(start)
	}
}

// AuthMiddleware authenticates /api requests when auth is enabled. Bearer
// tokens go to bearer (the auth service); a configured API key is accepted as
// an alternative. Public paths and non-API routes are not checked.
func AuthMiddleware(cfgProvider config.RuntimeConfig, bearer auth.Authenticator) func(http.Handler) http.Handler {
	apiKeys := &keyedAuthenticator{header: auth.HeaderAPIKey}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			cfg := getRuntimeConfig(cfgProvider)
			rc, isAPI := RequestContextFrom(request.Context()).Get()
			if cfg == nil || !cfg.Auth.Enabled || !isAPI || cfg.Auth.IsPublic(request.URL.Path) {
				next.ServeHTTP(writer, request)
				return
			}

			var members []auth.Authenticator
			if bearer != nil {
				members = append(members, bearer)
			}
			if key := apiKeys.get(cfg.Auth.APIKey); key != nil {
				members = append(members, key)
			}

			start := time.Now()
			result := auth.NewChainAuthenticator(members...).Validate(request)
			recordAuthTiming(request.Context(), start)

			logger := zerolog.Ctx(request.Context())
			switch {
			case result.Unavailable():
				logger.Error().Err(result.Err).Msg("authentication unavailable")
				service := cfg.Auth.GetService()
				WriteServiceError(writer, http.StatusServiceUnavailable, CodeServiceUnavailable,
					"authentication service is unavailable", service)
				return
			case !result.Valid:
				logger.Warn().
					Str("auth_type", string(result.Type)).
					Str("error", result.Error).
					Msg("authentication failed")
				WriteError(writer, http.StatusUnauthorized, CodeUnauthorized, result.Error)
				return
			}

			rc = rc.WithUser(result.User)
			logger.Debug().
				Str("auth_type", string(result.Type)).
				Str("user_id", rc.UserID()).
				Msg("authentication succeeded")

			recordRequestContext(writer, rc)
			next.ServeHTTP(writer, request.WithContext(WithRequestContext(request.Context(), rc)))
		})
	}
}

// AdminKeyMiddleware requires X-Admin-Key when an admin key is configured.
func AdminKeyMiddleware(cfgProvider config.RuntimeConfig) func(http.Handler) http.Handler {
	adminKeys := &keyedAuthenticator{header: auth.HeaderAdminKey}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			cfg := getRuntimeConfig(cfgProvider)
			if cfg == nil {
				next.ServeHTTP(writer, request)
				return
			}
			authenticator := adminKeys.get(cfg.Auth.AdminKey)
			if authenticator == nil {
				next.ServeHTTP(writer, request)
				return
			}

			if result := authenticator.Validate(request); !result.Valid {
				zerolog.Ctx(request.Context()).Warn().Msg("admin authentication failed: " + result.Error)
				WriteError(writer, http.StatusUnauthorized, CodeUnauthorized, result.Error)
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}

// keyedAuthenticator rebuilds an API key authenticator only when the
// configured key changes, so the expected hash is computed once per key.
type keyedAuthenticator struct {
	cached atomic.Pointer[keyedEntry]
	header string
}

type keyedEntry struct {
	authenticator *auth.APIKeyAuthenticator
	key           string
}

func (k *keyedAuthenticator) get(key string) *auth.APIKeyAuthenticator {
	if key == "" {
		return nil
	}
	if e := k.cached.Load(); e != nil && e.key == key {
		return e.authenticator
	}
	e := &keyedEntry{key: key, authenticator: auth.NewAPIKeyAuthenticator(k.header, key)}
	k.cached.Store(e)
	return e.authenticator
}
