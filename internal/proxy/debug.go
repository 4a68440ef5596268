package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"

	"github.com/healthmesh/meshgate/internal/config"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Sensitive patterns to redact from logged bodies.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`"(?i:(?:x-)?api[-_]?key)"\s*:\s*"[^"]*"`),
	regexp.MustCompile(`"(?i:password)"\s*:\s*"[^"]*"`),
	regexp.MustCompile(`"(?i:token|access_token|refresh_token)"\s*:\s*"[^"]*"`),
	regexp.MustCompile(`"(?i:secret)"\s*:\s*"[^"]*"`),
	regexp.MustCompile(`"(?i:authorization)"\s*:\s*"[^"]*"`),
	regexp.MustCompile(`"(?i:ssn)"\s*:\s*"[^"]*"`),
}

// loggedResponseHeaders are the upstream headers worth a debug line.
var loggedResponseHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Cache-Control",
	"Retry-After",
	HeaderRequestID,
}

// LogRequestDetails logs a redacted, truncated request body in debug mode.
// The body is restored for downstream handlers.
func LogRequestDetails(ctx context.Context, r *http.Request, opts config.DebugOptions) {
	if !opts.LogRequestBody {
		return
	}

	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() > zerolog.DebugLevel {
		return
	}

	bodyBytes := readAndRestoreBody(r, opts.GetMaxBodyLogSize(), logger)
	if bodyBytes == nil {
		return
	}

	logEvent := logger.Debug().
		Str("content_type", r.Header.Get("Content-Type")).
		Int64("content_length", r.ContentLength)
	if len(bodyBytes) > 0 {
		logEvent = logEvent.Str("body_preview", redactSensitiveFields(string(bodyBytes)))
	}
	logEvent.Msg("request details")
}

// readAndRestoreBody reads up to limit bytes and puts them back in front of the
// unread remainder.
func readAndRestoreBody(r *http.Request, limit int, logger *zerolog.Logger) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)))
	if err != nil {
		logger.Debug().Err(err).Msg("failed to read request body")
		return nil
	}

	r.Body = &prefixedBody{
		Reader: io.MultiReader(bytes.NewReader(bodyBytes), r.Body),
		closer: r.Body,
	}
	return truncateBody(bodyBytes, limit)
}

// truncateBody truncates body to max size.
func truncateBody(body []byte, maxSize int) []byte {
	if len(body) > maxSize {
		return body[:maxSize]
	}
	return body
}

// redactSensitiveFields redacts sensitive information from body string.
func redactSensitiveFields(body string) string {
	return lo.Reduce(sensitivePatterns, func(s string, pattern *regexp.Regexp, _ int) string {
		return pattern.ReplaceAllString(s, `"***":"REDACTED"`)
	}, body)
}

// LogResponseDetails logs selected upstream response headers in debug mode.
func LogResponseDetails(ctx context.Context, service string, headers http.Header, statusCode int, opts config.DebugOptions) {
	if !opts.LogResponseHeaders {
		return
	}

	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() > zerolog.DebugLevel {
		return
	}

	headerData := lo.SliceToMap(
		lo.FilterMap(loggedResponseHeaders, func(key string, _ int) (lo.Entry[string, string], bool) {
			val := headers.Get(key)
			return lo.Entry[string, string]{Key: key, Value: val}, val != ""
		}),
		func(entry lo.Entry[string, string]) (string, string) {
			return entry.Key, entry.Value
		},
	)

	logEvent := logger.Debug().
		Str("service", service).
		Int("status", statusCode)
	if len(headerData) > 0 {
		logEvent = logEvent.Interface("headers", headerData)
	}
	logEvent.Msg("response details")
}
