// Package proxy implements the meshgate HTTP gateway.
package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/healthmesh/meshgate/internal/health"
	"github.com/rs/zerolog/log"
)

// Gateway header names.
const (
	HeaderAPIVersion = "X-API-Version"
	HeaderRequestID  = "X-Request-ID"
	HeaderUserID     = "X-User-ID"
	HeaderRetryAfter = "Retry-After"
)

// Error codes carried in error envelopes.
const (
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	CodeUpstreamUnreachable = "UPSTREAM_UNREACHABLE"
	CodeUpstreamError       = "UPSTREAM_ERROR"
	CodeBadGateway          = "BAD_GATEWAY"
	CodeRateLimited         = "RATE_LIMITED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeUnsupportedVersion  = "UNSUPPORTED_API_VERSION"
	CodeRequestTooLarge     = "REQUEST_TOO_LARGE"
	CodeServerBusy          = "SERVER_BUSY"
	CodeNotFound            = "NOT_FOUND"
	CodeInternal            = "INTERNAL_ERROR"
)

// ErrorResponse is the failure envelope returned for every gateway error.
type ErrorResponse struct {
	Error   ErrorDetail `json:"error"`
	Success bool        `json:"success"`
}

// ErrorDetail contains the error code and a caller-safe message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Service string `json:"service,omitempty"`
}

// IsBodyTooLargeError checks if an error is from http.MaxBytesReader.
func IsBodyTooLargeError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

// WriteBodyTooLargeError writes a 413 Request Entity Too Large response.
func WriteBodyTooLargeError(w http.ResponseWriter) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeRequestTooLarge,
		"request body exceeds the maximum allowed size")
}

// WriteError writes a JSON error envelope.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteServiceError(w, statusCode, code, message, "")
}

// WriteServiceError writes a JSON error envelope naming the dependency at fault.
func WriteServiceError(w http.ResponseWriter, statusCode int, code, message, service string) {
	writeJSON(w, statusCode, ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Service: service,
		},
	})
}

// WriteRateLimitError writes a 429 Too Many Requests envelope.
// Retry-After is rounded up to whole seconds, minimum 1.
func WriteRateLimitError(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int((retryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(seconds))

	WriteError(w, http.StatusTooManyRequests, CodeRateLimited,
		"rate limit exceeded, retry after "+strconv.Itoa(seconds)+"s")
}

// WriteUnavailable writes the 503 envelope for a target that could not be resolved.
func WriteUnavailable(w http.ResponseWriter, service string) {
	WriteServiceError(w, http.StatusServiceUnavailable, CodeServiceUnavailable,
		"service "+service+" is unavailable", service)
}

// WriteDependencyError maps a failed dependency call to its error envelope.
//
//	breaker open / unresolved  503 SERVICE_UNAVAILABLE
//	timeout                    504 UPSTREAM_TIMEOUT
//	transport failure          502 UPSTREAM_UNREACHABLE
//	upstream 4xx               upstream status, upstream code or UPSTREAM_ERROR
//	upstream 5xx               502, upstream code or BAD_GATEWAY
func WriteDependencyError(w http.ResponseWriter, service string, err error) {
	status, detail := dependencyErrorDetail(service, err)
	writeJSON(w, status, ErrorResponse{Error: detail})
}

// WriteUpstreamStatus writes the envelope for a non-2xx upstream answer.
func WriteUpstreamStatus(w http.ResponseWriter, service string, se *health.StatusError) {
	status, detail := upstreamDetail(service, se.StatusCode, se.Code, se.Message)
	writeJSON(w, status, ErrorResponse{Error: detail})
}

func dependencyErrorDetail(service string, err error) (int, ErrorDetail) {
	depErr, ok := health.AsDependencyError(err)
	if !ok {
		return http.StatusBadGateway, ErrorDetail{
			Code:    CodeUpstreamUnreachable,
			Message: "service " + service + " could not be reached",
			Service: service,
		}
	}

	switch depErr.Kind {
	case health.KindUnavailable:
		return http.StatusServiceUnavailable, ErrorDetail{
			Code:    CodeServiceUnavailable,
			Message: "service " + service + " is unavailable",
			Service: service,
		}
	case health.KindTimeout:
		return http.StatusGatewayTimeout, ErrorDetail{
			Code:    CodeUpstreamTimeout,
			Message: "service " + service + " did not respond in time",
			Service: service,
		}
	case health.KindUpstream:
		var statusErr *health.StatusError
		message := ""
		if errors.As(depErr.Err, &statusErr) {
			message = statusErr.Message
		}
		return upstreamDetail(service, depErr.StatusCode, depErr.Code, message)
	default:
		return http.StatusBadGateway, ErrorDetail{
			Code:    CodeUpstreamUnreachable,
			Message: "service " + service + " could not be reached",
			Service: service,
		}
	}
}

func upstreamDetail(service string, statusCode int, code, message string) (int, ErrorDetail) {
	detail := ErrorDetail{Code: code, Message: message, Service: service}

	if statusCode >= 400 && statusCode < 500 {
		if !health.IsShareableCode(detail.Code) {
			detail.Code = CodeUpstreamError
		}
		if detail.Message == "" {
			detail.Message = "service " + service + " rejected the request"
		}
		return statusCode, detail
	}

	if !health.IsShareableCode(detail.Code) {
		detail.Code = CodeBadGateway
	}
	detail.Message = "service " + service + " failed to process the request"
	return http.StatusBadGateway, detail
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Del("Content-Length")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
