package health

import (
	"errors"
	"fmt"
)

// Sentinel errors for dependency calls.
var (
	// ErrCircuitOpen is returned when the breaker rejects a call without contacting the dependency.
	ErrCircuitOpen = errors.New("health: circuit breaker is open")

	// ErrUpstreamUnavailable matches every DependencyError via errors.Is.
	ErrUpstreamUnavailable = errors.New("health: upstream unavailable")

	// ErrTimeout is wrapped by DependencyError values of KindTimeout.
	ErrTimeout = errors.New("health: call exceeded timeout")
)

// Kind classifies why a dependency call failed.
type Kind int

// Dependency failure kinds.
const (
	// KindUnavailable means the dependency was not contacted: breaker open, target
	// unresolved, or the request could not be built.
	KindUnavailable Kind = iota + 1
	// KindTimeout means the per-call deadline expired.
	KindTimeout
	// KindUnreachable means the transport failed before a response arrived.
	KindUnreachable
	// KindUpstream means the dependency answered with a non-2xx status or with a
	// body that could not be decoded. StatusCode is zero in the latter case.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindUpstream:
		return "upstream_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DependencyError is the single error type returned by CircuitBreaker.Execute.
type DependencyError struct {
	Err        error
	Dependency string
	Code       string // sanitized upstream error code, KindUpstream only
	Kind       Kind
	StatusCode int // upstream status, KindUpstream only
}

func (e *DependencyError) Error() string {
	if e.Kind == KindUpstream && e.StatusCode != 0 {
		return fmt.Sprintf("dependency %s: %s (status %d): %v", e.Dependency, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("dependency %s: %s: %v", e.Dependency, e.Kind, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// Is reports ErrUpstreamUnavailable for every kind so callers can treat
// all dependency failures uniformly.
func (e *DependencyError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// Unavailable builds a KindUnavailable error for a dependency that was never contacted.
func Unavailable(dependency string, err error) *DependencyError {
	return &DependencyError{Dependency: dependency, Kind: KindUnavailable, Err: err}
}

// StatusError is returned by breaker call functions when the dependency answered
// with a non-2xx status. Code and Message are already sanitized.
type StatusError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}

// AsDependencyError extracts a *DependencyError from err.
func AsDependencyError(err error) (*DependencyError, bool) {
	var depErr *DependencyError
	if errors.As(err, &depErr) {
		return depErr, true
	}
	return nil, false
}
