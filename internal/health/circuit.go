package health

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/mo"
	"github.com/sony/gobreaker/v2"
)

// State represents the circuit breaker state.
type State = gobreaker.State

// Counts are the rolling counters of a breaker's current generation.
type Counts = gobreaker.Counts

// Circuit breaker state constants.
const (
	StateClosed   = gobreaker.StateClosed
	StateOpen     = gobreaker.StateOpen
	StateHalfOpen = gobreaker.StateHalfOpen
)

// errCallerGone marks calls abandoned because the caller's own context ended.
// They are excluded from the breaker statistics.
var errCallerGone = errors.New("health: caller context done")

// CallFunc performs one guarded call. It must honour ctx.
type CallFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// CircuitBreaker guards one call path to a dependency.
//
// It wraps sony/gobreaker so every state transition and counter update happens
// under the breaker's single mutex. The breaker trips once VolumeThreshold calls
// have completed in the rolling window and the failure percentage reaches
// ErrorThresholdPercentage. After ResetTimeout exactly one probe is admitted.
type CircuitBreaker[Req, Resp any] struct {
	cb        *gobreaker.CircuitBreaker[Resp]
	call      CallFunc[Req, Resp]
	isFailure func(error) bool
	handoff   func(Resp, context.CancelFunc) bool
	name      string
	timeout   time.Duration
	openedAt  atomic.Int64
}

// NewCircuitBreaker creates a breaker named after the dependency it protects.
func NewCircuitBreaker[Req, Resp any](
	name string, cfg BreakerConfig, call CallFunc[Req, Resp], logger *zerolog.Logger,
) *CircuitBreaker[Req, Resp] {
	b := &CircuitBreaker[Req, Resp]{
		call:      call,
		isFailure: DefaultIsFailure,
		name:      name,
		timeout:   cfg.GetTimeout(),
	}

	threshold := uint64(cfg.GetErrorThresholdPercentage()) //nolint:gosec // clamped to 1-100
	volume := uint32(cfg.GetVolumeThreshold())             //nolint:gosec // defaulted to a positive value

	settings := gobreaker.Settings{
		Name:         name,
		MaxRequests:  1,
		Interval:     cfg.GetRollingWindow(),
		BucketPeriod: cfg.GetBucketPeriod(),
		Timeout:      cfg.GetResetTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return ShouldTrip(counts, volume, threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				b.openedAt.Store(time.Now().UnixNano())
			}
			if logger == nil {
				return
			}
			event := logger.Info()
			if to == gobreaker.StateOpen {
				event = logger.Warn()
			}
			event.
				Str("dependency", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return !b.isFailure(err)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, errCallerGone) || errors.Is(err, context.Canceled)
		},
	}

	b.cb = gobreaker.NewCircuitBreaker[Resp](settings)
	return b
}

// ShouldTrip reports whether counts justify opening the breaker.
// Only completed calls (successes and failures) form the sample.
func ShouldTrip(counts gobreaker.Counts, volumeThreshold uint32, thresholdPercent uint64) bool {
	completed := counts.TotalSuccesses + counts.TotalFailures
	if completed == 0 || completed < volumeThreshold {
		return false
	}
	return uint64(counts.TotalFailures)*100 >= thresholdPercent*uint64(completed)
}

// DefaultIsFailure counts every error as a failure except upstream statuses
// that say nothing about the dependency's health (4xx other than 429).
func DefaultIsFailure(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ShouldCountAsFailure(statusErr.StatusCode, nil)
	}
	return true
}

// WithFailurePolicy replaces the failure classification. Call before first use.
func (b *CircuitBreaker[Req, Resp]) WithFailurePolicy(isFailure func(error) bool) *CircuitBreaker[Req, Resp] {
	b.isFailure = isFailure
	return b
}

// WithCancelHandoff lets the caller keep the per-call context alive after Execute
// returns, for responses that are consumed later (HTTP bodies). When fn returns
// true it owns cancel and must call it.
func (b *CircuitBreaker[Req, Resp]) WithCancelHandoff(fn func(Resp, context.CancelFunc) bool) *CircuitBreaker[Req, Resp] {
	b.handoff = fn
	return b
}

// Execute runs call through the breaker with the configured per-call timeout.
// Every returned error is a *DependencyError. The response is returned even when
// the call is classified as an upstream failure.
func (b *CircuitBreaker[Req, Resp]) Execute(ctx context.Context, req Req) (Resp, error) {
	return b.ExecuteWithTimeout(ctx, req, b.timeout)
}

// ExecuteWithTimeout is Execute with an explicit deadline. A timeout <= 0 applies none.
func (b *CircuitBreaker[Req, Resp]) ExecuteWithTimeout(ctx context.Context, req Req, timeout time.Duration) (Resp, error) {
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}

	resp, err := b.cb.Execute(func() (Resp, error) {
		resp, err := b.call(callCtx, req)
		return resp, classify(ctx, callCtx, err)
	})

	if b.handoff == nil || !b.handoff(resp, cancel) {
		cancel()
	}

	if err != nil {
		return resp, b.wrap(err)
	}
	return resp, nil
}

// ExecuteResult is Execute returning a mo.Result.
func (b *CircuitBreaker[Req, Resp]) ExecuteResult(ctx context.Context, req Req) mo.Result[Resp] {
	return mo.TupleToResult(b.Execute(ctx, req))
}

func classify(parent, callCtx context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		if err == nil {
			err = parent.Err()
		}
		return fmt.Errorf("%w: %w", errCallerGone, err)
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		if err == nil {
			return ErrTimeout
		}
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return err
	}
}

func (b *CircuitBreaker[Req, Resp]) wrap(err error) *DependencyError {
	depErr := &DependencyError{Dependency: b.name, Err: err}

	var statusErr *StatusError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		depErr.Kind = KindUnavailable
		depErr.Err = fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	case errors.Is(err, ErrTimeout):
		depErr.Kind = KindTimeout
	case errors.As(err, &statusErr):
		depErr.Kind = KindUpstream
		depErr.StatusCode = statusErr.StatusCode
		depErr.Code = statusErr.Code
	default:
		depErr.Kind = KindUnreachable
	}
	return depErr
}

// State returns the current circuit breaker state.
func (b *CircuitBreaker[Req, Resp]) State() State {
	return b.cb.State()
}

// Counts returns the counters of the current generation.
func (b *CircuitBreaker[Req, Resp]) Counts() Counts {
	return b.cb.Counts()
}

// Name returns the circuit breaker's name.
func (b *CircuitBreaker[Req, Resp]) Name() string {
	return b.name
}

// Timeout returns the configured per-call deadline.
func (b *CircuitBreaker[Req, Resp]) Timeout() time.Duration {
	return b.timeout
}

// OpenedAt returns when the breaker last opened, if it is open now.
func (b *CircuitBreaker[Req, Resp]) OpenedAt() mo.Option[time.Time] {
	if b.State() != StateOpen {
		return mo.None[time.Time]()
	}
	nanos := b.openedAt.Load()
	if nanos == 0 {
		return mo.None[time.Time]()
	}
	return mo.Some(time.Unix(0, nanos))
}

// Snapshot returns the observable breaker state.
func (b *CircuitBreaker[Req, Resp]) Snapshot() Snapshot {
	return Snapshot{
		Name:     b.name,
		State:    b.State(),
		Counts:   b.Counts(),
		OpenedAt: b.OpenedAt(),
	}
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	OpenedAt mo.Option[time.Time]
	Name     string
	Counts   Counts
	State    State
}

// ShouldCountAsFailure determines if a response should count as a circuit breaker failure.
func ShouldCountAsFailure(statusCode int, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return statusCode >= 500 || statusCode == 429
}
