package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter is a per-client token bucket backed by golang.org/x/time/rate.
//
// The rate is rpm/60 tokens per second with a bucket of burst tokens, so a
// quiet client may spend a full burst at once and then refills gradually.
type TokenBucketLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
	rpm     int
	burst   int
	mu      sync.RWMutex
}

// NewTokenBucketLimiter creates a limiter. Non-positive values fall back to
// DefaultRequestsPerMinute and a burst equal to rpm.
func NewTokenBucketLimiter(rpm, burst int) *TokenBucketLimiter {
	l := &TokenBucketLimiter{now: time.Now}
	l.SetLimit(rpm, burst)
	return l
}

// Allow takes one token if available. A denied decision carries the delay
// until the next token; the probe reservation is canceled so denials never
// push the client further back.
func (l *TokenBucketLimiter) Allow() Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	reservation := l.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return Decision{Limit: l.burst, RetryAfter: time.Minute}
	}

	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return Decision{Limit: l.burst, RetryAfter: delay}
	}

	return Decision{
		Allowed:   true,
		Limit:     l.burst,
		Remaining: clampRemaining(int(l.limiter.TokensAt(now)), l.burst),
	}
}

// SetLimit replaces the bucket. The new bucket starts full.
func (l *TokenBucketLimiter) SetLimit(rpm, burst int) {
	if rpm <= 0 {
		rpm = DefaultRequestsPerMinute
	}
	if burst <= 0 {
		burst = rpm
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
	l.rpm = rpm
	l.burst = burst
}

func clampRemaining(remaining, limit int) int {
	if remaining < 0 {
		return 0
	}
	if remaining > limit {
		return limit
	}
	return remaining
}
