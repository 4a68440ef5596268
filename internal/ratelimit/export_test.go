package ratelimit

import "time"

// SetClock replaces the limiter clock (for testing).
func (l *TokenBucketLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Limits returns the configured rate and burst (for testing).
func (l *TokenBucketLimiter) Limits() (rpm, burst int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rpm, l.burst
}
