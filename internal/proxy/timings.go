package proxy

import (
	"context"
	"time"
)

// requestTimings collects per-stage durations for the completion log line.
type requestTimings struct {
	Auth     time.Duration
	Resolve  time.Duration
	Upstream time.Duration
}

type timingsKey struct{}

func withRequestTimings(ctx context.Context) (context.Context, *requestTimings) {
	timings := &requestTimings{}
	return context.WithValue(ctx, timingsKey{}, timings), timings
}

func getRequestTimings(ctx context.Context) *requestTimings {
	if ctx == nil {
		return nil
	}
	if timings, ok := ctx.Value(timingsKey{}).(*requestTimings); ok {
		return timings
	}
	return nil
}
