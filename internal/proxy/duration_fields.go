package proxy

import (
	"time"

	"github.com/rs/zerolog"
)

// addDurationFieldsCtx logs an exact microsecond value plus a human-friendly duration.
// Zero durations (stages that did not run) are omitted.
func addDurationFieldsCtx(ctx *zerolog.Context, name string, d time.Duration) {
	if d <= 0 {
		return
	}
	*ctx = ctx.Int64(name+"_us", d.Microseconds())
	*ctx = ctx.Str(name, formatDuration(d))
}
