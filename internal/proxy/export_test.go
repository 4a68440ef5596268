package proxy

import "time"

// SetClock replaces the clock used for meta.timestamp.
func (g *Gateway) SetClock(now func() time.Time) {
	g.now = now
}

// IsJSON is exposed to proxy_test.
var IsJSON = isJSON
