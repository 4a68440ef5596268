package registry

import "time"

// SetClock replaces the registry clock (for testing).
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// CryptoRandDurationExported exports cryptoRandDuration for testing.
var CryptoRandDurationExported = cryptoRandDuration
