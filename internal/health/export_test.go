package health

import (
	"context"

	"github.com/rs/zerolog"
)

const testDependencyName = "lab-service"

// NewTestBreaker builds an int -> int breaker whose call is fn.
func NewTestBreaker(cfg BreakerConfig, fn func(ctx context.Context, req int) (int, error)) *CircuitBreaker[int, int] {
	logger := zerolog.Nop()
	return NewCircuitBreaker(testDependencyName, cfg, fn, &logger)
}

// CircuitCount returns the number of gateway breakers under lock (for testing).
func (t *Tracker) CircuitCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.circuits)
}
