package health

import (
	"net/http"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Breaker is the read side shared by every breaker instantiation.
type Breaker interface {
	Name() string
	State() State
	Snapshot() Snapshot
}

// Tracker owns the per-upstream HTTP breakers used by the gateway and keeps a
// registry of every other breaker in the process for introspection.
type Tracker struct {
	transport http.RoundTripper
	configFor func(name string) BreakerConfig
	logger    *zerolog.Logger
	circuits  map[string]*HTTPBreaker
	external  map[string]Breaker
	mu        sync.RWMutex
}

// NewTracker creates a Tracker. configFor resolves the effective breaker
// configuration for an upstream; transport performs the actual round trips.
func NewTracker(configFor func(name string) BreakerConfig, transport http.RoundTripper, logger *zerolog.Logger) *Tracker {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Tracker{
		transport: transport,
		configFor: configFor,
		logger:    logger,
		circuits:  make(map[string]*HTTPBreaker),
		external:  make(map[string]Breaker),
	}
}

// GetOrCreateCircuit returns the HTTP breaker for an upstream, creating it on first use.
func (t *Tracker) GetOrCreateCircuit(name string) *HTTPBreaker {
	t.mu.RLock()
	cb, exists := t.circuits[name]
	t.mu.RUnlock()

	if exists {
		return cb
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, exists = t.circuits[name]; exists {
		return cb
	}

	cb = NewHTTPBreaker(name, t.configFor(name), t.transport, t.logger)
	t.circuits[name] = cb

	if t.logger != nil {
		t.logger.Debug().
			Str("dependency", name).
			Msg("created circuit breaker")
	}

	return cb
}

// Track adds a breaker owned elsewhere (service clients) to the introspection view.
func (t *Tracker) Track(b Breaker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.external[b.Name()] = b
}

// GetState returns the state of an upstream's gateway breaker.
// Returns StateClosed if none exists yet.
func (t *Tracker) GetState(name string) State {
	t.mu.RLock()
	cb, exists := t.circuits[name]
	t.mu.RUnlock()

	if !exists {
		return StateClosed
	}
	return cb.State()
}

// AllStates returns a snapshot of every known breaker's state keyed by breaker name.
func (t *Tracker) AllStates() map[string]State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	states := make(map[string]State, len(t.circuits)+len(t.external))
	for name, cb := range t.circuits {
		states[name] = cb.State()
	}
	for name, b := range t.external {
		states[name] = b.State()
	}
	return states
}

// Snapshots returns every breaker's snapshot ordered by name.
func (t *Tracker) Snapshots() []Snapshot {
	t.mu.RLock()
	out := make([]Snapshot, 0, len(t.circuits)+len(t.external))
	for _, cb := range t.circuits {
		out = append(out, cb.Snapshot())
	}
	for _, b := range t.external {
		out = append(out, b.Snapshot())
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
