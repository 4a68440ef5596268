// Package cache provides the short-lived lookup cache used by meshgate.
//
// Two consumers share one backend: the service registry caches recent
// health-probe outcomes and the auth middleware caches token validations.
// Each consumer works through a Namespace so their keys never collide.
//
// Backends:
//   - Single mode (Ristretto): local in-memory cache with TTL support
//   - Disabled mode (Noop): every lookup misses
//
// All implementations are safe for concurrent use.
package cache

import (
	"context"
	"time"
)

// Cache defines the interface for cache operations.
type Cache interface {
	// Get retrieves a value. Returns ErrNotFound on a miss and ErrClosed after Close.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithTTL stores a value that expires after ttl. The value is visible to
	// Get once SetWithTTL returns.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources. Close is idempotent.
	Close() error
}

// Stats provides cache statistics for the status endpoint.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	KeyCount  uint64 `json:"keyCount"`
	Evictions uint64 `json:"evictions"`
}

// StatsProvider is implemented by backends that track statistics.
type StatsProvider interface {
	Stats() Stats
}

// Namespace prefixes every key of an underlying cache.
type Namespace struct {
	backend Cache
	prefix  string
}

// NewNamespace returns a view of backend whose keys are prefixed with name + ":".
func NewNamespace(backend Cache, name string) *Namespace {
	return &Namespace{backend: backend, prefix: name + ":"}
}

// Get retrieves a namespaced value.
func (n *Namespace) Get(ctx context.Context, key string) ([]byte, error) {
	return n.backend.Get(ctx, n.prefix+key)
}

// SetWithTTL stores a namespaced value.
func (n *Namespace) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return n.backend.SetWithTTL(ctx, n.prefix+key, value, ttl)
}

// Delete removes a namespaced value.
func (n *Namespace) Delete(ctx context.Context, key string) error {
	return n.backend.Delete(ctx, n.prefix+key)
}

// Close is a no-op: the backend is shared and owned by whoever created it.
func (n *Namespace) Close() error {
	return nil
}
