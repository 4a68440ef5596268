package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"
)

// ristrettoCache implements Cache on top of Ristretto.
type ristrettoCache struct {
	cache  *ristretto.Cache[string, []byte]
	log    zerolog.Logger
	closed atomic.Bool
	mu     sync.RWMutex
}

var (
	_ Cache         = (*ristrettoCache)(nil)
	_ StatsProvider = (*ristrettoCache)(nil)
)

func newRistrettoCache(cfg RistrettoConfig, logger zerolog.Logger) (*ristrettoCache, error) {
	cfg = cfg.withDefaults()
	log := logger.With().Str("backend", "ristretto").Logger()

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int64("num_counters", cfg.NumCounters).
		Int64("max_cost", cfg.MaxCost).
		Msg("ristretto cache created")

	return &ristrettoCache{cache: cache, log: log}, nil
}

// guard runs fn under the read lock unless the cache is closed.
func (r *ristrettoCache) guard(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed.Load() {
		return ErrClosed
	}
	fn()
	return nil
}

func (r *ristrettoCache) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value []byte
		found bool
	)
	if err := r.guard(ctx, func() { value, found = r.cache.Get(key) }); err != nil {
		return nil, err
	}

	r.log.Debug().Str("key", key).Bool("hit", found).Msg("cache get")
	if !found {
		return nil, ErrNotFound
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (r *ristrettoCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	return r.guard(ctx, func() {
		// Cost is at least 1 so empty markers are still admitted.
		r.cache.SetWithTTL(key, stored, int64(len(stored))+1, ttl)
		r.cache.Wait()
		r.log.Debug().Str("key", key).Dur("ttl", ttl).Msg("cache set")
	})
}

func (r *ristrettoCache) Delete(ctx context.Context, key string) error {
	return r.guard(ctx, func() { r.cache.Del(key) })
}

func (r *ristrettoCache) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Swap(true) {
		return nil
	}

	r.cache.Wait()
	r.cache.Close()
	r.log.Debug().Msg("ristretto cache closed")
	return nil
}

func (r *ristrettoCache) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed.Load() {
		return Stats{}
	}

	metrics := r.cache.Metrics
	return Stats{
		Hits:      metrics.Hits(),
		Misses:    metrics.Misses(),
		KeyCount:  metrics.KeysAdded() - metrics.KeysEvicted(),
		Evictions: metrics.KeysEvicted(),
	}
}
