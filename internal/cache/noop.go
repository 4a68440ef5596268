package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// noopCache stores nothing. Used when caching is disabled or a consumer's TTL is zero.
type noopCache struct {
	closed atomic.Bool
}

// NewNoop returns a cache on which every Get misses.
func NewNoop() Cache {
	return &noopCache{}
}

func (c *noopCache) Get(context.Context, string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return nil, ErrNotFound
}

func (c *noopCache) SetWithTTL(context.Context, string, []byte, time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (c *noopCache) Delete(context.Context, string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (c *noopCache) Close() error {
	c.closed.Store(true)
	return nil
}
