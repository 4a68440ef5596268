package ratelimit

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store hands out one TokenBucketLimiter per client key. The least recently
// seen clients are evicted once MaxClients buckets exist; an evicted client
// starts again with a full bucket.
type Store struct {
	buckets *lru.Cache[string, *TokenBucketLimiter]
	rpm     int
	burst   int
	mu      sync.Mutex
}

// NewStore creates a Store from cfg.
func NewStore(cfg Config) (*Store, error) {
	buckets, err := lru.New[string, *TokenBucketLimiter](cfg.GetMaxClients())
	if err != nil {
		return nil, fmt.Errorf("ratelimit: create bucket store: %w", err)
	}
	return &Store{
		buckets: buckets,
		rpm:     cfg.GetRequestsPerMinute(),
		burst:   cfg.GetBurst(),
	}, nil
}

// Allow takes one token from key's bucket.
func (s *Store) Allow(key string) Decision {
	return s.limiter(key).Allow()
}

func (s *Store) limiter(key string) *TokenBucketLimiter {
	if l, ok := s.buckets.Get(key); ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.buckets.Get(key); ok {
		return l
	}
	l := NewTokenBucketLimiter(s.rpm, s.burst)
	s.buckets.Add(key, l)
	return l
}

// SetLimit applies a new rate to every client. Existing buckets are dropped.
func (s *Store) SetLimit(rpm, burst int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rpm <= 0 {
		rpm = DefaultRequestsPerMinute
	}
	if burst <= 0 {
		burst = rpm
	}
	s.rpm, s.burst = rpm, burst
	s.buckets.Purge()
}

// Len returns the number of tracked clients.
func (s *Store) Len() int {
	return s.buckets.Len()
}
