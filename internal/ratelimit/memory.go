package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxKeys bounds the number of tracked keys in the memory limiter.
const DefaultMaxKeys = 10000

type memoryBucket struct {
	count     int
	windowEnd time.Time
}

// MemoryLimiter keeps per-key windows in a bounded LRU. When full, the least
// recently used key is forgotten.
type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets *lru.Cache[string, *memoryBucket]
}

// MemoryLimiterConfig configures NewMemoryLimiter. Zero values use time.Now
// and DefaultMaxKeys.
type MemoryLimiterConfig struct {
	Now     func() time.Time
	MaxKeys int
}

// NewMemoryLimiter creates an in-process limiter tracking at most cfg.MaxKeys keys.
func NewMemoryLimiter(cfg MemoryLimiterConfig) (*MemoryLimiter, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultMaxKeys
	}

	buckets, err := lru.New[string, *memoryBucket](cfg.MaxKeys)
	if err != nil {
		return nil, fmt.Errorf("create limiter cache: %w", err)
	}
	return &MemoryLimiter{now: cfg.Now, buckets: buckets}, nil
}

// Allow counts one request for key in the current fixed window. A
// non-positive limit disables throttling for the call.
func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return unlimited(limit), nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.buckets.Get(key)
	if !ok || !now.Before(bucket.windowEnd) {
		bucket = &memoryBucket{windowEnd: now.Add(window)}
		m.buckets.Add(key, bucket)
	}

	if bucket.count < limit {
		bucket.count++
		return Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - bucket.count,
			ResetAt:   bucket.windowEnd,
		}, nil
	}

	return Decision{
		Allowed:   false,
		Limit:     limit,
		Remaining: 0,
		ResetAt:   bucket.windowEnd,
	}, nil
}

// Len returns the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	return m.buckets.Len()
}
