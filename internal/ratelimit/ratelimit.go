// Package ratelimit provides fixed-window request limiters used to throttle
// password login attempts.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key inside fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Backend selects a Limiter implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendNone   Backend = "none"
)

// Config configures New.
type Config struct {
	Backend       Backend
	MaxKeys       int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Now           func() time.Time
}

// New returns the limiter for cfg.Backend, or nil for BackendNone.
func New(cfg Config) (Limiter, error) {
	switch cfg.Backend {
	case BackendNone, "":
		return nil, nil
	case BackendMemory:
		limiter, err := NewMemoryLimiter(MemoryLimiterConfig{Now: cfg.Now, MaxKeys: cfg.MaxKeys})
		if err != nil {
			return nil, err
		}
		return limiter, nil
	case BackendRedis:
		limiter, err := NewRedisLimiter(RedisLimiterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Now:      cfg.Now,
		})
		if err != nil {
			return nil, err
		}
		return limiter, nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}

func unlimited(limit int) Decision {
	return Decision{Allowed: true, Limit: limit, Remaining: limit}
}
