package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds configurable per-minute limits. Zero means the
// default; limits apply per bucket, not per caller.
type RateLimitConfig struct {
	ToolCallsPerMin int `yaml:"tool_calls_per_min"`
	AuthPerMin      int `yaml:"auth_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		ToolCallsPerMin: 120,
		AuthPerMin:      30,
	}
}

// Bucket names accepted by Allow.
const (
	BucketToolCall = "tool_call"
	BucketAuth     = "auth"
)

// RateLimiter implements sliding-window rate limiting. Each bucket tracks
// timestamps of recent events within a one-minute window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter. Zero-value config fields are
// replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.ToolCallsPerMin <= 0 {
		cfg.ToolCallsPerMin = defaults.ToolCallsPerMin
	}
	if cfg.AuthPerMin <= 0 {
		cfg.AuthPerMin = defaults.AuthPerMin
	}

	return &RateLimiter{
		now: time.Now,
		buckets: map[string]*bucket{
			BucketToolCall: {window: time.Minute, limit: cfg.ToolCallsPerMin},
			BucketAuth:     {window: time.Minute, limit: cfg.AuthPerMin},
		},
	}
}

// Allow records one event in the named bucket, or returns ErrRateLimited
// if the bucket is full. Unknown buckets are always allowed.
func (rl *RateLimiter) Allow(name string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[name]
	if !ok {
		return nil
	}

	now := rl.now()
	cutoff := now.Add(-b.window)

	kept := b.events[:0]
	for _, t := range b.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.events = kept

	if len(b.events) >= b.limit {
		return ErrRateLimited
	}
	b.events = append(b.events, now)
	return nil
}
