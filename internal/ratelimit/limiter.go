// Package ratelimit implements fixed-window request counting keyed by
// client identity and endpoint bucket. The counting state lives behind
// the Store interface so a single instance can run on process memory
// while horizontally scaled deployments share a Redis store.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Limit describes one endpoint bucket's budget: at most MaxRequests
// within each fixed Window.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds returns the retry hint rounded up to whole
// seconds, as surfaced in the Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	return int((d.RetryAfter + time.Second - 1) / time.Second)
}

// Store increments the counter for key within the current fixed
// window, starting a new window when none is active, and reports the
// resulting count together with the window's reset time.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
}

// Limiter applies fixed-window limits through a Store.
type Limiter struct {
	store Store
	now   func() time.Time
}

// NewLimiter creates a limiter around the given store.
func NewLimiter(store Store) *Limiter {
	return &Limiter{
		store: store,
		now:   time.Now,
	}
}

// Check counts one request for identity in the named bucket. Distinct
// buckets hold independent counters for the same identity.
func (l *Limiter) Check(ctx context.Context, identity, bucket string, limit Limit) (Decision, error) {
	key := fmt.Sprintf("%s:%s", identity, bucket)

	count, resetAt, err := l.store.Increment(ctx, key, limit.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit store: %w", err)
	}

	if count > limit.MaxRequests {
		retry := resetAt.Sub(l.now())
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}

	return Decision{Allowed: true, Remaining: limit.MaxRequests - count}, nil
}
