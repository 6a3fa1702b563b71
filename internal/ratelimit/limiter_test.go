package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_FixedWindow(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(0))
	limit := Limit{MaxRequests: 3, Window: time.Minute}
	ctx := context.Background()

	var decisions []Decision
	for i := 0; i < 4; i++ {
		d, err := limiter.Check(ctx, "203.0.113.7", "validate", limit)
		require.NoError(t, err)
		decisions = append(decisions, d)
	}

	assert.True(t, decisions[0].Allowed)
	assert.True(t, decisions[1].Allowed)
	assert.True(t, decisions[2].Allowed)
	assert.False(t, decisions[3].Allowed)

	assert.Equal(t, 2, decisions[0].Remaining)
	assert.Equal(t, 1, decisions[1].Remaining)
	assert.Equal(t, 0, decisions[2].Remaining)
	assert.Greater(t, decisions[3].RetryAfterSeconds(), 0)
}

func TestLimiter_IdentitiesAreIndependent(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(0))
	limit := Limit{MaxRequests: 1, Window: time.Minute}
	ctx := context.Background()

	d, err := limiter.Check(ctx, "identity-a", "validate", limit)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Check(ctx, "identity-a", "validate", limit)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "identity A exhausted its budget")

	d, err = limiter.Check(ctx, "identity-b", "validate", limit)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "identity B must have its own counter")
}

func TestLimiter_BucketsAreIndependent(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(0))
	limit := Limit{MaxRequests: 1, Window: time.Minute}
	ctx := context.Background()

	d, _ := limiter.Check(ctx, "identity-a", "validate", limit)
	assert.True(t, d.Allowed)
	d, _ = limiter.Check(ctx, "identity-a", "validate", limit)
	assert.False(t, d.Allowed)

	d, _ = limiter.Check(ctx, "identity-a", "activate", limit)
	assert.True(t, d.Allowed, "a different endpoint bucket is a different record")
}

func TestMemoryStore_WindowReset(t *testing.T) {
	store := NewMemoryStore(0)
	now := time.Now()
	store.now = func() time.Time { return now }

	ctx := context.Background()

	count, resetAt, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, now.Add(time.Minute), resetAt)

	count, _, _ = store.Increment(ctx, "k", time.Minute)
	assert.Equal(t, 2, count)

	// Past the window boundary the counter restarts at 1.
	store.now = func() time.Time { return now.Add(61 * time.Second) }
	count, resetAt, err = store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, now.Add(121*time.Second), resetAt)
}

func TestMemoryStore_SweepBoundsMemory(t *testing.T) {
	store := NewMemoryStore(5)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, _, err := store.Increment(ctx, string(rune('a'+i)), time.Second)
		require.NoError(t, err)
	}
	assert.Equal(t, 6, store.Len())

	// All six windows elapse; the next insert crosses the high-water
	// mark and triggers the sweep.
	store.now = func() time.Time { return now.Add(2 * time.Second) }
	_, _, err := store.Increment(ctx, "fresh", time.Second)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_ConcurrentCounting(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, _, _ = store.Increment(ctx, "shared", time.Minute)
		}()
	}
	wg.Wait()

	count, _, err := store.Increment(ctx, "shared", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, goroutines+1, count)
}

func TestDecision_RetryAfterSeconds(t *testing.T) {
	tests := []struct {
		retryAfter time.Duration
		want       int
	}{
		{0, 0},
		{time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}

	for _, tt := range tests {
		d := Decision{RetryAfter: tt.retryAfter}
		assert.Equal(t, tt.want, d.RetryAfterSeconds())
	}
}
