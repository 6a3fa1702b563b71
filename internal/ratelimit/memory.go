package ratelimit

import (
	"context"
	"sync"
	"time"
)

// record is one identity+bucket counter in the current window.
type record struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps counters in a mutex-guarded map. State does not
// survive restarts and is not shared across instances; deployments
// running more than one instance should use RedisStore instead.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]*record
	highWater int
	now       func() time.Time
}

// DefaultHighWater bounds tracked identities before a sweep runs.
const DefaultHighWater = 10000

// NewMemoryStore creates an in-memory store. highWater is the number
// of tracked entries above which expired records are swept; values
// <= 0 fall back to DefaultHighWater.
func NewMemoryStore(highWater int) *MemoryStore {
	if highWater <= 0 {
		highWater = DefaultHighWater
	}
	return &MemoryStore{
		records:   make(map[string]*record),
		highWater: highWater,
		now:       time.Now,
	}
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	rec, ok := s.records[key]
	if !ok || now.After(rec.resetAt) {
		if len(s.records) > s.highWater {
			s.sweepLocked(now)
		}
		rec = &record{count: 1, resetAt: now.Add(window)}
		s.records[key] = rec
		return rec.count, rec.resetAt, nil
	}

	rec.count++
	return rec.count, rec.resetAt, nil
}

// sweepLocked deletes records whose window already elapsed. Caller
// holds the mutex.
func (s *MemoryStore) sweepLocked(now time.Time) {
	for key, rec := range s.records {
		if now.After(rec.resetAt) {
			delete(s.records, key)
		}
	}
}

// Len reports the number of tracked entries. Used by tests and the
// health endpoint.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
