// Package memory holds single-process store drivers. They satisfy the same
// contracts as the networked drivers but are only correct for one gateway
// replica.
package memory

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	n         int64
	expiresAt time.Time
}

// CounterStore is an in-process CounterStore. One mutex guards the map and is
// held only for the duration of a single increment.
type CounterStore struct {
	mu   sync.Mutex
	data map[string]*counter
	now  func() time.Time

	lastSweep time.Time
}

// NewCounterStore returns an empty store reading time from now (nil means
// time.Now).
func NewCounterStore(now func() time.Time) *CounterStore {
	if now == nil {
		now = time.Now
	}
	return &CounterStore{data: make(map[string]*counter), now: now}
}

func (s *CounterStore) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeSweep(now)

	c, ok := s.data[key]
	if !ok || !now.Before(c.expiresAt) {
		c = &counter{expiresAt: now.Add(ttl)}
		s.data[key] = c
	}
	c.n++

	return c.n, c.expiresAt.Sub(now), nil
}

// maybeSweep drops expired keys at most once a minute.
func (s *CounterStore) maybeSweep(now time.Time) {
	if now.Sub(s.lastSweep) < time.Minute {
		return
	}
	s.lastSweep = now
	for k, c := range s.data {
		if !now.Before(c.expiresAt) {
			delete(s.data, k)
		}
	}
}

// Len reports the number of live keys, for tests.
func (s *CounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *CounterStore) Ping(ctx context.Context) error { return ctx.Err() }
func (s *CounterStore) Close() error                   { return nil }
