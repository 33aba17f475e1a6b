// Package redis is the shared counter store backed by Redis. Every gateway
// replica pointing at the same instance shares quota windows.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/store"
	"github.com/redis/go-redis/v9"
)

// incrScript increments KEYS[1] and sets its expiry (ARGV[1], ms) only when
// the increment created the key. It returns {count, pttl}.
var incrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// DefaultOpTimeout bounds a single counter operation.
const DefaultOpTimeout = 500 * time.Millisecond

type Options struct {
	Addr     string
	Password string
	DB       int
	TLS      bool

	// OpTimeout bounds each increment. Defaults to DefaultOpTimeout.
	OpTimeout time.Duration
}

type CounterStore struct {
	client    redis.UniversalClient
	opTimeout time.Duration
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, opts Options) (*CounterStore, error) {
	ro := &redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.TLS {
		ro.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	s := NewFromClient(redis.NewClient(ro), opts.OpTimeout)
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client redis.UniversalClient, opTimeout time.Duration) *CounterStore {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &CounterStore{client: client, opTimeout: opTimeout}
}

func (s *CounterStore) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	res, err := incrScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: redis incr: %w", store.ErrUnavailable, err)
	}

	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("%w: redis incr: unexpected reply %T", store.ErrUnavailable, res)
	}
	count, ok1 := vals[0].(int64)
	pttl, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("%w: redis incr: unexpected reply types", store.ErrUnavailable)
	}

	// PTTL is negative if the key has no expiry; treat it as a full window.
	left := time.Duration(pttl) * time.Millisecond
	if pttl < 0 {
		left = ttl
	}
	return count, left, nil
}

func (s *CounterStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %w", store.ErrUnavailable, err)
	}
	return nil
}

func (s *CounterStore) Close() error {
	if err := s.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
