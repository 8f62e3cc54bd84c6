package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/contacthub/contacthub/pkg/errors"
)

// Store counts hits per key within a fixed window. The increment must be
// atomic: multiple server processes share one store and rely on it for
// correctness instead of coordinating among themselves.
type Store interface {
	// Incr increments the counter for key, setting its expiry to window on
	// first use, and returns the new count.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter enforces a fixed-window request ceiling per client identity.
type Limiter struct {
	store  Store
	name   string
	max    int64
	window time.Duration
}

// New creates a limiter allowing max requests per window. The name scopes
// keys in the shared store so different route policies do not collide.
func New(store Store, name string, max int, window time.Duration) *Limiter {
	return &Limiter{
		store:  store,
		name:   name,
		max:    int64(max),
		window: window,
	}
}

// Allow records a hit for the given identity and returns a RateLimited error
// once the count in the current window exceeds the ceiling. Store failures
// are surfaced as-is: callers decide whether to fail open or closed.
func (l *Limiter) Allow(ctx context.Context, identity string) error {
	key := fmt.Sprintf("ratelimit:%s:%s", l.name, identity)

	count, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		return fmt.Errorf("rate limit incr %s: %w", key, err)
	}

	if count > l.max {
		return apperrors.RateLimited("too many requests")
	}

	return nil
}

// RedisStore implements Store on a shared Redis instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed window store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr atomically increments the key and sets its expiry only when the key is
// new, so the window does not slide on subsequent hits.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return incr.Val(), nil
}
