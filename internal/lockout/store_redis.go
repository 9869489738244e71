package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"caregate/pkg/requestcontext"
)

// RedisStore shares failure counters and locks across instances. Counters
// expire with the window via TTL; locks are keys with their own TTL, so no
// cleanup job is needed.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func failureKey(key string) string { return "lockout:failures:" + key }
func lockKey(key string) string    { return "lockout:lock:" + key }

func (s *RedisStore) RecordFailure(ctx context.Context, key string, window time.Duration) (int, error) {
	count, err := s.client.Incr(ctx, failureKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment failure counter: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, failureKey(key), window).Err(); err != nil {
			return 0, fmt.Errorf("set failure window: %w", err)
		}
	}
	return int(count), nil
}

func (s *RedisStore) Failures(ctx context.Context, key string) (int, error) {
	count, err := s.client.Get(ctx, failureKey(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read failure counter: %w", err)
	}
	return count, nil
}

func (s *RedisStore) Lock(ctx context.Context, key string, until time.Time) error {
	ttl := until.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, lockKey(key), until.UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("set lockout: %w", err)
	}
	return nil
}

func (s *RedisStore) LockedUntil(ctx context.Context, key string) (*time.Time, error) {
	raw, err := s.client.Get(ctx, lockKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lockout: %w", err)
	}
	until, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("parse lockout expiry: %w", err)
	}
	return &until, nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, failureKey(key), lockKey(key)).Err(); err != nil {
		return fmt.Errorf("clear lockout state: %w", err)
	}
	return nil
}
