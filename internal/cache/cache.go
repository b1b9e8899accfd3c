// Package cache wraps Redis as a small key-value store with TTLs. Every
// failure is returned to the caller; callers decide whether a cache error is
// fatal (it never is on the digest path).
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "snipper:"

// NewClient parses a redis:// URL into a client.
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// RedisStore implements get/set/deleteMany over a redis.UniversalClient.
type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Get returns the value at key. A miss is (nil, false, nil).
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// DeleteMany removes keys in one round trip. Absent keys are ignored.
func (s *RedisStore) DeleteMany(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = keyPrefix + k
	}
	if err := s.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Incr increments the counter at key, setting ttl when the key is created.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.rdb.Incr(ctx, keyPrefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache incr %s: %w", key, err)
	}
	if n == 1 && ttl > 0 {
		if err := s.rdb.Expire(ctx, keyPrefix+key, ttl).Err(); err != nil {
			return n, fmt.Errorf("cache expire %s: %w", key, err)
		}
	}
	return n, nil
}

// Ping checks connectivity for health endpoints.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
