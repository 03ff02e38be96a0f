package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/hrm-scheduler/internal/core"
)

// RedisCacheRepo implements core.CacheRepository using Redis.
type RedisCacheRepo struct {
	client redis.UniversalClient
	prefix string
}

var _ core.CacheRepository = (*RedisCacheRepo)(nil)

// NewRedisCacheRepo creates a new RedisCacheRepo. Every key is namespaced with prefix.
func NewRedisCacheRepo(client redis.UniversalClient, prefix string) *RedisCacheRepo {
	return &RedisCacheRepo{client: client, prefix: prefix}
}

func (r *RedisCacheRepo) key(k string) (string, error) {
	if k == "" {
		return "", errors.New("key cannot be empty")
	}
	return r.prefix + k, nil
}

// Set stores a value in Redis with the given key and TTL.
func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k, err := r.key(key)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, k, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get retrieves a value from Redis by key. A missing key returns (nil, nil).
func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := r.key(key)
	if err != nil {
		return nil, err
	}
	result, err := r.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return result, nil
}

// Incr atomically increments an integer key.
func (r *RedisCacheRepo) Incr(ctx context.Context, key string) (int64, error) {
	k, err := r.key(key)
	if err != nil {
		return 0, err
	}
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

// Health checks the health of the Redis connection.
func (r *RedisCacheRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
