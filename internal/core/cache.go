package core

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations.
// The core defines the interface and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Incr atomically increments an integer key, creating it at 1 when absent.
	Incr(ctx context.Context, key string) (int64, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}
