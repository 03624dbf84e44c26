package cache

import (
	"context"
	"time"
)

// Store represents a shared cache interface used across the application:
// rate limiting counters, tenant lookups, and session caching.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Set stores the value under key. A zero ttl stores it without expiry;
	// a negative ttl marks the entry as already expired.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
