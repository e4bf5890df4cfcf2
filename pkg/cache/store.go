package cache

import (
	"context"
	"time"
)

// Store is the durable cache layer. Implementations hold serialized entries
// and must return ErrCacheMiss for absent keys.
type Store interface {
	// Get returns the serialized entry stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores data under key. The store may drop it after ttl.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes keys. Absent keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
