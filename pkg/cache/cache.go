// Package cache provides the key/value store used to claim webhook event IDs.
package cache

import (
	"context"
	"time"
)

// Cache defines the interface for caching services.
// Get returns ("", nil) for a missing key.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// SetIfAbsent stores value only when key does not exist and reports whether it did.
	SetIfAbsent(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
