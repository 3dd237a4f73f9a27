// Package cache defines the key-value port used for cross-process hints
// (presence last-seen mirror) together with a Redis adapter and an
// in-process adapter for single-node runs and tests.
package cache

import (
	"context"
	"time"
)

// Cache is the minimal key-value contract. Implementations are safe for
// concurrent use and honor ctx for cancellation.
//
// Values are strings so the port stays free of serialization concerns.
type Cache interface {
	// Get returns ErrMiss when key is absent or expired.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value with ttl. A ttl <= 0 means no expiration.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Del removes keys and reports how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrMiss signals a cache miss in a typed way.
var ErrMiss = errMiss{}

type errMiss struct{}

func (errMiss) Error() string { return "cache: miss" }
