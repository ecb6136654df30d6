package port

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by KeyValueStore.Get when the key is absent.
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is the primary (remote) cache tier. Any store with TTL
// support and glob-style key listing satisfies it.
type KeyValueStore interface {
	// Get returns the raw value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Keys lists all keys matching a glob pattern ('*' wildcard).
	Keys(ctx context.Context, pattern string) ([]string, error)
}
