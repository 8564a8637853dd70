// internal/cache/store.go
//
// Shared (L2) tier contract.
//
// Context
// -------
// The L2 tier is a durable key-value store shared by every process of a
// deployment.  It is optional and fallible: callers must treat any error
// as a miss and keep serving from L1.  Values are opaque bytes; encoding
// belongs to the tiered engine.
//
// Notes
// -----
//   - Get returns ErrNotFound for a missing key; every other error is an
//     infrastructure failure.
//   - DeletePrefix is cursor based and not atomic.  Keys written while it
//     runs may survive.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is the L2 contract.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
