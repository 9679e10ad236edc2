// Package cache defines the port for byte-value caching with TTLs.
package cache

import (
	"context"
	"time"
)

// Cache is a key-value cache of serialized snapshots. Implementations wrap
// an in-process store, a shared bucket, or a tier of both.
//
// The contract:
//
//   - Get reports a miss as ok=false with a nil error. Errors mean the
//     backend itself failed.
//   - Set overwrites; last write wins. A backend with admission control
//     may silently decline an entry.
//   - Delete of an absent key is a no-op, not an error.
//   - ttl is a ceiling, not a promise. Backends with bucket-level expiry
//     apply their own.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
