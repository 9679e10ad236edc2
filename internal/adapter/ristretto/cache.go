// Package ristretto implements the cache port using dgraph-io/ristretto as
// the in-process L1 tier. It holds the hot read path of the reconciler:
// session snapshots that would otherwise hit the companion service on every
// poll.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache adapts a ristretto cache to the cache port. Cost equals value size,
// so MaxCost bounds total bytes held.
type Cache struct {
	inner *ristretto.Cache[string, []byte]
}

// New sizes the cache for kilobyte-scale JSON snapshots. Ristretto wants a
// counter budget around ten times the expected entry count; the floor keeps
// tiny configured sizes from starving the admission policy.
func New(maxCostBytes int64) (*Cache, error) {
	counters := maxCostBytes / 1024 * 10
	if counters < 1024 {
		counters = 1024
	}
	inner, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := c.inner.Get(key)
	return val, ok, nil
}

// Set stores the value at a cost of its byte length. Ristretto admits
// entries asynchronously and is free to decline one.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.inner.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.inner.Del(key)
	return nil
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() {
	c.inner.Close()
}
