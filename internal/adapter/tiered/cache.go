// Package tiered layers a per-instance cache over a shared one.
package tiered

import (
	"context"
	"time"

	"github.com/packetmill/packetmill/internal/port/cache"
)

// Cache reads through an in-process L1 before falling back to the shared
// L2, backfilling L1 on an L2 hit. Writes treat L2 as the authority; the
// L1 copy is best-effort.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	backfill time.Duration
}

// New composes the two levels. backfill bounds how long an entry copied up
// from L2 may live in L1.
func New(l1, l2 cache.Cache, backfill time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, backfill: backfill}
}

// Get returns the L1 copy when present. An L1 read error counts as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, err := c.l1.Get(ctx, key); err == nil && ok {
		return val, true, nil
	}

	val, ok, err := c.l2.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = c.l1.Set(ctx, key, val, c.backfill)
	return val, true, nil
}

// Set writes L2 first. A value must never exist only in this instance's L1.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = c.l1.Set(ctx, key, value, ttl)
	return nil
}

// Delete drops the key from both levels. The L2 removal is the one that
// counts; a surviving L1 entry ages out via its TTL.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l2.Delete(ctx, key); err != nil {
		return err
	}
	_ = c.l1.Delete(ctx, key)
	return nil
}
