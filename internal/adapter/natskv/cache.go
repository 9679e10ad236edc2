// Package natskv implements the cache port using NATS JetStream KV as the
// shared L2 tier. Every orchestrator instance sees the same session
// snapshots, so a reconcile served by one instance warms the others.
package natskv

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache adapts a JetStream KeyValue bucket to the cache port.
type Cache struct {
	bucket jetstream.KeyValue
}

// New wraps an existing bucket. Expiry is a bucket property, configured
// where the bucket is created (Queue.KeyValue); the per-call TTL is ignored.
func New(bucket jetstream.KeyValue) *Cache {
	return &Cache{bucket: bucket}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := c.bucket.Get(ctx, key)
	switch {
	case errors.Is(err, jetstream.ErrKeyNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return entry.Value(), true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.bucket.Put(ctx, key, value)
	return err
}

// Delete purges the key. A plain KV delete leaves a tombstone in the bucket
// history; cached snapshots have no use for one.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.bucket.Purge(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
