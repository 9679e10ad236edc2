package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/packetmill/packetmill/internal/port/cache"
)

// RunContractTests exercises the behavior every Cache implementation must
// share. Adapter packages mirror these cases against their real backends.
func RunContractTests(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()

	set := func(t *testing.T, key, val string) {
		t.Helper()
		if err := c.Set(ctx, key, []byte(val), time.Minute); err != nil {
			t.Fatalf("Set %q: %v", key, err)
		}
	}
	get := func(t *testing.T, key string) ([]byte, bool) {
		t.Helper()
		v, ok, err := c.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get %q: %v", key, err)
		}
		return v, ok
	}

	t.Run("RoundTrip", func(t *testing.T) {
		set(t, "ct.round", "alpha")
		if v, ok := get(t, "ct.round"); !ok || string(v) != "alpha" {
			t.Fatalf("Get = %q, %v; want alpha, true", v, ok)
		}
	})

	t.Run("MissIsNotAnError", func(t *testing.T) {
		if _, ok := get(t, "ct.absent"); ok {
			t.Fatal("absent key reported as a hit")
		}
	})

	t.Run("LastWriteWins", func(t *testing.T) {
		set(t, "ct.ow", "v1")
		set(t, "ct.ow", "v2")
		if v, _ := get(t, "ct.ow"); string(v) != "v2" {
			t.Fatalf("Get = %q, want v2", v)
		}
	})

	t.Run("DeleteRemoves", func(t *testing.T) {
		set(t, "ct.del", "gone")
		if err := c.Delete(ctx, "ct.del"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, ok := get(t, "ct.del"); ok {
			t.Fatal("key survived Delete")
		}
	})

	t.Run("DeleteAbsentIsNoop", func(t *testing.T) {
		if err := c.Delete(ctx, "ct.never"); err != nil {
			t.Fatalf("Delete of an absent key: %v", err)
		}
	})
}

// memCache is the minimal conforming implementation, used to keep the
// contract suite itself honest. Set copies the value so later mutation of
// the caller's slice cannot reach the stored entry.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), value...)
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func TestContractAgainstMemCache(t *testing.T) {
	RunContractTests(t, &memCache{data: make(map[string][]byte)})
}
