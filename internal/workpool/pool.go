// Package workpool provides a bounded pool for concurrent packet execution.
package workpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool caps how many agent invocations run at once. A batch creates one Pool
// sized to its effective concurrency and routes every packet execution
// through it, so the bound is structural rather than bookkeeping.
type Pool struct {
	sem *semaphore.Weighted
}

// New creates a Pool that admits at most limit concurrent executions.
// A limit below 1 is clamped to 1 (strictly sequential).
func New(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot. It blocks while all
// slots are busy and returns ctx.Err() if the context is cancelled before a
// slot frees up; fn is not called in that case. A nil Pool runs fn directly.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// Dispatch blocks until a slot is free, then hands fn to its own goroutine,
// releasing the slot when fn returns. Calling Dispatch from a single loop
// preserves the caller's ordering: item N+1 is not dispatched before item N
// holds a slot. Returns ctx.Err() without running fn if the context is
// cancelled while waiting.
func (p *Pool) Dispatch(ctx context.Context, fn func()) error {
	if p == nil || p.sem == nil {
		go fn()
		return nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	go func() {
		defer p.sem.Release(1)
		fn()
	}()
	return nil
}
