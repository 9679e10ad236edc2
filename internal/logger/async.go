package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// entry pairs a record with the handler that must format it. Queuing the
// pair rather than the bare record keeps attrs and groups added through a
// derived handler attached to the records logged through it.
type entry struct {
	h   slog.Handler
	rec slog.Record
}

// pump is the worker state shared by a base AsyncHandler and every handler
// derived from it.
type pump struct {
	queue   chan entry
	wg      sync.WaitGroup
	dropped atomic.Int64
	stop    sync.Once
}

func (p *pump) run() {
	defer p.wg.Done()
	for e := range p.queue {
		_ = e.h.Handle(context.Background(), e.rec)
	}
}

func (p *pump) close() {
	p.stop.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}

// AsyncHandler decouples log emission from IO. Records are cloned onto a
// buffered channel and written by a fixed set of workers; when the buffer
// is full the record is counted and discarded rather than blocking the
// caller.
type AsyncHandler struct {
	inner slog.Handler
	pump  *pump
}

// NewAsyncHandler starts workers draining into inner.
func NewAsyncHandler(inner slog.Handler, buffer, workers int) *AsyncHandler {
	p := &pump{queue: make(chan entry, buffer)}
	p.wg.Add(workers)
	for range workers {
		go p.run()
	}
	return &AsyncHandler{inner: inner, pump: p}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues a clone of the record. The clone matters: the caller may
// reuse the record's backing storage once Handle returns.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.pump.queue <- entry{h: h.inner, rec: rec.Clone()}:
	default:
		h.pump.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler that shares this handler's queue and workers.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), pump: h.pump}
}

// WithGroup derives a handler that shares this handler's queue and workers.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), pump: h.pump}
}

// DroppedCount reports how many records were discarded on a full buffer.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.pump.dropped.Load()
}

// Close stops the workers once the queue drains. Safe to call repeatedly,
// including on handlers derived via WithAttrs or WithGroup.
func (h *AsyncHandler) Close() {
	h.pump.close()
}
