package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	pmotel "github.com/packetmill/packetmill/internal/adapter/otel"
	"github.com/packetmill/packetmill/internal/adapter/ws"
	"github.com/packetmill/packetmill/internal/config"
	"github.com/packetmill/packetmill/internal/domain"
	"github.com/packetmill/packetmill/internal/domain/packet"
	"github.com/packetmill/packetmill/internal/domain/run"
	"github.com/packetmill/packetmill/internal/port/broadcast"
	"github.com/packetmill/packetmill/internal/port/database"
	"github.com/packetmill/packetmill/internal/port/messagequeue"
	"github.com/packetmill/packetmill/internal/workpool"
)

// batchCancelledMsg marks packets a cancellation caught before they started.
const batchCancelledMsg = "batch cancelled"

// BatchService drives a set of packets through the executor under a bounded
// worker pool. Batches are partial-failure tolerant: one packet failing never
// aborts its siblings, and the result itemizes every requested packet. One
// batch runs per project at a time.
type BatchService struct {
	store    database.Store
	executor *ExecutorService
	hub      broadcast.Broadcaster
	cfg      *config.Executor
	mq       messagequeue.Queue
	metrics  *pmotel.Metrics

	mu     sync.Mutex
	active map[string]*batchState // project ID -> running batch
}

// batchState is the live bookkeeping of one executing batch.
type batchState struct {
	cancel  context.CancelFunc
	total   int
	current atomic.Int32 // terminal outcomes so far, completion order
}

// NewBatchService creates a new BatchService on top of the executor.
func NewBatchService(store database.Store, executor *ExecutorService, hub broadcast.Broadcaster, cfg *config.Executor) *BatchService {
	return &BatchService{
		store:    store,
		executor: executor,
		hub:      hub,
		cfg:      cfg,
		active:   make(map[string]*batchState),
	}
}

// SetMessageQueue enables batch-event publishing to NATS.
func (s *BatchService) SetMessageQueue(mq messagequeue.Queue) {
	s.mq = mq
}

// SetMetrics enables the batch counter.
func (s *BatchService) SetMetrics(m *pmotel.Metrics) {
	s.metrics = m
}

// ExecuteBatch runs the requested packets and blocks until every one of them
// has a recorded outcome. Packets already completed are skipped; packets that
// fail are reported in the result, not as an error. A second batch for the
// same project reports domain.ErrBatchActive.
func (s *BatchService) ExecuteBatch(ctx context.Context, projectID string, req run.BatchRequest) (*run.BatchResult, error) {
	st, batchCtx, err := s.register(ctx, projectID, &req)
	if err != nil {
		return nil, err
	}
	return s.drive(batchCtx, projectID, &req, st), nil
}

// StartBatch registers the batch synchronously, so validation and the
// one-batch-per-project rule surface to the caller, then drives it on a
// detached context in the background. Progress is observable via Progress
// and the broadcast events.
func (s *BatchService) StartBatch(_ context.Context, projectID string, req run.BatchRequest) error {
	st, batchCtx, err := s.register(context.Background(), projectID, &req)
	if err != nil {
		return err
	}
	go func() {
		_ = s.drive(batchCtx, projectID, &req, st)
	}()
	return nil
}

// CancelBatch stops the project's active batch: no new packets are
// dispatched, and running ones are cancelled top-down. Packets the
// cancellation catches before they start remain queued.
func (s *BatchService) CancelBatch(_ context.Context, projectID string) error {
	s.mu.Lock()
	st, ok := s.active[projectID]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("no active batch for project %s: %w", projectID, domain.ErrNotFound)
	}

	st.cancel()
	slog.Info("batch cancellation requested", "project_id", projectID)
	return nil
}

// Progress returns a point-in-time snapshot of the project's batch.
func (s *BatchService) Progress(projectID string) *run.BatchStatus {
	s.mu.Lock()
	st, ok := s.active[projectID]
	s.mu.Unlock()

	if !ok {
		return &run.BatchStatus{ProjectID: projectID}
	}
	return &run.BatchStatus{
		ProjectID: projectID,
		Active:    true,
		Progress:  run.BatchProgress{Current: int(st.current.Load()), Total: st.total},
	}
}

// register validates the request and claims the project's batch slot.
func (s *BatchService) register(parent context.Context, projectID string, req *run.BatchRequest) (*batchState, context.Context, error) {
	if projectID == "" {
		return nil, nil, fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[projectID]; exists {
		return nil, nil, fmt.Errorf("project %s: %w", projectID, domain.ErrBatchActive)
	}

	batchCtx, cancel := context.WithCancel(parent)
	st := &batchState{cancel: cancel, total: len(req.PacketIDs)}
	s.active[projectID] = st
	return st, batchCtx, nil
}

// drive is the batch main loop. It dispatches packets in the order given
// through the pool and aggregates outcomes in completion order.
func (s *BatchService) drive(batchCtx context.Context, projectID string, req *run.BatchRequest, st *batchState) *run.BatchResult {
	defer func() {
		st.cancel()
		s.mu.Lock()
		delete(s.active, projectID)
		s.mu.Unlock()
	}()

	concurrency := s.effectiveConcurrency(req.Concurrency, len(req.PacketIDs))

	spanCtx, span := pmotel.StartBatchSpan(batchCtx, projectID, len(req.PacketIDs))
	defer span.End()

	if s.metrics != nil {
		s.metrics.BatchesRun.Add(spanCtx, 1)
	}
	s.publish(spanCtx, messagequeue.SubjectBatchStarted, messagequeue.BatchStartedPayload{
		ProjectID:   projectID,
		Packets:     len(req.PacketIDs),
		Concurrency: concurrency,
	})
	slog.Info("batch started",
		"project_id", projectID,
		"packets", len(req.PacketIDs),
		"concurrency", concurrency,
	)

	result := &run.BatchResult{
		ProjectID: projectID,
		Results:   make(map[string]run.Result, len(req.PacketIDs)),
		Progress:  run.BatchProgress{Total: st.total},
	}
	var resMu sync.Mutex

	record := func(res run.Result) {
		resMu.Lock()
		result.Results[res.PacketID] = res
		switch {
		case res.Run != nil && res.Run.Status == run.StatusCompleted:
			result.Succeeded++
		case res.Run != nil && res.Run.Status == run.StatusCancelled:
			result.Cancelled++
		case res.Run != nil:
			result.Failed++
		case res.Err == batchCancelledMsg:
			result.Cancelled++
		case res.Err != "":
			result.Failed++
		default:
			result.Skipped++
		}
		resMu.Unlock()

		cur := int(st.current.Add(1))
		s.announceProgress(spanCtx, projectID, res, cur, st.total)
	}

	pool := workpool.New(concurrency)
	var wg sync.WaitGroup

	for _, packetID := range req.PacketIDs {
		wg.Add(1)
		err := pool.Dispatch(batchCtx, func() {
			defer wg.Done()
			record(s.runOne(batchCtx, projectID, packetID))
		})
		if err != nil {
			// Cancelled while waiting for a slot: the packet never started
			// and stays queued.
			wg.Done()
			record(run.Result{PacketID: packetID, Err: batchCancelledMsg})
		}
	}
	wg.Wait()

	result.Progress.Current = int(st.current.Load())

	if s.hub != nil {
		s.hub.BroadcastEvent(spanCtx, ws.EventBatchCompleted, ws.BatchCompletedEvent{
			ProjectID: projectID,
			Succeeded: result.Succeeded,
			Failed:    result.Failed,
			Cancelled: result.Cancelled,
			Skipped:   result.Skipped,
		})
	}
	s.publish(spanCtx, messagequeue.SubjectBatchDone, messagequeue.BatchDonePayload{
		ProjectID: projectID,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Cancelled: result.Cancelled,
		Skipped:   result.Skipped,
	})
	slog.Info("batch finished",
		"project_id", projectID,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"cancelled", result.Cancelled,
		"skipped", result.Skipped,
	)
	return result
}

// runOne executes a single batch member and classifies its outcome.
func (s *BatchService) runOne(ctx context.Context, projectID, packetID string) run.Result {
	p, err := s.store.GetPacket(ctx, packetID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return run.Result{PacketID: packetID, Err: batchCancelledMsg}
		}
		return run.Result{PacketID: packetID, Err: err.Error()}
	}

	// Callers should have filtered, but re-check: completed packets are
	// skipped, not re-executed.
	if p.Status == packet.StatusCompleted {
		return run.Result{PacketID: packetID}
	}

	r, err := s.executor.Execute(ctx, packetID, projectID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return run.Result{PacketID: packetID, Err: batchCancelledMsg}
		}
		return run.Result{PacketID: packetID, Err: err.Error()}
	}
	return run.Result{PacketID: packetID, Run: r}
}

func (s *BatchService) announceProgress(ctx context.Context, projectID string, res run.Result, current, total int) {
	status := "skipped"
	switch {
	case res.Run != nil:
		status = string(res.Run.Status)
	case res.Err == batchCancelledMsg:
		status = string(run.StatusCancelled)
	case res.Err != "":
		status = string(run.StatusFailed)
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventBatchProgress, ws.BatchProgressEvent{
			ProjectID: projectID,
			PacketID:  res.PacketID,
			Status:    status,
			Current:   current,
			Total:     total,
		})
	}
	s.publish(ctx, messagequeue.SubjectBatchProgress, messagequeue.BatchProgressPayload{
		ProjectID: projectID,
		PacketID:  res.PacketID,
		Status:    status,
		Current:   current,
		Total:     total,
	})
}

// effectiveConcurrency resolves the worker-pool size: the request's value,
// the configured default when the request leaves it at zero, never more than
// the packet count, and never above the configured maximum.
func (s *BatchService) effectiveConcurrency(requested, packets int) int {
	c := requested
	if c == 0 {
		c = s.cfg.DefaultConcurrency
	}
	if c > packets {
		c = packets
	}
	if s.cfg.MaxConcurrency > 0 && c > s.cfg.MaxConcurrency {
		c = s.cfg.MaxConcurrency
	}
	if c < 1 {
		c = 1
	}
	return c
}

func (s *BatchService) publish(ctx context.Context, subject string, payload any) {
	if s.mq == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.mq.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish batch event", "subject", subject, "error", err)
	}
}
