package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	pmotel "github.com/packetmill/packetmill/internal/adapter/otel"
	"github.com/packetmill/packetmill/internal/adapter/ws"
	"github.com/packetmill/packetmill/internal/config"
	"github.com/packetmill/packetmill/internal/domain/packet"
	"github.com/packetmill/packetmill/internal/domain/run"
	agentport "github.com/packetmill/packetmill/internal/port/agent"
	"github.com/packetmill/packetmill/internal/port/broadcast"
	"github.com/packetmill/packetmill/internal/port/database"
	"github.com/packetmill/packetmill/internal/port/messagequeue"
)

// ExecutorService drives a single packet through the agent: it opens a run,
// hands the packet over, and records exactly one terminal outcome. The run
// ledger's single-active-run rule is the only concurrency guard; a second
// execute for the same packet loses with domain.ErrAlreadyRunning.
type ExecutorService struct {
	store   database.Store
	agent   agentport.Client
	hub     broadcast.Broadcaster
	cfg     *config.Agent
	mq      messagequeue.Queue
	metrics *pmotel.Metrics

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // packet ID -> in-flight run cancel
}

// NewExecutorService creates a new ExecutorService.
func NewExecutorService(store database.Store, agentClient agentport.Client, hub broadcast.Broadcaster, cfg *config.Agent) *ExecutorService {
	return &ExecutorService{
		store:   store,
		agent:   agentClient,
		hub:     hub,
		cfg:     cfg,
		cancels: make(map[string]context.CancelFunc),
	}
}

// SetMessageQueue enables run-event publishing to NATS for downstream consumers.
func (s *ExecutorService) SetMessageQueue(mq messagequeue.Queue) {
	s.mq = mq
}

// SetMetrics enables run counters and duration recording.
func (s *ExecutorService) SetMetrics(m *pmotel.Metrics) {
	s.metrics = m
}

// Execute runs one packet and blocks until the run is terminal. The returned
// run carries the outcome; a failed run is a result, not an error. Errors are
// reserved for executions that never produced a terminal record: unknown
// packet, domain.ErrAlreadyRunning, or storage failures.
//
// Agent trouble of any kind (transport error, timeout, non-zero exit) lands
// as run status failed. There is no automatic retry; a retry is a new Execute
// call and a new iteration.
func (s *ExecutorService) Execute(ctx context.Context, packetID, projectID string) (*run.Run, error) {
	p, err := s.store.GetPacket(ctx, packetID)
	if err != nil {
		return nil, err
	}

	r, err := s.begin(ctx, p, projectID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := s.runContext(ctx)
	s.track(packetID, cancel)
	defer s.untrack(packetID)
	defer cancel()

	return s.invoke(runCtx, p, r)
}

// StartExecution opens the run synchronously and returns it in state running;
// the agent invocation continues on a detached context in the background.
// Callers that must not block on a long generation (HTTP, MCP tools) use this
// and follow the outcome via events or run lookups.
func (s *ExecutorService) StartExecution(ctx context.Context, packetID, projectID string) (*run.Run, error) {
	p, err := s.store.GetPacket(ctx, packetID)
	if err != nil {
		return nil, err
	}

	r, err := s.begin(ctx, p, projectID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := s.runContext(context.Background())
	s.track(packetID, cancel)

	go func() {
		defer cancel()
		defer s.untrack(packetID)
		if _, err := s.invoke(runCtx, p, r); err != nil {
			slog.Error("background execution", "packet_id", packetID, "run_id", r.ID, "error", err)
		}
	}()

	return r, nil
}

// Stop requests cancellation of the packet's active run. Fire-and-forget: it
// returns once the cancel is on its way, and the run settles as cancelled
// with the packet back in queued. Without an active run it reports
// domain.ErrNotFound.
func (s *ExecutorService) Stop(ctx context.Context, packetID string) error {
	r, err := s.store.GetActiveRun(ctx, packetID)
	if err != nil {
		return err
	}

	// Best-effort: the agent may finish anyway, in which case FinishRun's
	// changed flag resolves who records the outcome.
	if err := s.agent.Cancel(ctx, r.ID); err != nil {
		slog.Warn("agent cancel", "run_id", r.ID, "error", err)
	}

	s.mu.Lock()
	cancel, ok := s.cancels[packetID]
	s.mu.Unlock()

	if ok {
		// The executing goroutine observes the cancellation and records the
		// cancelled outcome itself.
		cancel()
		return nil
	}

	// No in-process execution holds this run, e.g. it predates a restart.
	// Settle it directly.
	fctx, fcancel := finishContext()
	defer fcancel()

	finished, changed, err := s.store.FinishRun(fctx, r.ID, run.StatusCancelled, run.Outcome{Output: "execution cancelled"})
	if err != nil {
		return err
	}
	if changed {
		if err := s.store.SetPacketStatus(fctx, packetID, packet.StatusQueued); err != nil {
			slog.Error("set packet status after stop", "packet_id", packetID, "error", err)
		}
		s.announceFinished(fctx, finished)
	}
	return nil
}

// begin opens the run and flips the packet to in_progress. It is the
// synchronous half shared by Execute and StartExecution, so the
// single-active-run check always surfaces to the caller.
func (s *ExecutorService) begin(ctx context.Context, p *packet.Packet, projectID string) (*run.Run, error) {
	r, err := s.store.StartRun(ctx, p.ID, projectID)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetPacketStatus(ctx, p.ID, packet.StatusInProgress); err != nil {
		// Do not leave the packet locked behind a run that never executed.
		fctx, fcancel := finishContext()
		defer fcancel()
		_, _, _ = s.store.FinishRun(fctx, r.ID, run.StatusFailed, run.Outcome{Output: "orchestrator error: " + err.Error()})
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RunsStarted.Add(ctx, 1)
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventPacketStatus, ws.PacketStatusEvent{
			PacketID:  p.ID,
			ProjectID: r.ProjectID,
			Status:    string(packet.StatusInProgress),
		})
		s.hub.BroadcastEvent(ctx, ws.EventRunStarted, ws.RunEvent{
			RunID:     r.ID,
			PacketID:  r.PacketID,
			ProjectID: r.ProjectID,
			Iteration: r.Iteration,
			Status:    string(r.Status),
		})
	}
	s.publishRun(ctx, messagequeue.SubjectRunStarted, r)

	slog.Info("run started", "run_id", r.ID, "packet_id", p.ID, "iteration", r.Iteration)
	return r, nil
}

// invoke performs the agent call and records the terminal outcome.
func (s *ExecutorService) invoke(ctx context.Context, p *packet.Packet, r *run.Run) (*run.Run, error) {
	spanCtx, span := pmotel.StartRunSpan(ctx, r.ID, p.ID, r.ProjectID)
	started := time.Now()

	res, agentErr := s.agent.Run(spanCtx, r.ID, p, s.workDir(r.ProjectID))

	var status run.Status
	var outcome run.Outcome
	switch {
	case agentErr == nil && res != nil && res.Success:
		status = run.StatusCompleted
		outcome = run.Outcome{Success: true, Output: res.Output, ExitCode: res.ExitCode}
	case agentErr == nil && res != nil:
		status = run.StatusFailed
		outcome = run.Outcome{Output: res.Output, ExitCode: res.ExitCode}
	case errors.Is(agentErr, context.Canceled):
		status = run.StatusCancelled
		outcome = run.Outcome{Output: "execution cancelled"}
	default:
		// Timeouts and transport errors are ordinary failures.
		status = run.StatusFailed
		outcome = run.Outcome{Output: errorOutput(agentErr)}
	}

	span.SetAttributes(attribute.String("run.status", string(status)))
	span.End()

	// Terminal bookkeeping runs on its own context: the execution context is
	// exactly what a stop cancels.
	fctx, fcancel := finishContext()
	defer fcancel()

	if status == run.StatusCancelled {
		// The dead transport context alone does not stop the worker.
		if cerr := s.agent.Cancel(fctx, r.ID); cerr != nil {
			slog.Warn("agent cancel", "run_id", r.ID, "error", cerr)
		}
	}

	finished, changed, err := s.store.FinishRun(fctx, r.ID, status, outcome)
	if err != nil {
		return nil, err
	}
	if !changed {
		// A concurrent stop settled the run first; the stored record stands.
		return finished, nil
	}

	if err := s.store.SetPacketStatus(fctx, p.ID, packetStatusFor(finished.Status)); err != nil {
		slog.Error("set packet status after run", "packet_id", p.ID, "run_id", r.ID, "error", err)
	}
	s.announceFinished(fctx, finished)

	slog.Info("run finished",
		"run_id", finished.ID,
		"packet_id", finished.PacketID,
		"status", finished.Status,
		"duration", time.Since(started).Round(time.Millisecond),
	)
	return finished, nil
}

// announceFinished emits the terminal events for a run the caller just
// settled: metrics, WebSocket broadcast, and the NATS subject.
func (s *ExecutorService) announceFinished(ctx context.Context, finished *run.Run) {
	var seconds float64
	if finished.CompletedAt != nil {
		seconds = finished.CompletedAt.Sub(finished.StartedAt).Seconds()
	}

	if s.metrics != nil {
		switch finished.Status {
		case run.StatusCompleted:
			s.metrics.RunsCompleted.Add(ctx, 1)
		case run.StatusCancelled:
			s.metrics.RunsCancelled.Add(ctx, 1)
		default:
			s.metrics.RunsFailed.Add(ctx, 1)
		}
		s.metrics.RunDuration.Record(ctx, seconds)
	}

	evType := ws.EventRunCompleted
	subject := messagequeue.SubjectRunCompleted
	if finished.Status == run.StatusCancelled {
		evType = ws.EventRunCancelled
		subject = messagequeue.SubjectRunCancelled
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventPacketStatus, ws.PacketStatusEvent{
			PacketID:  finished.PacketID,
			ProjectID: finished.ProjectID,
			Status:    string(packetStatusFor(finished.Status)),
		})
		s.hub.BroadcastEvent(ctx, evType, ws.RunEvent{
			RunID:     finished.ID,
			PacketID:  finished.PacketID,
			ProjectID: finished.ProjectID,
			Iteration: finished.Iteration,
			Status:    string(finished.Status),
		})
	}
	s.publishRun(ctx, subject, finished)
}

func (s *ExecutorService) publishRun(ctx context.Context, subject string, r *run.Run) {
	if s.mq == nil {
		return
	}
	data, err := json.Marshal(messagequeue.RunEventPayload{
		RunID:     r.ID,
		PacketID:  r.PacketID,
		ProjectID: r.ProjectID,
		Iteration: r.Iteration,
		Status:    string(r.Status),
	})
	if err != nil {
		return
	}
	if err := s.mq.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish run event", "subject", subject, "run_id", r.ID, "error", err)
	}
}

// runContext derives the context the agent invocation lives under.
func (s *ExecutorService) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RunTimeout > 0 {
		return context.WithTimeout(parent, s.cfg.RunTimeout)
	}
	return context.WithCancel(parent)
}

func (s *ExecutorService) workDir(projectID string) string {
	return filepath.Join(s.cfg.WorkDirRoot, projectID)
}

func (s *ExecutorService) track(packetID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[packetID] = cancel
}

func (s *ExecutorService) untrack(packetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, packetID)
}

// packetStatusFor maps a terminal run status to the packet status it implies.
// Cancellation sends the packet back to queued, so it stays re-runnable and
// is distinguishable from failure.
func packetStatusFor(st run.Status) packet.Status {
	switch st {
	case run.StatusCompleted:
		return packet.StatusCompleted
	case run.StatusCancelled:
		return packet.StatusQueued
	default:
		return packet.StatusFailed
	}
}

// finishContext returns a short-lived context detached from the execution
// context, so terminal writes still land after a cancellation.
func finishContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

func errorOutput(err error) string {
	if err == nil {
		return "agent returned no result"
	}
	return err.Error()
}
