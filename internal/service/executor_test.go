package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/packetmill/packetmill/internal/adapter/ws"
	"github.com/packetmill/packetmill/internal/config"
	"github.com/packetmill/packetmill/internal/domain"
	"github.com/packetmill/packetmill/internal/domain/packet"
	"github.com/packetmill/packetmill/internal/domain/run"
	agentport "github.com/packetmill/packetmill/internal/port/agent"
	"github.com/packetmill/packetmill/internal/port/broadcast"
)

var _ agentport.Client = (*mockAgent)(nil)

// mockAgent scripts the agent port. With release set, Run blocks until the
// channel closes or the context ends; started signals each invocation so
// tests can synchronize without sleeping.
type mockAgent struct {
	mu      sync.Mutex
	results map[string]*agentport.Result // packet ID -> scripted result
	runErr  error
	release chan struct{}
	started chan string // receives the packet ID as Run begins
	invoked []string
	cancels []string

	inFlight  atomic.Int32
	highWater atomic.Int32
}

func (a *mockAgent) Name() string { return "mock" }

func (a *mockAgent) Run(ctx context.Context, _ string, p *packet.Packet, _ string) (*agentport.Result, error) {
	cur := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	for {
		hw := a.highWater.Load()
		if cur <= hw || a.highWater.CompareAndSwap(hw, cur) {
			break
		}
	}

	a.mu.Lock()
	a.invoked = append(a.invoked, p.ID)
	release := a.release
	started := a.started
	runErr := a.runErr
	var res *agentport.Result
	if a.results != nil {
		res = a.results[p.ID]
	}
	a.mu.Unlock()

	if started != nil {
		started <- p.ID
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, runErr
	}
	if res != nil {
		return res, nil
	}
	return &agentport.Result{Success: true, Output: "done"}, nil
}

func (a *mockAgent) Cancel(_ context.Context, runID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancels = append(a.cancels, runID)
	return nil
}

func (a *mockAgent) invocations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.invoked))
	copy(out, a.invoked)
	return out
}

func (a *mockAgent) cancelled() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.cancels))
	copy(out, a.cancels)
	return out
}

var _ broadcast.Broadcaster = (*mockBroadcaster)(nil)

// mockBroadcaster records event types in broadcast order.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
}

func (b *mockBroadcaster) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func testAgentConfig() *config.Agent {
	return &config.Agent{WorkDirRoot: "/tmp/packetmill-test"}
}

func singlePacketStore() *mockStore {
	return &mockStore{packets: []packet.Packet{
		{ID: "pk1", ProjectID: "proj-1", Title: "Parser", Status: packet.StatusQueued},
	}}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

type execOut struct {
	r   *run.Run
	err error
}

func TestExecutorServiceExecuteSuccess(t *testing.T) {
	store := singlePacketStore()
	hub := &mockBroadcaster{}
	svc := NewExecutorService(store, &mockAgent{}, hub, testAgentConfig())

	r, err := svc.Execute(context.Background(), "pk1", "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Status != run.StatusCompleted {
		t.Fatalf("expected completed, got %s", r.Status)
	}
	if r.Iteration != 1 {
		t.Fatalf("expected iteration 1, got %d", r.Iteration)
	}
	if r.CompletedAt == nil {
		t.Fatal("expected CompletedAt set on terminal run")
	}
	if got := store.packetStatus(t, "pk1"); got != packet.StatusCompleted {
		t.Fatalf("expected packet completed, got %s", got)
	}
	if hub.count(ws.EventRunStarted) != 1 || hub.count(ws.EventRunCompleted) != 1 {
		t.Fatalf("expected one started and one completed event, got %v", hub.events)
	}
	if hub.count(ws.EventPacketStatus) != 2 {
		t.Fatalf("expected two packet status events, got %d", hub.count(ws.EventPacketStatus))
	}
}

func TestExecutorServiceExecuteAgentFailure(t *testing.T) {
	exitCode := 2
	store := singlePacketStore()
	agent := &mockAgent{results: map[string]*agentport.Result{
		"pk1": {Success: false, Output: "tests failed", ExitCode: &exitCode},
	}}
	svc := NewExecutorService(store, agent, &mockBroadcaster{}, testAgentConfig())

	r, err := svc.Execute(context.Background(), "pk1", "proj-1")
	if err != nil {
		t.Fatalf("a failed run is a result, not an error: %v", err)
	}
	if r.Status != run.StatusFailed {
		t.Fatalf("expected failed, got %s", r.Status)
	}
	if r.Output != "tests failed" {
		t.Fatalf("expected agent output preserved, got %q", r.Output)
	}
	if r.ExitCode == nil || *r.ExitCode != 2 {
		t.Fatalf("expected exit code 2, got %v", r.ExitCode)
	}
	if got := store.packetStatus(t, "pk1"); got != packet.StatusFailed {
		t.Fatalf("expected packet failed, got %s", got)
	}
}

func TestExecutorServiceExecuteTransportError(t *testing.T) {
	store := singlePacketStore()
	agent := &mockAgent{runErr: errors.New("nats: connection refused")}
	svc := NewExecutorService(store, agent, &mockBroadcaster{}, testAgentConfig())

	r, err := svc.Execute(context.Background(), "pk1", "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Status != run.StatusFailed {
		t.Fatalf("expected failed, got %s", r.Status)
	}
	if !strings.Contains(r.Output, "connection refused") {
		t.Fatalf("expected transport error in output, got %q", r.Output)
	}
}

func TestExecutorServiceExecuteUnknownPacket(t *testing.T) {
	svc := NewExecutorService(&mockStore{}, &mockAgent{}, &mockBroadcaster{}, testAgentConfig())

	_, err := svc.Execute(context.Background(), "ghost", "proj-1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExecutorServiceSecondExecuteLoses(t *testing.T) {
	store := singlePacketStore()
	agent := &mockAgent{release: make(chan struct{}), started: make(chan string, 1)}
	svc := NewExecutorService(store, agent, &mockBroadcaster{}, testAgentConfig())

	done := make(chan execOut, 1)
	go func() {
		r, err := svc.Execute(context.Background(), "pk1", "proj-1")
		done <- execOut{r, err}
	}()
	<-agent.started

	_, err := svc.Execute(context.Background(), "pk1", "proj-1")
	if !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	close(agent.release)
	out := <-done
	if out.err != nil {
		t.Fatalf("winner failed: %v", out.err)
	}
	if out.r.Status != run.StatusCompleted {
		t.Fatalf("expected winner completed, got %s", out.r.Status)
	}
	if out.r.Iteration != 1 {
		t.Fatalf("the losing attempt must not consume an iteration, got %d", out.r.Iteration)
	}
}

func TestExecutorServiceIterationsMonotone(t *testing.T) {
	store := singlePacketStore()
	agent := &mockAgent{}
	svc := NewExecutorService(store, agent, &mockBroadcaster{}, testAgentConfig())

	r1, err := svc.Execute(context.Background(), "pk1", "proj-1")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	agent.runErr = errors.New("agent crashed")
	r2, err := svc.Execute(context.Background(), "pk1", "proj-1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	agent.runErr = nil
	r3, err := svc.Execute(context.Background(), "pk1", "proj-1")
	if err != nil {
		t.Fatalf("third run: %v", err)
	}

	if r1.Iteration != 1 || r2.Iteration != 2 || r3.Iteration != 3 {
		t.Fatalf("expected iterations 1,2,3, got %d,%d,%d", r1.Iteration, r2.Iteration, r3.Iteration)
	}
	if r2.Status != run.StatusFailed {
		t.Fatalf("expected second run failed, got %s", r2.Status)
	}

	history, err := store.ListRuns(context.Background(), "pk1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 runs in the ledger, got %d", len(history))
	}
}

func TestExecutorServiceStopCancelsRun(t *testing.T) {
	store := singlePacketStore()
	agent := &mockAgent{release: make(chan struct{}), started: make(chan string, 1)}
	svc := NewExecutorService(store, agent, &mockBroadcaster{}, testAgentConfig())

	done := make(chan execOut, 1)
	go func() {
		r, err := svc.Execute(context.Background(), "pk1", "proj-1")
		done <- execOut{r, err}
	}()
	<-agent.started

	if err := svc.Stop(context.Background(), "pk1"); err != nil {
		t.Fatalf("stop: %v", err)
	}

	out := <-done
	if out.err != nil {
		t.Fatalf("execute after stop: %v", out.err)
	}
	if out.r.Status != run.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", out.r.Status)
	}
	if got := store.packetStatus(t, "pk1"); got != packet.StatusQueued {
		t.Fatalf("a cancelled packet goes back to queued, got %s", got)
	}
	cancels := agent.cancelled()
	if len(cancels) == 0 || cancels[0] != out.r.ID {
		t.Fatalf("expected agent cancel for run %s, got %v", out.r.ID, cancels)
	}
}

func TestExecutorServiceStopWithoutActiveRun(t *testing.T) {
	svc := NewExecutorService(singlePacketStore(), &mockAgent{}, &mockBroadcaster{}, testAgentConfig())

	err := svc.Stop(context.Background(), "pk1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExecutorServiceStopSettlesOrphanRun(t *testing.T) {
	// A running run without an in-process execution, e.g. left over from a
	// crash. Stop settles it directly.
	store := &mockStore{
		packets: []packet.Packet{{ID: "pk1", ProjectID: "proj-1", Status: packet.StatusInProgress}},
		runs: []run.Run{
			{ID: "run-9", PacketID: "pk1", ProjectID: "proj-1", Iteration: 3, Status: run.StatusRunning, StartedAt: time.Now()},
		},
	}
	agent := &mockAgent{}
	svc := NewExecutorService(store, agent, &mockBroadcaster{}, testAgentConfig())

	if err := svc.Stop(context.Background(), "pk1"); err != nil {
		t.Fatalf("stop: %v", err)
	}

	r, err := store.GetRun(context.Background(), "run-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Status != run.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", r.Status)
	}
	if got := store.packetStatus(t, "pk1"); got != packet.StatusQueued {
		t.Fatalf("expected packet queued, got %s", got)
	}
	if cancels := agent.cancelled(); len(cancels) != 1 || cancels[0] != "run-9" {
		t.Fatalf("expected agent cancel for run-9, got %v", cancels)
	}
}

func TestExecutorServiceTimeoutIsFailure(t *testing.T) {
	store := singlePacketStore()
	agent := &mockAgent{release: make(chan struct{})} // never released
	cfg := testAgentConfig()
	cfg.RunTimeout = 30 * time.Millisecond
	svc := NewExecutorService(store, agent, &mockBroadcaster{}, cfg)

	r, err := svc.Execute(context.Background(), "pk1", "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Status != run.StatusFailed {
		t.Fatalf("a timeout is an ordinary failure, got %s", r.Status)
	}
	if got := store.packetStatus(t, "pk1"); got != packet.StatusFailed {
		t.Fatalf("expected packet failed, got %s", got)
	}
}

func TestExecutorServiceStartExecutionReturnsRunning(t *testing.T) {
	store := singlePacketStore()
	agent := &mockAgent{release: make(chan struct{}), started: make(chan string, 1)}
	svc := NewExecutorService(store, agent, &mockBroadcaster{}, testAgentConfig())

	r, err := svc.StartExecution(context.Background(), "pk1", "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Status != run.StatusRunning {
		t.Fatalf("expected running, got %s", r.Status)
	}

	<-agent.started
	close(agent.release)

	waitFor(t, 2*time.Second, func() bool {
		stored, err := store.GetRun(context.Background(), r.ID)
		return err == nil && stored.Status == run.StatusCompleted
	})
	if got := store.packetStatus(t, "pk1"); got != packet.StatusCompleted {
		t.Fatalf("expected packet completed, got %s", got)
	}
}

func TestExecutorServiceBeginRollsBackOnStatusError(t *testing.T) {
	store := singlePacketStore()
	store.setStatusErr = errors.New("db gone")
	svc := NewExecutorService(store, &mockAgent{}, &mockBroadcaster{}, testAgentConfig())

	_, err := svc.Execute(context.Background(), "pk1", "proj-1")
	if err == nil {
		t.Fatal("expected error")
	}

	// The opened run must not stay running, or every later execute would
	// lose against it.
	store.setStatusErr = nil
	if _, err := store.GetActiveRun(context.Background(), "pk1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no active run left behind, got %v", err)
	}
}
