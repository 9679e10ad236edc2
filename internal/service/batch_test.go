package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/packetmill/packetmill/internal/adapter/ws"
	"github.com/packetmill/packetmill/internal/config"
	"github.com/packetmill/packetmill/internal/domain"
	"github.com/packetmill/packetmill/internal/domain/packet"
	"github.com/packetmill/packetmill/internal/domain/run"
	agentport "github.com/packetmill/packetmill/internal/port/agent"
)

func threePacketStore() *mockStore {
	return &mockStore{packets: []packet.Packet{
		{ID: "pkA", ProjectID: "proj-1", Status: packet.StatusQueued},
		{ID: "pkB", ProjectID: "proj-1", Status: packet.StatusQueued},
		{ID: "pkC", ProjectID: "proj-1", Status: packet.StatusQueued},
	}}
}

func newBatchService(store *mockStore, agent *mockAgent, cfg *config.Executor) *BatchService {
	exec := NewExecutorService(store, agent, &mockBroadcaster{}, testAgentConfig())
	return NewBatchService(store, exec, &mockBroadcaster{}, cfg)
}

func defaultExecutorConfig() *config.Executor {
	return &config.Executor{DefaultConcurrency: 1, MaxConcurrency: 8}
}

func TestBatchServicePartialFailure(t *testing.T) {
	store := threePacketStore()
	agent := &mockAgent{results: map[string]*agentport.Result{
		"pkB": {Success: false, Output: "build broke"},
	}}
	exec := NewExecutorService(store, agent, &mockBroadcaster{}, testAgentConfig())
	hub := &mockBroadcaster{}
	svc := NewBatchService(store, exec, hub, defaultExecutorConfig())

	res, err := svc.ExecuteBatch(context.Background(), "proj-1", run.BatchRequest{
		PacketIDs:   []string{"pkA", "pkB", "pkC"},
		Concurrency: 1,
	})
	if err != nil {
		t.Fatalf("a failing packet must not abort the batch: %v", err)
	}

	if len(res.Results) != 3 {
		t.Fatalf("expected every packet itemized, got %d", len(res.Results))
	}
	if res.Succeeded != 2 || res.Failed != 1 || res.Cancelled != 0 || res.Skipped != 0 {
		t.Fatalf("expected 2/1/0/0, got %d/%d/%d/%d", res.Succeeded, res.Failed, res.Cancelled, res.Skipped)
	}
	if res.Results["pkB"].Run == nil || res.Results["pkB"].Run.Status != run.StatusFailed {
		t.Fatalf("expected pkB failed, got %+v", res.Results["pkB"])
	}
	resA, resC := res.Results["pkA"], res.Results["pkC"]
	if !resA.Succeeded() || !resC.Succeeded() {
		t.Fatal("expected pkA and pkC to succeed around the failure")
	}

	// Sequential batches run in the order given.
	got := agent.invocations()
	want := []string{"pkA", "pkB", "pkC"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected dispatch order %v, got %v", want, got)
		}
	}

	if store.packetStatus(t, "pkB") != packet.StatusFailed {
		t.Fatal("expected pkB marked failed")
	}
	if store.packetStatus(t, "pkA") != packet.StatusCompleted || store.packetStatus(t, "pkC") != packet.StatusCompleted {
		t.Fatal("expected pkA and pkC marked completed")
	}

	if res.Progress.Current != 3 || res.Progress.Total != 3 {
		t.Fatalf("expected progress 3/3, got %d/%d", res.Progress.Current, res.Progress.Total)
	}
	if hub.count(ws.EventBatchProgress) != 3 {
		t.Fatalf("expected 3 progress events, got %d", hub.count(ws.EventBatchProgress))
	}
	if hub.count(ws.EventBatchCompleted) != 1 {
		t.Fatalf("expected 1 completed event, got %d", hub.count(ws.EventBatchCompleted))
	}
}

func TestBatchServiceConcurrencyBound(t *testing.T) {
	store := &mockStore{packets: []packet.Packet{
		{ID: "pk1", ProjectID: "proj-1", Status: packet.StatusQueued},
		{ID: "pk2", ProjectID: "proj-1", Status: packet.StatusQueued},
		{ID: "pk3", ProjectID: "proj-1", Status: packet.StatusQueued},
		{ID: "pk4", ProjectID: "proj-1", Status: packet.StatusQueued},
		{ID: "pk5", ProjectID: "proj-1", Status: packet.StatusQueued},
	}}
	agent := &mockAgent{release: make(chan struct{}), started: make(chan string, 5)}
	svc := newBatchService(store, agent, defaultExecutorConfig())

	done := make(chan *run.BatchResult, 1)
	go func() {
		res, _ := svc.ExecuteBatch(context.Background(), "proj-1", run.BatchRequest{
			PacketIDs:   []string{"pk1", "pk2", "pk3", "pk4", "pk5"},
			Concurrency: 2,
		})
		done <- res
	}()

	<-agent.started
	<-agent.started
	if got := agent.inFlight.Load(); got != 2 {
		t.Fatalf("expected exactly 2 in flight, got %d", got)
	}

	close(agent.release)
	res := <-done
	if res.Succeeded != 5 {
		t.Fatalf("expected 5 succeeded, got %d", res.Succeeded)
	}
	if hw := agent.highWater.Load(); hw != 2 {
		t.Fatalf("expected concurrency high-water 2, got %d", hw)
	}
}

func TestBatchServiceSecondBatchRejected(t *testing.T) {
	store := threePacketStore()
	agent := &mockAgent{release: make(chan struct{}), started: make(chan string, 3)}
	svc := newBatchService(store, agent, defaultExecutorConfig())

	done := make(chan *run.BatchResult, 1)
	go func() {
		res, _ := svc.ExecuteBatch(context.Background(), "proj-1", run.BatchRequest{
			PacketIDs: []string{"pkA", "pkB", "pkC"},
		})
		done <- res
	}()
	<-agent.started

	_, err := svc.ExecuteBatch(context.Background(), "proj-1", run.BatchRequest{PacketIDs: []string{"pkA"}})
	if !errors.Is(err, domain.ErrBatchActive) {
		t.Fatalf("expected ErrBatchActive, got %v", err)
	}

	close(agent.release)
	res := <-done
	if res.Succeeded != 3 {
		t.Fatalf("expected first batch to finish cleanly, got %d succeeded", res.Succeeded)
	}

	// The slot frees once the batch is done; pkA is now completed and skips.
	res2, err := svc.ExecuteBatch(context.Background(), "proj-1", run.BatchRequest{PacketIDs: []string{"pkA"}})
	if err != nil {
		t.Fatalf("expected slot freed after completion: %v", err)
	}
	if res2.Skipped != 1 {
		t.Fatalf("expected completed packet skipped, got %+v", res2)
	}
}

func TestBatchServiceSkipsCompleted(t *testing.T) {
	store := &mockStore{packets: []packet.Packet{
		{ID: "pkA", ProjectID: "proj-1", Status: packet.StatusCompleted},
		{ID: "pkB", ProjectID: "proj-1", Status: packet.StatusQueued},
	}}
	agent := &mockAgent{}
	svc := newBatchService(store, agent, defaultExecutorConfig())

	res, err := svc.ExecuteBatch(context.Background(), "proj-1", run.BatchRequest{PacketIDs: []string{"pkA", "pkB"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped != 1 || res.Succeeded != 1 {
		t.Fatalf("expected 1 skipped and 1 succeeded, got %d/%d", res.Skipped, res.Succeeded)
	}
	if invs := agent.invocations(); len(invs) != 1 || invs[0] != "pkB" {
		t.Fatalf("completed packets must not reach the agent, got %v", invs)
	}
	skipped := res.Results["pkA"]
	if skipped.Run != nil || skipped.Err != "" {
		t.Fatalf("a skip carries neither run nor error, got %+v", skipped)
	}
}

func TestBatchServiceCancelLeavesUndispatchedQueued(t *testing.T) {
	store := threePacketStore()
	agent := &mockAgent{release: make(chan struct{}), started: make(chan string, 3)}
	svc := newBatchService(store, agent, defaultExecutorConfig())

	done := make(chan *run.BatchResult, 1)
	go func() {
		res, _ := svc.ExecuteBatch(context.Background(), "proj-1", run.BatchRequest{
			PacketIDs:   []string{"pkA", "pkB", "pkC"},
			Concurrency: 1,
		})
		done <- res
	}()
	<-agent.started // pkA is running, pkB and pkC are not dispatched yet

	if err := svc.CancelBatch(context.Background(), "proj-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	res := <-done
	if res.Cancelled != 3 {
		t.Fatalf("expected all 3 cancelled, got %d (%+v)", res.Cancelled, res)
	}
	running := res.Results["pkA"]
	if running.Run == nil || running.Run.Status != run.StatusCancelled {
		t.Fatalf("expected the running packet's run cancelled, got %+v", running)
	}
	for _, id := range []string{"pkB", "pkC"} {
		if res.Results[id].Err != batchCancelledMsg {
			t.Fatalf("expected %s marked %q, got %+v", id, batchCancelledMsg, res.Results[id])
		}
		history, err := store.ListRuns(context.Background(), id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 0 {
			t.Fatalf("undispatched packet %s must not gain a run, got %d", id, len(history))
		}
	}

	// Every packet is re-runnable afterwards.
	for _, id := range []string{"pkA", "pkB", "pkC"} {
		if got := store.packetStatus(t, id); got != packet.StatusQueued {
			t.Fatalf("expected %s queued after cancel, got %s", id, got)
		}
	}
}

func TestBatchServiceCancelWithoutActiveBatch(t *testing.T) {
	svc := newBatchService(threePacketStore(), &mockAgent{}, defaultExecutorConfig())

	err := svc.CancelBatch(context.Background(), "proj-1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBatchServiceMissingPacketIsFailure(t *testing.T) {
	store := &mockStore{packets: []packet.Packet{
		{ID: "pkA", ProjectID: "proj-1", Status: packet.StatusQueued},
		{ID: "pkC", ProjectID: "proj-1", Status: packet.StatusQueued},
	}}
	svc := newBatchService(store, &mockAgent{}, defaultExecutorConfig())

	res, err := svc.ExecuteBatch(context.Background(), "proj-1", run.BatchRequest{
		PacketIDs:   []string{"pkA", "pkB", "pkC"},
		Concurrency: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Succeeded != 2 || res.Failed != 1 {
		t.Fatalf("expected 2 succeeded and 1 failed, got %d/%d", res.Succeeded, res.Failed)
	}
	if res.Results["pkB"].Err == "" {
		t.Fatal("expected the missing packet's error recorded")
	}
}

func TestBatchServiceValidation(t *testing.T) {
	svc := newBatchService(threePacketStore(), &mockAgent{}, defaultExecutorConfig())

	if _, err := svc.ExecuteBatch(context.Background(), "proj-1", run.BatchRequest{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty packet list, got %v", err)
	}
	if _, err := svc.ExecuteBatch(context.Background(), "", run.BatchRequest{PacketIDs: []string{"pkA"}}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty project, got %v", err)
	}
	req := run.BatchRequest{PacketIDs: []string{"pkA"}, Concurrency: -1}
	if _, err := svc.ExecuteBatch(context.Background(), "proj-1", req); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for negative concurrency, got %v", err)
	}
}

func TestBatchServiceStartBatchProgress(t *testing.T) {
	store := &mockStore{packets: []packet.Packet{
		{ID: "pkA", ProjectID: "proj-1", Status: packet.StatusQueued},
		{ID: "pkB", ProjectID: "proj-1", Status: packet.StatusQueued},
	}}
	agent := &mockAgent{release: make(chan struct{}), started: make(chan string, 2)}
	svc := newBatchService(store, agent, defaultExecutorConfig())

	err := svc.StartBatch(context.Background(), "proj-1", run.BatchRequest{PacketIDs: []string{"pkA", "pkB"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Registration is synchronous, so the batch is visible immediately.
	st := svc.Progress("proj-1")
	if !st.Active || st.Progress.Total != 2 {
		t.Fatalf("expected active batch of 2, got %+v", st)
	}

	<-agent.started
	close(agent.release)

	waitFor(t, 2*time.Second, func() bool { return !svc.Progress("proj-1").Active })
	if got := store.packetStatus(t, "pkB"); got != packet.StatusCompleted {
		t.Fatalf("expected pkB completed, got %s", got)
	}
}

func TestBatchServiceEffectiveConcurrency(t *testing.T) {
	svc := newBatchService(&mockStore{}, &mockAgent{}, &config.Executor{DefaultConcurrency: 3, MaxConcurrency: 4})

	cases := []struct {
		requested, packets, want int
	}{
		{0, 10, 3}, // default
		{2, 10, 2}, // explicit
		{9, 10, 4}, // capped at max
		{4, 2, 2},  // never more workers than packets
		{1, 10, 1}, // sequential
	}
	for _, tc := range cases {
		if got := svc.effectiveConcurrency(tc.requested, tc.packets); got != tc.want {
			t.Fatalf("effectiveConcurrency(%d, %d) = %d, want %d", tc.requested, tc.packets, got, tc.want)
		}
	}

	unbounded := newBatchService(&mockStore{}, &mockAgent{}, &config.Executor{})
	if got := unbounded.effectiveConcurrency(0, 5); got != 1 {
		t.Fatalf("expected floor of 1, got %d", got)
	}
}
