package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/packetmill/packetmill/internal/domain"
	"github.com/packetmill/packetmill/internal/domain/packet"
	"github.com/packetmill/packetmill/internal/domain/session"
	"github.com/packetmill/packetmill/internal/port/cache"
	"github.com/packetmill/packetmill/internal/port/sessionapi"
)

var _ sessionapi.Client = (*mockSessionClient)(nil)

type mockSessionClient struct {
	session *session.ExecutionSession
	err     error
	calls   int
}

func (c *mockSessionClient) GetSession(_ context.Context, projectID string) (*session.ExecutionSession, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if c.session == nil {
		return nil, fmt.Errorf("session for project %s: %w", projectID, domain.ErrNotFound)
	}
	return c.session, nil
}

var _ cache.Cache = (*mapCache)(nil)

type mapCache struct {
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func TestReconcilerServiceNoSession(t *testing.T) {
	store := &mockStore{}
	svc := NewReconcilerService(&mockSessionClient{}, store, nil, 0)

	state, err := svc.Reconcile(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("an idle project is not an error: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state without a session, got %+v", state)
	}
}

func TestReconcilerServiceActiveSession(t *testing.T) {
	store := &mockStore{packets: []packet.Packet{
		{ID: "pkA", ProjectID: "proj-1", Status: packet.StatusCompleted},
		{ID: "pkB", ProjectID: "proj-1", Status: packet.StatusInProgress},
		{ID: "pkC", ProjectID: "proj-1", Status: packet.StatusQueued},
	}}
	sessions := &mockSessionClient{session: &session.ExecutionSession{
		ID:        "sess-7",
		ProjectID: "proj-1",
		Status:    session.StatusRunning,
		Progress:  session.Progress{Current: 1, Total: 3},
		Events: []session.Event{
			{Seq: 1, Kind: "packet_started", PacketID: "pkA"},
			{Seq: 2, Kind: "packet_completed", PacketID: "pkA"},
		},
		CurrentPacketIndex: 1,
	}}
	svc := NewReconcilerService(sessions, store, nil, 0)

	state, err := svc.Reconcile(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.Active {
		t.Fatal("expected a running session to reconcile as active")
	}
	if state.SessionID != "sess-7" || state.CurrentPacketIndex != 1 {
		t.Fatalf("session identity lost: %+v", state)
	}
	if state.Progress.Current != 1 || state.Progress.Total != 3 {
		t.Fatalf("expected progress 1/3, got %+v", state.Progress)
	}
	if len(state.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(state.Events))
	}
	if state.PacketStatuses["pkB"] != string(packet.StatusInProgress) {
		t.Fatalf("expected pkB in_progress, got %+v", state.PacketStatuses)
	}

	// Reconciling is strictly read-only.
	if store.startRunCalls != 0 || store.setStatusCalls != 0 {
		t.Fatalf("reconcile must not write: %d starts, %d status changes", store.startRunCalls, store.setStatusCalls)
	}
}

func TestReconcilerServiceTerminalSession(t *testing.T) {
	sessions := &mockSessionClient{session: &session.ExecutionSession{
		ID:        "sess-8",
		ProjectID: "proj-1",
		Status:    session.StatusCompleted,
		Progress:  session.Progress{Current: 3, Total: 3},
	}}
	svc := NewReconcilerService(sessions, &mockStore{}, nil, 0)

	state, err := svc.Reconcile(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state == nil || state.Active {
		t.Fatalf("a finished session still reconciles, inactive: %+v", state)
	}
	if state.Progress.Current != 3 {
		t.Fatalf("expected final progress visible, got %+v", state.Progress)
	}
}

func TestReconcilerServiceCacheHit(t *testing.T) {
	sessions := &mockSessionClient{session: &session.ExecutionSession{
		ID:        "sess-9",
		ProjectID: "proj-1",
		Status:    session.StatusRunning,
	}}
	svc := NewReconcilerService(sessions, &mockStore{}, newMapCache(), time.Minute)

	first, err := svc.Reconcile(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Reconcile(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sessions.calls != 1 {
		t.Fatalf("expected the second reconcile served from cache, backend hit %d times", sessions.calls)
	}
	if second.SessionID != first.SessionID || second.Active != first.Active {
		t.Fatalf("cached state diverges: %+v vs %+v", first, second)
	}
}

func TestReconcilerServiceBackendError(t *testing.T) {
	sessions := &mockSessionClient{err: errors.New("session backend unreachable")}
	svc := NewReconcilerService(sessions, &mockStore{}, nil, 0)

	_, err := svc.Reconcile(context.Background(), "proj-1")
	if err == nil {
		t.Fatal("expected backend error to propagate")
	}
}
