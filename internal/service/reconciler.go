package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	pmotel "github.com/packetmill/packetmill/internal/adapter/otel"
	"github.com/packetmill/packetmill/internal/domain"
	"github.com/packetmill/packetmill/internal/domain/session"
	"github.com/packetmill/packetmill/internal/port/cache"
	"github.com/packetmill/packetmill/internal/port/database"
	"github.com/packetmill/packetmill/internal/port/sessionapi"
)

// ReconcilerService rebuilds the local view of an in-flight execution from
// the remote session record. Strictly read-only: reconciling never starts,
// stops, or retries anything, no matter what state it finds.
type ReconcilerService struct {
	sessions sessionapi.Client
	store    database.Store
	cache    cache.Cache
	ttl      time.Duration
}

// NewReconcilerService creates a new ReconcilerService. The cache is
// optional; with one attached, repeated reconciles inside the TTL are served
// locally instead of hitting the session backend.
func NewReconcilerService(sessions sessionapi.Client, store database.Store, c cache.Cache, ttl time.Duration) *ReconcilerService {
	return &ReconcilerService{sessions: sessions, store: store, cache: c, ttl: ttl}
}

// Reconcile fetches the project's authoritative session and returns the
// reconstructed local state. No session at all yields (nil, nil): a client
// that reconnects into an idle project is not an error. A terminal session
// comes back with Active=false so the caller can render the final progress.
func (s *ReconcilerService) Reconcile(ctx context.Context, projectID string) (*session.LocalState, error) {
	ctx, span := pmotel.StartReconcileSpan(ctx, projectID)
	defer span.End()

	key := "session:" + projectID
	if state, ok := s.cached(ctx, key); ok {
		return state, nil
	}

	sess, err := s.sessions.GetSession(ctx, projectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	state := &session.LocalState{
		SessionID:          sess.ID,
		ProjectID:          sess.ProjectID,
		Active:             sess.Status == session.StatusRunning,
		Progress:           sess.Progress,
		Events:             sess.Events,
		CurrentPacketIndex: sess.CurrentPacketIndex,
	}

	packets, err := s.store.ListPackets(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(packets) > 0 {
		state.PacketStatuses = make(map[string]string, len(packets))
		for i := range packets {
			state.PacketStatuses[packets[i].ID] = string(packets[i].Status)
		}
	}

	s.remember(ctx, key, state)
	return state, nil
}

func (s *ReconcilerService) cached(ctx context.Context, key string) (*session.LocalState, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var state session.LocalState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, false
	}
	return &state, true
}

func (s *ReconcilerService) remember(ctx context.Context, key string, state *session.LocalState) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		slog.Warn("cache reconciled session", "key", key, "error", err)
	}
}
