package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	pmotel "github.com/packetmill/packetmill/internal/adapter/otel"
	"github.com/packetmill/packetmill/internal/adapter/ws"
	"github.com/packetmill/packetmill/internal/domain"
	"github.com/packetmill/packetmill/internal/domain/queue"
	"github.com/packetmill/packetmill/internal/port/broadcast"
	"github.com/packetmill/packetmill/internal/port/database"
	"github.com/packetmill/packetmill/internal/port/messagequeue"
)

// QueueService manages the cross-project FIFO of projects waiting for batch
// execution. It only brokers the enqueue/dequeue contract; whoever drains the
// queue decides what to do with an entry.
type QueueService struct {
	store   database.Store
	hub     broadcast.Broadcaster
	mq      messagequeue.Queue
	metrics *pmotel.Metrics
}

// NewQueueService creates a new QueueService.
func NewQueueService(store database.Store, hub broadcast.Broadcaster) *QueueService {
	return &QueueService{store: store, hub: hub}
}

// SetMessageQueue enables queue-event publishing to NATS.
func (s *QueueService) SetMessageQueue(mq messagequeue.Queue) {
	s.mq = mq
}

// SetMetrics enables the queue depth gauge.
func (s *QueueService) SetMetrics(m *pmotel.Metrics) {
	s.metrics = m
}

// Enqueue adds a project to the queue. Idempotent by project: a project that
// is already queued reports added=false with its existing position, and no
// event is emitted.
func (s *QueueService) Enqueue(ctx context.Context, req queue.EnqueueRequest) (*queue.EnqueueResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	res, err := s.store.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}

	if res.Added {
		if s.metrics != nil {
			s.metrics.QueueDepth.Add(ctx, 1)
		}
		// A new entry lands at the tail, so its position is the queue length.
		s.announce(ctx, "added", req.ProjectID, res.Position)
		slog.Info("project enqueued", "project_id", req.ProjectID, "position", res.Position)
	}
	return res, nil
}

// Next removes and returns the oldest entry, or nil when the queue is empty.
func (s *QueueService) Next(ctx context.Context) (*queue.Entry, error) {
	entry, err := s.store.DequeueNext(ctx)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	if s.metrics != nil {
		s.metrics.QueueDepth.Add(ctx, -1)
	}
	s.announce(ctx, "removed", entry.ProjectID, s.length(ctx))
	slog.Info("project dequeued", "project_id", entry.ProjectID)
	return entry, nil
}

// List returns all queued entries in FIFO order.
func (s *QueueService) List(ctx context.Context) ([]queue.Entry, error) {
	return s.store.ListQueue(ctx)
}

// Remove drops a project from the queue regardless of position.
func (s *QueueService) Remove(ctx context.Context, projectID string) error {
	if err := s.store.RemoveFromQueue(ctx, projectID); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.QueueDepth.Add(ctx, -1)
	}
	s.announce(ctx, "removed", projectID, s.length(ctx))
	slog.Info("project removed from queue", "project_id", projectID)
	return nil
}

func (s *QueueService) announce(ctx context.Context, action, projectID string, length int) {
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventQueueChanged, ws.QueueChangedEvent{
			Action:    action,
			ProjectID: projectID,
			Length:    length,
		})
	}
	if s.mq == nil {
		return
	}
	data, err := json.Marshal(messagequeue.QueueChangedPayload{
		Action:    action,
		ProjectID: projectID,
		Length:    length,
	})
	if err != nil {
		return
	}
	if err := s.mq.Publish(ctx, messagequeue.SubjectQueueChanged, data); err != nil {
		slog.Warn("publish queue event", "error", err)
	}
}

// length is a best-effort read for event payloads; -1 when unavailable.
func (s *QueueService) length(ctx context.Context) int {
	entries, err := s.store.ListQueue(ctx)
	if err != nil {
		return -1
	}
	return len(entries)
}
