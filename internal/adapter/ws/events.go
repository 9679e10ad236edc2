package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventPacketStatus   = "packet.status"
	EventRunStarted     = "run.started"
	EventRunCompleted   = "run.completed"
	EventRunCancelled   = "run.cancelled"
	EventBatchProgress  = "batch.progress"
	EventBatchCompleted = "batch.completed"
	EventQueueChanged   = "queue.changed"
)

// PacketStatusEvent is broadcast when a packet's status changes.
type PacketStatusEvent struct {
	PacketID  string `json:"packet_id"`
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
}

// RunEvent is broadcast when a run starts or reaches a terminal state.
type RunEvent struct {
	RunID     string `json:"run_id"`
	PacketID  string `json:"packet_id"`
	ProjectID string `json:"project_id"`
	Iteration int    `json:"iteration"`
	Status    string `json:"status"`
}

// BatchProgressEvent is broadcast each time a packet in a batch finishes.
type BatchProgressEvent struct {
	ProjectID string `json:"project_id"`
	PacketID  string `json:"packet_id"`
	Status    string `json:"status"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
}

// BatchCompletedEvent is broadcast when a batch has no packets left.
type BatchCompletedEvent struct {
	ProjectID string `json:"project_id"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
	Skipped   int    `json:"skipped"`
}

// QueueChangedEvent is broadcast when the execution queue gains or loses an entry.
type QueueChangedEvent struct {
	Action    string `json:"action"` // "added" or "removed"
	ProjectID string `json:"project_id"`
	Length    int    `json:"length"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
