package messagequeue

import "github.com/packetmill/packetmill/internal/domain/packet"

// RunEventPayload is the schema for runs.started, runs.completed and
// runs.cancelled messages.
type RunEventPayload struct {
	RunID     string `json:"run_id"`
	PacketID  string `json:"packet_id"`
	ProjectID string `json:"project_id"`
	Iteration int    `json:"iteration"`
	Status    string `json:"status"`
}

// BatchStartedPayload is the schema for batch.started messages.
type BatchStartedPayload struct {
	ProjectID   string `json:"project_id"`
	Packets     int    `json:"packets"`
	Concurrency int    `json:"concurrency"`
}

// BatchProgressPayload is the schema for batch.progress messages. Current
// counts terminal outcomes, not dispatches.
type BatchProgressPayload struct {
	ProjectID string `json:"project_id"`
	PacketID  string `json:"packet_id"`
	Status    string `json:"status"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
}

// BatchDonePayload is the schema for batch.completed messages.
type BatchDonePayload struct {
	ProjectID string `json:"project_id"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
	Skipped   int    `json:"skipped"`
}

// QueueChangedPayload is the schema for queue.changed messages.
type QueueChangedPayload struct {
	Action    string `json:"action"` // "added" or "removed"
	ProjectID string `json:"project_id"`
	Length    int    `json:"length"`
}

// AgentWorkPayload is the schema for agent.work messages: one packet handed
// to a worker, answered once on the reply inbox.
type AgentWorkPayload struct {
	RunID   string         `json:"run_id"`
	Packet  *packet.Packet `json:"packet"`
	WorkDir string         `json:"work_dir"`
}

// AgentCancelPayload is the schema for agent.cancel messages.
type AgentCancelPayload struct {
	RunID string `json:"run_id"`
}
