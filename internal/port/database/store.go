// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/packetmill/packetmill/internal/domain/packet"
	"github.com/packetmill/packetmill/internal/domain/queue"
	"github.com/packetmill/packetmill/internal/domain/run"
	"github.com/packetmill/packetmill/internal/domain/token"
)

// Store is the port interface for durable orchestrator state. It is split in
// two halves by ownership: packets (current status, single source of truth)
// and runs (append-only history per packet), plus the execution queue and the
// control-surface token tables.
type Store interface {
	// Packets
	ListPackets(ctx context.Context, projectID string) ([]packet.Packet, error)
	GetPacket(ctx context.Context, id string) (*packet.Packet, error)
	CreatePacket(ctx context.Context, projectID string, req packet.CreateRequest) (*packet.Packet, error)
	// UpdatePacket applies descriptive edits only; it never changes status.
	UpdatePacket(ctx context.Context, id string, req packet.UpdateRequest) (*packet.Packet, error)
	// SetPacketStatus is the single path by which execution results change
	// a packet's state.
	SetPacketStatus(ctx context.Context, id string, status packet.Status) error
	// DeletePacket cascades to the packet's runs. It fails with
	// domain.ErrPacketBusy while a run is active.
	DeletePacket(ctx context.Context, id string) error

	// Runs
	// StartRun allocates the next iteration for the packet and inserts a
	// running run in one atomic statement. It fails with
	// domain.ErrAlreadyRunning when a running run exists.
	StartRun(ctx context.Context, packetID, projectID string) (*run.Run, error)
	GetRun(ctx context.Context, id string) (*run.Run, error)
	// GetActiveRun returns the packet's running run, or domain.ErrNotFound.
	GetActiveRun(ctx context.Context, packetID string) (*run.Run, error)
	// FinishRun moves a running run to the given terminal status. Finishing
	// an already-terminal run is a no-op: the stored run is returned with
	// changed=false.
	FinishRun(ctx context.Context, id string, status run.Status, outcome run.Outcome) (r *run.Run, changed bool, err error)
	// AttachRunFeedback sets rating/comment on a terminal run.
	AttachRunFeedback(ctx context.Context, id string, fb run.FeedbackRequest) error
	// ListRuns returns the packet's runs ordered by iteration ascending.
	ListRuns(ctx context.Context, packetID string) ([]run.Run, error)
	LatestRun(ctx context.Context, packetID string) (*run.Run, error)

	// Execution queue
	// Enqueue is idempotent by project: a duplicate reports added=false and
	// the existing position instead of inserting.
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (*queue.EnqueueResult, error)
	// DequeueNext removes and returns the oldest entry, or nil when the
	// queue is empty.
	DequeueNext(ctx context.Context) (*queue.Entry, error)
	ListQueue(ctx context.Context) ([]queue.Entry, error)
	RemoveFromQueue(ctx context.Context, projectID string) error

	// API tokens
	CreateToken(ctx context.Context, t *token.APIToken) error
	GetTokenByHash(ctx context.Context, keyHash string) (*token.APIToken, error)
	ListTokens(ctx context.Context) ([]token.APIToken, error)
	DeleteToken(ctx context.Context, id string) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}
