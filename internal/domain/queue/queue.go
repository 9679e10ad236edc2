// Package queue defines the cross-project execution queue entry.
package queue

import (
	"errors"
	"time"

	"github.com/packetmill/packetmill/internal/domain/packet"
)

// Entry is a project waiting for batch execution. The packet list is a
// snapshot taken at enqueue time; it is deliberately not kept live, and
// callers refresh it if packets changed since.
type Entry struct {
	ProjectID   string          `json:"project_id"`
	ProjectName string          `json:"project_name"`
	Packets     []packet.Packet `json:"packets,omitempty"`
	Repo        string          `json:"repo,omitempty"`
	Priority    int64           `json:"priority"`
	AddedAt     time.Time       `json:"added_at"`
}

// EnqueueRequest adds a project to the execution queue.
type EnqueueRequest struct {
	ProjectID   string          `json:"project_id"`
	ProjectName string          `json:"project_name"`
	Packets     []packet.Packet `json:"packets,omitempty"`
	Repo        string          `json:"repo,omitempty"`
}

// Validate checks that the EnqueueRequest has all required fields.
func (r *EnqueueRequest) Validate() error {
	if r.ProjectID == "" {
		return errors.New("project_id is required")
	}
	return nil
}

// EnqueueResult reports whether the entry was added. A duplicate project is
// not an error: Added is false and Position points at the existing entry.
type EnqueueResult struct {
	Added    bool `json:"added"`
	Position int  `json:"position"`
}
