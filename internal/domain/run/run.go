// Package run defines the packet-run domain entity: one execution attempt
// of a work packet, recorded append-only per packet.
package run

import (
	"errors"
	"time"
)

// Status represents the current state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ValidStatuses enumerates all valid run statuses.
var ValidStatuses = map[Status]bool{
	StatusRunning:   true,
	StatusCompleted: true,
	StatusFailed:    true,
	StatusCancelled: true,
}

// IsTerminal reports whether the status is a final state. Terminal runs are
// immutable except for feedback (rating/comment).
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Rating is human feedback attached to a finished run.
type Rating string

const (
	RatingUp   Rating = "up"
	RatingDown Rating = "down"
)

// Run represents a single execution attempt of a packet. Iteration is 1-based
// and monotone per packet: a new run always gets count-of-prior-runs + 1, and
// numbers are never reused, cancelled attempts included.
type Run struct {
	ID          string     `json:"id"`
	PacketID    string     `json:"packet_id"`
	ProjectID   string     `json:"project_id"`
	Iteration   int        `json:"iteration"`
	Status      Status     `json:"status"`
	Output      string     `json:"output,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	Rating      Rating     `json:"rating,omitempty"`
	Comment     string     `json:"comment,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Outcome is the terminal result of an agent invocation, as recorded by
// RunLedger.Complete. Timeouts and transport failures are ordinary failed
// outcomes, not a status of their own.
type Outcome struct {
	Success  bool   `json:"success"`
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// Result is what an executor reports for one packet: the finished run plus
// the error, if any, that prevented it from starting at all.
type Result struct {
	PacketID string `json:"packet_id"`
	Run      *Run   `json:"run,omitempty"`
	Err      string `json:"error,omitempty"`
}

// Succeeded reports whether the packet finished with a completed run.
func (r *Result) Succeeded() bool {
	return r.Run != nil && r.Run.Status == StatusCompleted
}

// FeedbackRequest attaches a human rating to a terminal run.
type FeedbackRequest struct {
	Rating  Rating `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// Validate checks that the FeedbackRequest carries a recognized rating.
func (r *FeedbackRequest) Validate() error {
	if r.Rating != RatingUp && r.Rating != RatingDown {
		return errors.New("rating must be \"up\" or \"down\"")
	}
	return nil
}
