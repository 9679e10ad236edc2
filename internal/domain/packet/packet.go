// Package packet defines the work-packet domain entity.
package packet

import (
	"errors"
	"time"
)

// Type classifies the kind of work a packet describes.
type Type string

const (
	TypeFeature  Type = "feature"
	TypeBugfix   Type = "bugfix"
	TypeRefactor Type = "refactor"
	TypeTest     Type = "test"
	TypeDocs     Type = "docs"
	TypeConfig   Type = "config"
	TypeResearch Type = "research"
	TypeVision   Type = "vision"
	TypeChore    Type = "chore"
	TypeSetup    Type = "setup"
)

// ValidTypes is the set of recognized packet types.
var ValidTypes = map[Type]bool{
	TypeFeature:  true,
	TypeBugfix:   true,
	TypeRefactor: true,
	TypeTest:     true,
	TypeDocs:     true,
	TypeConfig:   true,
	TypeResearch: true,
	TypeVision:   true,
	TypeChore:    true,
	TypeSetup:    true,
}

// Priority orders packets for human triage. It does not affect scheduling.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// ValidPriorities is the set of recognized priorities.
var ValidPriorities = map[Priority]bool{
	PriorityCritical: true,
	PriorityHigh:     true,
	PriorityMedium:   true,
	PriorityLow:      true,
}

// Status represents the lifecycle state of a packet.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
	StatusFailed     Status = "failed"
)

// ValidStatuses is the set of recognized packet statuses.
var ValidStatuses = map[Status]bool{
	StatusQueued:     true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusBlocked:    true,
	StatusFailed:     true,
}

// Task is a checklist item inside a packet.
type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	Order       int    `json:"order"`
}

// Packet is a discrete, independently executable unit of project work.
// Status is mutated only through run outcomes (SetStatus); user edits touch
// the descriptive fields and never the status.
type Packet struct {
	ID                 string    `json:"id"`
	ProjectID          string    `json:"project_id"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	Type               Type      `json:"type"`
	Priority           Priority  `json:"priority"`
	Status             Status    `json:"status"`
	Tasks              []Task    `json:"tasks,omitempty"`
	AcceptanceCriteria []string  `json:"acceptance_criteria,omitempty"`
	Dependencies       []string  `json:"dependencies,omitempty"`
	BlockedBy          []string  `json:"blocked_by,omitempty"`
	Blocks             []string  `json:"blocks,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to register an authored packet.
type CreateRequest struct {
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	Type               Type     `json:"type"`
	Priority           Priority `json:"priority"`
	Tasks              []Task   `json:"tasks,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Dependencies       []string `json:"dependencies,omitempty"`
	BlockedBy          []string `json:"blocked_by,omitempty"`
	Blocks             []string `json:"blocks,omitempty"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Title == "" {
		return errors.New("title is required")
	}
	if !ValidTypes[r.Type] {
		return errors.New("invalid packet type")
	}
	if !ValidPriorities[r.Priority] {
		return errors.New("invalid priority")
	}
	return nil
}

// UpdateRequest is a partial edit of a packet's descriptive fields.
// Status is deliberately absent: execution outcomes are the only status path.
type UpdateRequest struct {
	Title              *string   `json:"title,omitempty"`
	Description        *string   `json:"description,omitempty"`
	Priority           *Priority `json:"priority,omitempty"`
	Tasks              []Task    `json:"tasks,omitempty"`
	AcceptanceCriteria []string  `json:"acceptance_criteria,omitempty"`
}

// Validate checks that the UpdateRequest only carries legal values.
func (r *UpdateRequest) Validate() error {
	if r.Title != nil && *r.Title == "" {
		return errors.New("title must not be empty")
	}
	if r.Priority != nil && !ValidPriorities[*r.Priority] {
		return errors.New("invalid priority")
	}
	return nil
}

// Apply copies the non-nil fields of the request onto p.
func (r *UpdateRequest) Apply(p *Packet) {
	if r.Title != nil {
		p.Title = *r.Title
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.Priority != nil {
		p.Priority = *r.Priority
	}
	if r.Tasks != nil {
		p.Tasks = r.Tasks
	}
	if r.AcceptanceCriteria != nil {
		p.AcceptanceCriteria = r.AcceptanceCriteria
	}
}
