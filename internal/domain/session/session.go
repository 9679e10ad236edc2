// Package session defines the remote execution-session record and the local
// state view reconstructed from it after a reconnect.
package session

import "time"

// Status represents the state of a remote execution session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Progress is the session's completion counter pair.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Event is one ordered log or state-change record inside a session.
type Event struct {
	Seq      int       `json:"seq"`
	Kind     string    `json:"kind"`
	PacketID string    `json:"packet_id,omitempty"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

// ExecutionSession is the authoritative remote record of an in-flight batch
// run. It is owned by the execution backend; PacketMill only ever reads it.
type ExecutionSession struct {
	ID                 string   `json:"id"`
	ProjectID          string   `json:"project_id"`
	Status             Status   `json:"status"`
	Progress           Progress `json:"progress"`
	Events             []Event  `json:"events,omitempty"`
	CurrentPacketIndex int      `json:"current_packet_index"`
}

// LocalState is the reconciled client-side view of a session. Building it
// never triggers execution; it exists so a reconnecting client can show what
// is already happening instead of "nothing running".
type LocalState struct {
	SessionID          string            `json:"session_id"`
	ProjectID          string            `json:"project_id"`
	Active             bool              `json:"active"`
	Progress           Progress          `json:"progress"`
	Events             []Event           `json:"events,omitempty"`
	CurrentPacketIndex int               `json:"current_packet_index"`
	PacketStatuses     map[string]string `json:"packet_statuses,omitempty"`
}
