// Package agent defines the port for the external code-generation agent.
package agent

import (
	"context"

	"github.com/packetmill/packetmill/internal/domain/packet"
)

// Result is the terminal outcome of one agent invocation.
type Result struct {
	Success  bool   `json:"success"`
	Output   string `json:"output"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// Client is the port interface for driving the agent. The orchestrator never
// looks inside the agent: it hands over a packet and a working directory and
// waits for a result.
type Client interface {
	// Name returns the transport identifier (e.g. "http", "nats").
	Name() string

	// Run executes one packet and blocks until the agent reports a terminal
	// result or ctx is done. runID identifies the invocation for Cancel.
	// Transport errors, timeouts and non-zero exits are all reported by the
	// caller as run outcome failed.
	Run(ctx context.Context, runID string, p *packet.Packet, workDir string) (*Result, error)

	// Cancel requests cancellation of the invocation identified by runID.
	// Best-effort: the agent may finish anyway.
	Cancel(ctx context.Context, runID string) error
}
