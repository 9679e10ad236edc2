// Package agentnats drives a coding-agent worker over NATS request-reply.
package agentnats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/packetmill/packetmill/internal/domain/packet"
	"github.com/packetmill/packetmill/internal/port/agent"
	"github.com/packetmill/packetmill/internal/port/messagequeue"
)

const transportName = "nats"

// Client dispatches packets to a worker listening on the agent work subject.
// Run blocks on the reply inbox, so the worker answers exactly once, when the
// invocation ends.
type Client struct {
	queue messagequeue.Queue
}

// New creates a NATS-transport agent client on the given queue.
func New(queue messagequeue.Queue) *Client {
	return &Client{queue: queue}
}

// Register registers the NATS transport factory with the given queue.
func Register(queue messagequeue.Queue) {
	agent.Register(transportName, func(_ map[string]string) (agent.Client, error) {
		return New(queue), nil
	})
}

// Name returns "nats".
func (c *Client) Name() string { return transportName }

// Run sends the packet to the worker and blocks until it replies or ctx is done.
func (c *Client) Run(ctx context.Context, runID string, p *packet.Packet, workDir string) (*agent.Result, error) {
	data, err := json.Marshal(messagequeue.AgentWorkPayload{RunID: runID, Packet: p, WorkDir: workDir})
	if err != nil {
		return nil, fmt.Errorf("nats agent: marshal work: %w", err)
	}

	resp, err := c.queue.Request(ctx, messagequeue.SubjectAgentWork, data)
	if err != nil {
		return nil, fmt.Errorf("nats agent: request work: %w", err)
	}

	var result agent.Result
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("nats agent: unmarshal result: %w", err)
	}
	return &result, nil
}

// Cancel broadcasts a cancel signal for the given invocation.
func (c *Client) Cancel(ctx context.Context, runID string) error {
	data, err := json.Marshal(messagequeue.AgentCancelPayload{RunID: runID})
	if err != nil {
		return fmt.Errorf("nats agent: marshal cancel: %w", err)
	}

	if err := c.queue.Publish(ctx, messagequeue.SubjectAgentCancel, data); err != nil {
		return fmt.Errorf("nats agent: publish cancel: %w", err)
	}
	return nil
}
