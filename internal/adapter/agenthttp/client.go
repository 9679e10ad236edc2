// Package agenthttp drives a coding-agent worker over its HTTP API.
package agenthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/packetmill/packetmill/internal/domain/packet"
	"github.com/packetmill/packetmill/internal/port/agent"
	"github.com/packetmill/packetmill/internal/resilience"
)

const transportName = "http"

// executeRequest is the body of POST /execute.
type executeRequest struct {
	RunID   string         `json:"run_id"`
	Packet  *packet.Packet `json:"packet"`
	WorkDir string         `json:"work_dir"`
}

// cancelRequest is the body of POST /cancel.
type cancelRequest struct {
	RunID string `json:"run_id"`
}

// Client talks to an agent worker's HTTP API. Run is a long poll: the worker
// replies only when the invocation ends, so the request deadline comes from
// ctx, not from the transport.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a new agent worker client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		// No client-level timeout: Run blocks for the whole invocation.
		httpClient: &http.Client{},
	}
}

// Register registers the HTTP transport factory.
func Register() {
	agent.Register(transportName, func(cfg map[string]string) (agent.Client, error) {
		baseURL := cfg["base_url"]
		if baseURL == "" {
			return nil, fmt.Errorf("http agent: base_url is required")
		}
		return NewClient(baseURL, cfg["api_key"]), nil
	})
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Name returns "http".
func (c *Client) Name() string { return transportName }

// Run executes one packet on the worker and blocks until it reports a result.
func (c *Client) Run(ctx context.Context, runID string, p *packet.Packet, workDir string) (*agent.Result, error) {
	body, err := json.Marshal(executeRequest{RunID: runID, Packet: p, WorkDir: workDir})
	if err != nil {
		return nil, fmt.Errorf("http agent: marshal work: %w", err)
	}

	resp, err := c.doRequest(ctx, "/execute", body)
	if err != nil {
		return nil, fmt.Errorf("http agent: execute: %w", err)
	}

	var result agent.Result
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("http agent: unmarshal result: %w", err)
	}
	return &result, nil
}

// Cancel asks the worker to abort the given invocation.
func (c *Client) Cancel(ctx context.Context, runID string) error {
	body, err := json.Marshal(cancelRequest{RunID: runID})
	if err != nil {
		return fmt.Errorf("http agent: marshal cancel: %w", err)
	}

	// The worker acks cancels quickly; don't let a stuck worker hold us.
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := c.doRequest(ctx, "/cancel", body); err != nil {
		return fmt.Errorf("http agent: cancel: %w", err)
	}
	return nil
}

// Health checks if the worker is reachable.
func (c *Client) Health(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("http agent: create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("http agent: health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 400, nil
}

func (c *Client) doRequest(ctx context.Context, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("worker API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
