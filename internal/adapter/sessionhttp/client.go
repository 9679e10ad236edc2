// Package sessionhttp is a read-only HTTP client for the execution backend's
// session API. It is the reconciler's only window onto in-flight sessions;
// it issues GETs and nothing else.
package sessionhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/packetmill/packetmill/internal/domain"
	"github.com/packetmill/packetmill/internal/domain/session"
)

// Client fetches execution sessions from the backend's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a session API client. timeout bounds each request; the
// reconciler treats a slow backend the same as an absent session.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetSession returns the project's current execution session, or
// domain.ErrNotFound when the backend has none.
func (c *Client) GetSession(ctx context.Context, projectID string) (*session.ExecutionSession, error) {
	url := c.baseURL + "/api/sessions/" + projectID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get session for project %s: %w", projectID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("get session for project %s: %w", projectID, domain.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("session API error %d: %s", resp.StatusCode, string(data))
	}

	var s session.ExecutionSession
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}
