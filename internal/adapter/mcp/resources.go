package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources wires the read-only resource URIs. Resources carry no
// arguments, so only parameter-free views belong here; everything keyed by
// an ID goes through tools instead.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"packetmill://queue",
			"Execution Queue",
			mcplib.WithResourceDescription("Projects waiting for batch execution, FIFO order"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleQueueResource,
	)
}

func (s *Server) handleQueueResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Queue == nil {
		return jsonResource(req.Params.URI, map[string]string{"error": "queue reader not configured"})
	}
	entries, err := s.deps.Queue.ListQueue(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, entries)
}

// jsonResource wraps v as a single JSON resource body under the given URI.
func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
