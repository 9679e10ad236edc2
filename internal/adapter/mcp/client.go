package mcp

import (
	"context"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// ProbeResult is the outcome of a handshake against a running MCP server.
type ProbeResult struct {
	ServerName    string   `json:"server_name"`
	ServerVersion string   `json:"server_version"`
	Tools         []string `json:"tools"`
}

// Probe connects to an MCP server over streamable HTTP, performs the
// initialize handshake and lists the advertised tools. The admin CLI uses
// it to verify a deployment end to end.
func Probe(ctx context.Context, url, apiKey string) (*ProbeResult, error) {
	var opts []transport.StreamableHTTPCOption
	if apiKey != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + apiKey,
		}))
	}
	client, err := mcpclient.NewStreamableHttpClient(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}
	defer client.Close() //nolint:errcheck // best-effort cleanup

	initReq := mcplib.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcplib.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcplib.Implementation{
		Name:    "packetmill-admin",
		Version: "1.0.0",
	}
	initResult, err := client.Initialize(ctx, initReq)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	result := &ProbeResult{
		ServerName:    initResult.ServerInfo.Name,
		ServerVersion: initResult.ServerInfo.Version,
	}

	toolsResult, err := client.ListTools(ctx, mcplib.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	for i := range toolsResult.Tools {
		result.Tools = append(result.Tools, toolsResult.Tools[i].Name)
	}

	return result, nil
}
