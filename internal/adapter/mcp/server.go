// Package mcp exposes the orchestrator to LLM clients over the Model
// Context Protocol: read tools for packets, runs and the execution queue,
// plus execute/stop tools that drive the executor service. The server
// listens on its own address, separate from the control-surface API.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/packetmill/packetmill/internal/domain/packet"
	"github.com/packetmill/packetmill/internal/domain/queue"
	"github.com/packetmill/packetmill/internal/domain/run"
)

// PacketReader provides read access to packets.
type PacketReader interface {
	ListPackets(ctx context.Context, projectID string) ([]packet.Packet, error)
	GetPacket(ctx context.Context, id string) (*packet.Packet, error)
}

// RunReader provides read access to a packet's run history.
type RunReader interface {
	ListRuns(ctx context.Context, packetID string) ([]run.Run, error)
}

// Executor starts and stops packet execution on behalf of tool calls.
// StartExecution returns once the run is recorded; the agent invocation
// continues in the background, so tool calls never block on it.
type Executor interface {
	StartExecution(ctx context.Context, packetID, projectID string) (*run.Run, error)
	Stop(ctx context.Context, packetID string) error
}

// QueueReader provides read access to the execution queue.
type QueueReader interface {
	ListQueue(ctx context.Context) ([]queue.Entry, error)
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string // empty disables auth on the MCP listener
}

// ServerDeps are the orchestrator capabilities the tools are allowed to
// touch. Nil fields disable the corresponding tools with an error result
// rather than a panic.
type ServerDeps struct {
	Packets  PacketReader
	Runs     RunReader
	Executor Executor
	Queue    QueueReader
}

// Server wraps an mcp-go server with PacketMill's tools and resources.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *http.Server
}

// NewServer builds the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start begins serving MCP over streamable HTTP on the configured address.
// The listener is opened synchronously so address errors surface here.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen: %w", err)
	}

	handler := mcpserver.NewStreamableHTTPServer(s.mcpServer)
	s.httpSrv = &http.Server{
		Handler:           AuthMiddleware(s.cfg.APIKey, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("mcp server listening", "addr", ln.Addr().String())
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the MCP listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// toolResultJSON wraps pre-marshalled JSON as a text tool result.
func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
