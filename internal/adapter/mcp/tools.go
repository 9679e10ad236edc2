package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listPacketsTool(),
		s.getPacketTool(),
		s.getRunHistoryTool(),
		s.executePacketTool(),
		s.stopPacketTool(),
		s.queueStatusTool(),
	)
}

func (s *Server) listPacketsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_packets",
		mcplib.WithDescription("List all work packets of a project"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project whose packets to list"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListPackets,
	}
}

func (s *Server) getPacketTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_packet",
		mcplib.WithDescription("Get a single work packet by ID"),
		mcplib.WithString("packet_id",
			mcplib.Required(),
			mcplib.Description("The packet ID to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetPacket,
	}
}

func (s *Server) getRunHistoryTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_run_history",
		mcplib.WithDescription("Get the full run history of a packet, oldest iteration first"),
		mcplib.WithString("packet_id",
			mcplib.Required(),
			mcplib.Description("The packet whose runs to list"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetRunHistory,
	}
}

func (s *Server) executePacketTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("execute_packet",
		mcplib.WithDescription("Start executing a packet through the coding agent. Returns the started run; execution continues in the background"),
		mcplib.WithString("packet_id",
			mcplib.Required(),
			mcplib.Description("The packet to execute"),
		),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project the packet belongs to"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleExecutePacket,
	}
}

func (s *Server) stopPacketTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("stop_packet",
		mcplib.WithDescription("Cancel the running execution of a packet. The packet returns to queued"),
		mcplib.WithString("packet_id",
			mcplib.Required(),
			mcplib.Description("The packet to stop"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleStopPacket,
	}
}

func (s *Server) queueStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("queue_status",
		mcplib.WithDescription("List the cross-project execution queue in FIFO order"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleQueueStatus,
	}
}

func (s *Server) handleListPackets(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Packets == nil {
		return mcplib.NewToolResultError("packet reader not configured"), nil
	}
	args := req.GetArguments()
	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	packets, err := s.deps.Packets.ListPackets(ctx, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list packets", err), nil
	}
	data, err := json.Marshal(packets)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal packets", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetPacket(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Packets == nil {
		return mcplib.NewToolResultError("packet reader not configured"), nil
	}
	args := req.GetArguments()
	packetID, ok := args["packet_id"].(string)
	if !ok || packetID == "" {
		return mcplib.NewToolResultError("packet_id is required"), nil
	}
	p, err := s.deps.Packets.GetPacket(ctx, packetID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get packet %s", packetID), err,
		), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal packet", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetRunHistory(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Runs == nil {
		return mcplib.NewToolResultError("run reader not configured"), nil
	}
	args := req.GetArguments()
	packetID, ok := args["packet_id"].(string)
	if !ok || packetID == "" {
		return mcplib.NewToolResultError("packet_id is required"), nil
	}
	runs, err := s.deps.Runs.ListRuns(ctx, packetID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to list runs for packet %s", packetID), err,
		), nil
	}
	data, err := json.Marshal(runs)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal runs", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleExecutePacket(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Executor == nil {
		return mcplib.NewToolResultError("executor not configured"), nil
	}
	args := req.GetArguments()
	packetID, ok := args["packet_id"].(string)
	if !ok || packetID == "" {
		return mcplib.NewToolResultError("packet_id is required"), nil
	}
	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	r, err := s.deps.Executor.StartExecution(ctx, packetID, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to execute packet %s", packetID), err,
		), nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal run", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleStopPacket(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Executor == nil {
		return mcplib.NewToolResultError("executor not configured"), nil
	}
	args := req.GetArguments()
	packetID, ok := args["packet_id"].(string)
	if !ok || packetID == "" {
		return mcplib.NewToolResultError("packet_id is required"), nil
	}
	if err := s.deps.Executor.Stop(ctx, packetID); err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to stop packet %s", packetID), err,
		), nil
	}
	return mcplib.NewToolResultText(fmt.Sprintf("cancellation requested for packet %s", packetID)), nil
}

func (s *Server) handleQueueStatus(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Queue == nil {
		return mcplib.NewToolResultError("queue reader not configured"), nil
	}
	entries, err := s.deps.Queue.ListQueue(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list queue", err), nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal queue", err), nil
	}
	return toolResultJSON(string(data)), nil
}
