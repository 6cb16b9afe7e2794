package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/moolen/magma/internal/logging"
	"github.com/moolen/magma/internal/mcp/tools"
	"github.com/moolen/magma/internal/metrics"
)

// ServerName is the serverInfo name reported during initialize.
const ServerName = "MAGMA MCP Server"

// Server owns the tool registry. The same registry backs both the
// JSON-RPC HTTP handler and the mcp-go stdio server.
type Server struct {
	mcpServer *server.MCPServer
	tools     map[string]tools.Tool
	order     []string
	version   string
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewServer registers the full tool catalog. The metrics argument may
// be nil.
func NewServer(version string, deps tools.Dependencies, m *metrics.Metrics) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		tools:     make(map[string]tools.Tool),
		version:   version,
		metrics:   m,
		logger:    logging.GetLogger("mcp"),
	}
	for _, tool := range tools.All(deps) {
		s.register(tool)
	}
	return s
}

func (s *Server) register(tool tools.Tool) {
	name := tool.Name()
	s.tools[name] = tool
	s.order = append(s.order, name)

	schemaJSON, err := json.Marshal(tool.InputSchema())
	if err != nil {
		// Schemas are static literals; a marshal failure is a programming error.
		panic(fmt.Sprintf("failed to marshal schema for tool %s: %v", name, err))
	}

	mcpTool := mcp.NewToolWithRawSchema(name, tool.Description(), schemaJSON)
	s.mcpServer.AddTool(mcpTool, s.createToolHandler(name))
}

// createToolHandler adapts a registered tool to the mcp-go handler
// signature used by the stdio transport.
func (s *Server) createToolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s: invalid arguments: %v", name, err)), nil
		}

		result, err := s.ExecuteTool(ctx, name, args)
		if err != nil {
			return mcp.NewToolResultError(ToolErrorText(name, err)), nil
		}
		return mcp.NewToolResultText(result.Text), nil
	}
}

// ExecuteTool dispatches one tool call and records its metrics.
func (s *Server) ExecuteTool(ctx context.Context, name string, args json.RawMessage) (*tools.Result, error) {
	tool, ok := s.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	start := time.Now()
	result, err := tool.Execute(ctx, args)
	if s.metrics != nil {
		s.metrics.RecordToolExecution(name, err == nil, time.Since(start))
	}
	if err != nil {
		s.logger.Debug("Tool %s failed: %v", name, err)
		return nil, err
	}
	return result, nil
}

// Definitions lists all tools in registration order for tools/list.
func (s *Server) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(s.order))
	for _, name := range s.order {
		tool := s.tools[name]
		defs = append(defs, ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}
	return defs
}

// Version returns the server version string.
func (s *Server) Version() string {
	return s.version
}

// MCPServer exposes the underlying mcp-go server for the stdio
// transport.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}
