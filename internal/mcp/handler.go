package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/moolen/magma/internal/logging"
)

// protocolVersion is the MCP protocol revision this handler speaks.
const protocolVersion = "2024-11-05"

// Handler routes JSON-RPC requests to the tool registry. It is
// transport-agnostic; the HTTP transport supplies the per-client
// session.
type Handler struct {
	server *Server
	logger *logging.Logger
}

// NewHandler creates a protocol handler over the given server.
func NewHandler(server *Server) *Handler {
	return &Handler{
		server: server,
		logger: logging.GetLogger("mcp"),
	}
}

// HandleRequest processes one request within a session and returns the
// response. Notifications (requests without an id) return nil.
func (h *Handler) HandleRequest(ctx context.Context, session *Session, req *MCPRequest) *MCPResponse {
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, -32600, "Invalid Request: jsonrpc must be 2.0")
	}
	if req.Method == "" {
		return errorResponse(req.ID, -32600, "Invalid Request: method is required")
	}

	var result interface{}
	var rpcErr *MCPError

	switch req.Method {
	case "ping":
		result = map[string]interface{}{}

	case "initialize":
		result, rpcErr = h.handleInitialize(session, req.Params)

	case "notifications/initialized":
		return nil

	case "tools/list":
		if !session.Initialized() {
			rpcErr = &MCPError{Code: -32600, Message: "Server not initialized"}
		} else {
			result = map[string]interface{}{"tools": h.server.Definitions()}
		}

	case "tools/call":
		if !session.Initialized() {
			rpcErr = &MCPError{Code: -32600, Message: "Server not initialized"}
		} else {
			result, rpcErr = h.handleToolCall(ctx, req.Params)
		}

	case "logging/setLevel":
		result, rpcErr = h.handleLoggingSetLevel(req.Params)

	default:
		rpcErr = &MCPError{Code: -32601, Message: fmt.Sprintf("Method not found: %s", req.Method)}
	}

	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}
	return &MCPResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (h *Handler) handleInitialize(session *Session, params map[string]interface{}) (interface{}, *MCPError) {
	if params == nil {
		return nil, &MCPError{Code: -32600, Message: "params is required"}
	}

	if clientInfo, ok := params["clientInfo"].(map[string]interface{}); ok {
		h.logger.Info("Client connected: %v", clientInfo)
	}

	clientVersion, _ := params["protocolVersion"].(string)
	session.MarkInitialized(clientVersion)

	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools":   map[string]interface{}{},
			"logging": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    ServerName,
			"version": h.server.Version(),
		},
	}, nil
}

func (h *Handler) handleToolCall(ctx context.Context, params map[string]interface{}) (interface{}, *MCPError) {
	if params == nil {
		return nil, &MCPError{Code: -32600, Message: "params is required"}
	}
	toolName, ok := params["name"].(string)
	if !ok {
		return nil, &MCPError{Code: -32600, Message: "params.name is required"}
	}

	args, err := json.Marshal(params["arguments"])
	if err != nil {
		return nil, &MCPError{Code: -32602, Message: fmt.Sprintf("invalid arguments: %v", err)}
	}

	result, err := h.server.ExecuteTool(ctx, toolName, args)
	if err != nil {
		// Domain and validation failures are tool results, not protocol
		// errors.
		return &CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: ToolErrorText(toolName, err)}},
			IsError: true,
		}, nil
	}

	return &CallToolResult{
		Content:           []ContentBlock{{Type: "text", Text: result.Text}},
		StructuredContent: result.Structured,
		IsError:           false,
	}, nil
}

func (h *Handler) handleLoggingSetLevel(params map[string]interface{}) (interface{}, *MCPError) {
	if params == nil {
		return nil, &MCPError{Code: -32600, Message: "params is required"}
	}
	level, ok := params["level"].(string)
	if !ok {
		return nil, &MCPError{Code: -32600, Message: "params.level is required and must be a string"}
	}
	if err := logging.SetLevel(level); err != nil {
		return nil, &MCPError{Code: -32600, Message: fmt.Sprintf("invalid logging level: %s", level)}
	}
	return map[string]interface{}{}, nil
}

func errorResponse(id interface{}, code int, message string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &MCPError{Code: code, Message: message},
	}
}
