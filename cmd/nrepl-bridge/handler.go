// handler.go — MCP protocol handler for JSON-RPC 2.0 requests.
// Routes methods to handlers, owns protocol negotiation, and funnels
// tools/call through schema validation and the rate limiter.
package main

import (
	"encoding/json"

	"golang.org/x/time/rate"
)

const supportedProtocolVersion = "2024-11-05"

// serverInstructions is sent once per session in the initialize response.
const serverInstructions = `nrepl-bridge exposes a Clojure nREPL server as MCP tools.

Workflow:
- connect: attach to a server (auto-discovers the port from .nrepl-port)
- eval: evaluate code; use new-session for isolated bindings
- doc / source / apropos / complete: inspect symbols
- require / load-file: bring code into the server
- interrupt / stacktrace: manage a stuck or failed evaluation
- status / health-check: bridge and server diagnostics
- raw: send any nREPL operation verbatim

Recent evaluations are readable via the nrepl://recent-commands resource.`

// MCPHandler handles MCP protocol messages.
type MCPHandler struct {
	tools   *ToolHandler
	limiter *rate.Limiter
}

// NewMCPHandler creates a handler over the shared tool handler. Tool calls
// are rate limited to keep a runaway client from flooding the backend.
func NewMCPHandler(tools *ToolHandler) *MCPHandler {
	return &MCPHandler{
		tools:   tools,
		limiter: rate.NewLimiter(rate.Limit(500.0/60.0), 100),
	}
}

// mcpMethodHandlers maps MCP method names to their handlers.
var mcpMethodHandlers = map[string]func(h *MCPHandler, req JSONRPCRequest) JSONRPCResponse{
	"initialize":     (*MCPHandler).handleInitialize,
	"tools/list":     (*MCPHandler).handleToolsList,
	"tools/call":     (*MCPHandler).handleToolsCall,
	"resources/list": (*MCPHandler).handleResourcesList,
	"resources/read": (*MCPHandler).handleResourcesRead,
}

// mcpStaticResponses maps MCP methods to static JSON result bodies.
var mcpStaticResponses = map[string]string{
	"initialized":  `{}`,
	"ping":         `{}`,
	"prompts/list": `{"prompts":[]}`,
}

// HandleRequest processes an MCP request and returns a response. Returns nil
// for notifications, which must not receive one per JSON-RPC 2.0.
func (h *MCPHandler) HandleRequest(req JSONRPCRequest) *JSONRPCResponse {
	if req.ID == nil || hasNotificationPrefix(req.Method) {
		return nil
	}

	if handler, ok := mcpMethodHandlers[req.Method]; ok {
		resp := handler(h, req)
		return &resp
	}

	if staticResult, ok := mcpStaticResponses[req.Method]; ok {
		resp := JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(staticResult)}
		return &resp
	}

	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error:   &JSONRPCError{Code: codeMethodNotFound, Message: "Method not found: " + req.Method},
	}
	return &resp
}

func hasNotificationPrefix(method string) bool {
	const prefix = "notifications/"
	return len(method) >= len(prefix) && method[:len(prefix)] == prefix
}

func (h *MCPHandler) handleInitialize(req JSONRPCRequest) JSONRPCResponse {
	var initParams struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &initParams)
	}

	// Echo the client's version when we support it, else answer with ours.
	negotiated := supportedProtocolVersion
	if initParams.ProtocolVersion == supportedProtocolVersion {
		negotiated = initParams.ProtocolVersion
	}

	result := map[string]any{
		"protocolVersion": negotiated,
		"serverInfo": map[string]string{
			"name":    "nrepl-bridge",
			"version": version,
		},
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
		},
		"instructions": serverInstructions,
	}
	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: safeMarshal(result, `{}`)}
}

func (h *MCPHandler) handleToolsList(req JSONRPCRequest) JSONRPCResponse {
	result := map[string]any{"tools": toolsList()}
	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: safeMarshal(result, `{"tools":[]}`)}
}

func (h *MCPHandler) handleToolsCall(req JSONRPCRequest) JSONRPCResponse {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return JSONRPCResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &JSONRPCError{Code: codeInvalidParams, Message: "Invalid params: " + err.Error()},
		}
	}

	if !h.limiter.Allow() {
		return JSONRPCResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &JSONRPCError{Code: codeInternalError, Message: "Tool call rate limit exceeded (500 calls/minute). Please wait before retrying."},
		}
	}

	resp, handled := h.tools.HandleToolCall(req, params.Name, params.Arguments)
	if !handled {
		// Unknown tools surface as isError tool results, not protocol
		// errors, so the caller sees the failure inline.
		result := MCPToolResult{
			Content: []MCPContentBlock{{Type: "text", Text: "Error [tool-not-found]: no such tool: " + params.Name}},
			IsError: true,
		}
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: safeMarshal(result, marshalFallback)}
	}
	return resp
}

func (h *MCPHandler) handleResourcesList(req JSONRPCRequest) JSONRPCResponse {
	result := map[string]any{"resources": mcpResources()}
	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: safeMarshal(result, `{"resources":[]}`)}
}

func (h *MCPHandler) handleResourcesRead(req JSONRPCRequest) JSONRPCResponse {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return JSONRPCResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &JSONRPCError{Code: codeInvalidParams, Message: "Invalid params: " + err.Error()},
		}
	}

	content, ok := resolveResourceContent(h.tools.st, params.URI)
	if !ok {
		return JSONRPCResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &JSONRPCError{Code: -32002, Message: "Resource not found: " + params.URI},
		}
	}

	result := map[string]any{"contents": []MCPResourceContent{content}}
	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: safeMarshal(result, `{"contents":[]}`)}
}
