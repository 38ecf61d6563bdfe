// tools_registry.go — The tool catalog and argument validation.
// The catalog is closed at process start: adding a tool means adding a
// descriptor here. Each descriptor carries the MCP input schema and the
// handler; the dispatcher validates arguments against the schema before the
// handler runs.
package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/franks42/mcp-nrepl-bridge/internal/nrepl"
)

// toolDescriptor binds one tool name to its schema and handler.
type toolDescriptor struct {
	name        string
	description string
	schema      map[string]any
	handler     func(h *ToolHandler, req JSONRPCRequest, args json.RawMessage) JSONRPCResponse
}

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func boolProp(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

// toolCatalog enumerates every tool the bridge exposes, in the order
// presented by tools/list.
var toolCatalog = []toolDescriptor{
	{
		name:        "connect",
		description: "Connect to an nREPL server. Without a port, the workspace .nrepl-port file is consulted.",
		schema: objectSchema(nil, map[string]any{
			"host": stringProp("Server host (default: localhost)"),
			"port": intProp("Server port (default: auto-discovered from the workspace)"),
		}),
		handler: (*ToolHandler).toolConnect,
	},
	{
		name:        "eval",
		description: "Evaluate Clojure code on the connected nREPL server and return the merged result.",
		schema: objectSchema([]string{"code"}, map[string]any{
			"code":       stringProp("Code to evaluate"),
			"session":    stringProp("Session id (default: the bridge's default session)"),
			"ns":         stringProp("Namespace to evaluate in"),
			"timeout_ms": intProp("Per-call evaluation deadline override in milliseconds"),
		}),
		handler: (*ToolHandler).toolEval,
	},
	{
		name:        "status",
		description: "Report connection, session, and heartbeat state.",
		schema:      objectSchema(nil, map[string]any{}),
		handler:     (*ToolHandler).toolStatus,
	},
	{
		name:        "new-session",
		description: "Create a fresh nREPL session and return its id.",
		schema:      objectSchema(nil, map[string]any{}),
		handler:     (*ToolHandler).toolNewSession,
	},
	{
		name:        "describe",
		description: "List the operations and versions advertised by the connected server.",
		schema:      objectSchema(nil, map[string]any{}),
		handler:     (*ToolHandler).toolDescribe,
	},
	{
		name:        "doc",
		description: "Show documentation for a symbol.",
		schema: objectSchema([]string{"symbol"}, map[string]any{
			"symbol": stringProp("Symbol to document"),
			"ns":     stringProp("Namespace to resolve the symbol in"),
		}),
		handler: (*ToolHandler).toolDoc,
	},
	{
		name:        "source",
		description: "Show the source of a symbol.",
		schema: objectSchema([]string{"symbol"}, map[string]any{
			"symbol": stringProp("Symbol to show source for"),
			"ns":     stringProp("Namespace to resolve the symbol in"),
		}),
		handler: (*ToolHandler).toolSource,
	},
	{
		name:        "apropos",
		description: "Find symbols whose names match a query.",
		schema: objectSchema([]string{"query"}, map[string]any{
			"query":     stringProp("Substring or pattern to match"),
			"search-ns": stringProp("Restrict the search to one namespace"),
		}),
		handler: (*ToolHandler).toolApropos,
	},
	{
		name:        "complete",
		description: "List completion candidates for a prefix.",
		schema: objectSchema([]string{"prefix"}, map[string]any{
			"prefix": stringProp("Prefix to complete"),
			"ns":     stringProp("Namespace context for completion"),
		}),
		handler: (*ToolHandler).toolComplete,
	},
	{
		name:        "require",
		description: "Require a namespace, optionally with :as, :refer, or :reload.",
		schema: objectSchema([]string{"namespace"}, map[string]any{
			"namespace": stringProp("Namespace to require"),
			"as":        stringProp("Alias for :as"),
			"refer":     stringProp("Symbols for :refer, space separated, or \"all\""),
			"reload":    boolProp("Pass :reload"),
		}),
		handler: (*ToolHandler).toolRequire,
	},
	{
		name:        "load-file",
		description: "Load a local file into the connected server.",
		schema: objectSchema([]string{"file-path"}, map[string]any{
			"file-path": stringProp("Path of the file to load"),
			"session":   stringProp("Session id"),
			"ns":        stringProp("Namespace to load into"),
		}),
		handler: (*ToolHandler).toolLoadFile,
	},
	{
		name:        "interrupt",
		description: "Interrupt the running evaluation in a session.",
		schema: objectSchema(nil, map[string]any{
			"session": stringProp("Session id (default: the bridge's default session)"),
		}),
		handler: (*ToolHandler).toolInterrupt,
	},
	{
		name:        "stacktrace",
		description: "Show the stacktrace of the most recent exception.",
		schema: objectSchema(nil, map[string]any{
			"session": stringProp("Session id (default: the bridge's default session)"),
		}),
		handler: (*ToolHandler).toolStacktrace,
	},
	{
		name:        "health-check",
		description: "Run a multi-category diagnostic of the bridge and the connected server.",
		schema: objectSchema(nil, map[string]any{
			"include_performance": boolProp("Also measure evaluation latency"),
			"verbose":             boolProp("Include per-check details"),
		}),
		handler: (*ToolHandler).toolHealthCheck,
	},
	{
		name:        "raw",
		description: "Send a raw nREPL message verbatim and return the merged reply.",
		schema: objectSchema([]string{"message"}, map[string]any{
			"message": map[string]any{"type": "object", "description": "nREPL message to send (op plus any fields)"},
			"session": stringProp("Session id to attach"),
		}),
		handler: (*ToolHandler).toolRaw,
	},
}

// toolsList renders the catalog for tools/list.
func toolsList() []MCPTool {
	tools := make([]MCPTool, 0, len(toolCatalog))
	for _, d := range toolCatalog {
		tools = append(tools, MCPTool{Name: d.name, Description: d.description, InputSchema: d.schema})
	}
	return tools
}

// lookupTool finds a descriptor by name.
func lookupTool(name string) (*toolDescriptor, bool) {
	for i := range toolCatalog {
		if toolCatalog[i].name == name {
			return &toolCatalog[i], true
		}
	}
	return nil, false
}

// validateArgs checks the provided arguments against a descriptor's schema:
// required fields must be present and every provided field must match its
// declared type. Unknown fields are tolerated and ignored.
func validateArgs(d *toolDescriptor, args json.RawMessage) error {
	var provided map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &provided); err != nil {
			return nrepl.Wrap(nrepl.KindSchema, "arguments must be a JSON object", err)
		}
	}

	if required, ok := d.schema["required"].([]string); ok {
		var missing []string
		for _, field := range required {
			v, present := provided[field]
			if !present || v == nil {
				missing = append(missing, field)
				continue
			}
			if s, isStr := v.(string); isStr && s == "" {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			return nrepl.Errorf(nrepl.KindSchema, "tool %q missing required argument(s): %s", d.name, strings.Join(missing, ", "))
		}
	}

	props, _ := d.schema["properties"].(map[string]any)
	for field, v := range provided {
		spec, ok := props[field].(map[string]any)
		if !ok || v == nil {
			continue
		}
		want, _ := spec["type"].(string)
		if want != "" && !jsonTypeMatches(want, v) {
			return nrepl.Errorf(nrepl.KindSchema, "tool %q argument %q: want %s, got %s", d.name, field, want, jsonTypeName(v))
		}
	}
	return nil
}

func jsonTypeMatches(want string, v any) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := v.(float64)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	}
	return true
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
