// tools_response.go — Tool result construction helpers.
// Tool handlers never build MCP envelopes by hand; these helpers keep the
// success/error shapes uniform across the catalog.
package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/franks42/mcp-nrepl-bridge/internal/nrepl"
)

// safeMarshal performs defensive JSON marshaling with a fallback value.
func safeMarshal(v any, fallback string) json.RawMessage {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		// Never happens with the simple structs used here.
		logrus.WithError(err).Error("marshal tool result")
		return json.RawMessage(fallback)
	}
	return json.RawMessage(resultJSON)
}

const marshalFallback = `{"content":[{"type":"text","text":"Internal error: failed to marshal result"}],"isError":true}`

// textResult wraps plain text in the MCP tool result envelope.
func textResult(req JSONRPCRequest, text string) JSONRPCResponse {
	result := MCPToolResult{Content: []MCPContentBlock{{Type: "text", Text: text}}}
	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: safeMarshal(result, marshalFallback)}
}

// evalResult wraps a merged reply rendering plus its session and namespace.
func evalResult(req JSONRPCRequest, text, session, ns string) JSONRPCResponse {
	result := MCPToolResult{
		Content:   []MCPContentBlock{{Type: "text", Text: text}},
		Session:   session,
		Namespace: ns,
	}
	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: safeMarshal(result, marshalFallback)}
}

// jsonResult wraps a summary line plus compact JSON in the envelope.
func jsonResult(req JSONRPCRequest, summary string, data any) JSONRPCResponse {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return errorResult(req, nrepl.Wrap("internal", "serialize response", err))
	}
	text := string(dataJSON)
	if summary != "" {
		text = summary + "\n" + text
	}
	return textResult(req, text)
}

// errorResult projects a classified bridge error into an isError tool
// result. The text payload leads with the kind so callers and tests can
// match on it.
func errorResult(req JSONRPCRequest, err error) JSONRPCResponse {
	kind := nrepl.KindOf(err)
	var text string
	if kind != "" {
		text = fmt.Sprintf("Error [%s]: %s", kind, err.Error())
	} else {
		text = "Error: " + err.Error()
	}
	result := MCPToolResult{
		Content: []MCPContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: safeMarshal(result, marshalFallback)}
}

// renderReply pretty-prints a merged reply the way a terminal REPL would:
// stdout, then stderr, then the value or exception.
func renderReply(r *nrepl.Reply) string {
	var b strings.Builder
	if r.Out != "" {
		b.WriteString(r.Out)
		if !strings.HasSuffix(r.Out, "\n") {
			b.WriteString("\n")
		}
	}
	if r.Err != "" {
		b.WriteString(r.Err)
		if !strings.HasSuffix(r.Err, "\n") {
			b.WriteString("\n")
		}
	}
	if r.Ex != "" {
		fmt.Fprintf(&b, ";; exception: %s\n", r.Ex)
		if r.RootEx != "" && r.RootEx != r.Ex {
			fmt.Fprintf(&b, ";; root cause: %s\n", r.RootEx)
		}
	}
	if r.Value != "" {
		b.WriteString(r.Value)
	}
	if b.Len() == 0 {
		return "nil"
	}
	return strings.TrimSuffix(b.String(), "\n")
}
