// handler_test.go — MCP method routing and protocol envelope tests.
package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleInitialize(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	resp := h.HandleRequest(JSONRPCRequest{
		JSONRPC: "2.0", ID: 1, Method: "initialize",
		Params: json.RawMessage(`{"protocolVersion":"2024-11-05"}`),
	})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Instructions string `json:"instructions"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "2024-11-05", result.ProtocolVersion)
	assert.Equal(t, "nrepl-bridge", result.ServerInfo.Name)
	assert.NotEmpty(t, result.Instructions)
}

func TestHandleToolsListCoversCatalog(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	resp := h.HandleRequest(JSONRPCRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	require.NotNil(t, resp)

	var result struct {
		Tools []MCPTool `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))

	names := map[string]bool{}
	for _, tool := range result.Tools {
		names[tool.Name] = true
		assert.NotEmpty(t, tool.Description, "tool %s has no description", tool.Name)
		assert.Equal(t, "object", tool.InputSchema["type"], "tool %s schema", tool.Name)
	}
	for _, want := range []string{
		"connect", "eval", "status", "new-session", "describe", "doc", "source",
		"apropos", "complete", "require", "load-file", "interrupt", "stacktrace",
		"health-check", "raw",
	} {
		assert.True(t, names[want], "catalog missing %s", want)
	}
	assert.Len(t, result.Tools, 15)
}

func TestHandleUnknownMethod(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	resp := h.HandleRequest(JSONRPCRequest{JSONRPC: "2.0", ID: 3, Method: "bogus/method"})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestNotificationsGetNoResponse(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	assert.Nil(t, h.HandleRequest(JSONRPCRequest{JSONRPC: "2.0", Method: "initialized"}))
	assert.Nil(t, h.HandleRequest(JSONRPCRequest{JSONRPC: "2.0", ID: 4, Method: "notifications/initialized"}))
}

func TestStaticMethods(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	resp := h.HandleRequest(JSONRPCRequest{JSONRPC: "2.0", ID: 5, Method: "ping"})
	require.NotNil(t, resp)
	assert.JSONEq(t, `{}`, string(resp.Result))

	resp = h.HandleRequest(JSONRPCRequest{JSONRPC: "2.0", ID: 6, Method: "prompts/list"})
	require.NotNil(t, resp)
	assert.JSONEq(t, `{"prompts":[]}`, string(resp.Result))
}

func TestToolNotFoundIsErrorResult(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	result := callTool(t, h, "does-not-exist", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(result), "tool-not-found")
}

func TestToolsCallInvalidParams(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	resp := h.HandleRequest(JSONRPCRequest{
		JSONRPC: "2.0", ID: 7, Method: "tools/call",
		Params: json.RawMessage(`"not an object"`),
	})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestSchemaValidationMissingRequired(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	result := callTool(t, h, "eval", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(result), "schema")
	assert.Contains(t, resultText(result), "code")
}

func TestSchemaValidationWrongType(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	result := callTool(t, h, "eval", map[string]any{"code": 42})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(result), "schema")
}

func TestResourcesListAndRead(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	resp := h.HandleRequest(JSONRPCRequest{JSONRPC: "2.0", ID: 8, Method: "resources/list"})
	require.NotNil(t, resp)
	var list struct {
		Resources []MCPResource `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	require.Len(t, list.Resources, 2)

	callTool(t, h, "eval", map[string]any{"code": "(+ 1 2)"})

	resp = h.HandleRequest(JSONRPCRequest{
		JSONRPC: "2.0", ID: 9, Method: "resources/read",
		Params: json.RawMessage(`{"uri":"nrepl://recent-commands"}`),
	})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	var read struct {
		Contents []MCPResourceContent `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &read))
	require.Len(t, read.Contents, 1)
	assert.Contains(t, read.Contents[0].Text, "(+ 1 2)")
}

func TestResourcesReadUnknownURI(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	resp := h.HandleRequest(JSONRPCRequest{
		JSONRPC: "2.0", ID: 10, Method: "resources/read",
		Params: json.RawMessage(`{"uri":"nrepl://nope"}`),
	})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32002, resp.Error.Code)
}
