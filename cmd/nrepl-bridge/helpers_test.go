// helpers_test.go — Shared test fixtures: an in-process mock nREPL backend
// and a fully wired handler stack.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/franks42/mcp-nrepl-bridge/internal/bencode"
	"github.com/franks42/mcp-nrepl-bridge/internal/nrepl"
	"github.com/franks42/mcp-nrepl-bridge/internal/state"
)

// mockBackend is a loopback nREPL server with canned behavior for the ops
// the bridge exercises: eval of simple literal forms, clone, describe,
// interrupt, load-file, info.
type mockBackend struct {
	ln   net.Listener
	port int

	mu       sync.Mutex
	sessions map[string]map[string]string // session id -> var bindings
	nextSess int
	ops      []string // ops advertised by describe
	conns    []net.Conn
}

func newMockBackend(t *testing.T, advertisedOps ...string) *mockBackend {
	t.Helper()
	if advertisedOps == nil {
		advertisedOps = []string{"eval", "clone", "close", "describe", "load-file", "interrupt", "ls-sessions"}
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	b := &mockBackend{
		ln:       ln,
		port:     ln.Addr().(*net.TCPAddr).Port,
		sessions: map[string]map[string]string{},
		ops:      advertisedOps,
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go b.serve(conn)
		}
	}()
	return b
}

// closeConns hangs up every accepted connection, simulating a backend crash
// mid-conversation.
func (b *mockBackend) closeConns() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.conns {
		conn.Close()
	}
	b.conns = nil
}

func dialBackend(b *mockBackend) (*nrepl.Client, error) {
	return nrepl.Dial("127.0.0.1", b.port)
}

func (b *mockBackend) serve(conn net.Conn) {
	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		raw, err := bencode.Decode(reader)
		if err != nil {
			return
		}
		req, ok := raw.(map[string]any)
		if !ok {
			return
		}
		for _, msg := range b.respond(req) {
			if err := bencode.Encode(conn, msg); err != nil {
				return
			}
		}
	}
}

func (b *mockBackend) respond(req map[string]any) []map[string]any {
	id, _ := req["id"].(string)
	op, _ := req["op"].(string)
	session, _ := req["session"].(string)

	terminal := func(extra map[string]any) map[string]any {
		msg := map[string]any{"id": id, "status": []any{"done"}}
		if session != "" {
			msg["session"] = session
		}
		for k, v := range extra {
			msg[k] = v
		}
		return msg
	}

	switch op {
	case "clone":
		b.mu.Lock()
		b.nextSess++
		newID := fmt.Sprintf("session-%d", b.nextSess)
		b.sessions[newID] = map[string]string{}
		b.mu.Unlock()
		return []map[string]any{terminal(map[string]any{"new-session": newID})}

	case "describe":
		ops := map[string]any{}
		for _, name := range b.ops {
			ops[name] = map[string]any{}
		}
		return []map[string]any{terminal(map[string]any{
			"ops":      ops,
			"versions": map[string]any{"nrepl": "1.1.0", "clojure": "1.11.3"},
		})}

	case "interrupt":
		return []map[string]any{terminal(map[string]any{"status": []any{"interrupted", "done"}})}

	case "load-file":
		return []map[string]any{
			{"id": id, "value": "#'user/loaded"},
			terminal(nil),
		}

	case "info":
		symbol, _ := req["symbol"].(string)
		return []map[string]any{terminal(map[string]any{
			"doc":  "docstring for " + symbol,
			"name": symbol,
		})}

	case "eval":
		code, _ := req["code"].(string)
		return b.evalMessages(id, session, code)
	}

	return []map[string]any{terminal(map[string]any{"status": []any{"unknown-op", "done"}})}
}

// evalMessages interprets just enough Clojure to exercise the bridge: a few
// literal arithmetic/string forms, def/lookup against per-session bindings,
// println streaming, and a division-by-zero error.
func (b *mockBackend) evalMessages(id, session, code string) []map[string]any {
	withSession := func(msg map[string]any) map[string]any {
		if session != "" {
			msg["session"] = session
		}
		return msg
	}
	value := func(v string) []map[string]any {
		return []map[string]any{
			withSession(map[string]any{"id": id, "value": v, "ns": "user"}),
			withSession(map[string]any{"id": id, "status": []any{"done"}}),
		}
	}

	switch code {
	case "1":
		return value("1")
	case "(+ 1 2)":
		return value("3")
	case "(+ 1 1)":
		return value("2")
	case "(+ 1 2 3)":
		return value("6")
	case `(str "a" "b")`:
		return value(`"ab"`)
	case "(count [1 2 3])":
		return value("3")
	case `(println "hc")`:
		return []map[string]any{
			withSession(map[string]any{"id": id, "out": "hc\n"}),
			withSession(map[string]any{"id": id, "value": "nil"}),
			withSession(map[string]any{"id": id, "status": []any{"done"}}),
		}
	case `(do (println "a") (println "b") :ok)`:
		return []map[string]any{
			withSession(map[string]any{"id": id, "out": "a\n"}),
			withSession(map[string]any{"id": id, "out": "b\n"}),
			withSession(map[string]any{"id": id, "value": ":ok"}),
			withSession(map[string]any{"id": id, "status": []any{"done"}}),
		}
	case "(/ 1 0)":
		return []map[string]any{
			withSession(map[string]any{"id": id, "err": "Execution error (ArithmeticException): Divide by zero\n"}),
			withSession(map[string]any{
				"id":      id,
				"ex":      "class java.lang.ArithmeticException",
				"root-ex": "class java.lang.ArithmeticException",
				"status":  []any{"eval-error"},
			}),
			withSession(map[string]any{"id": id, "status": []any{"done"}}),
		}
	}

	if strings.HasPrefix(code, "(def ") {
		parts := strings.Fields(strings.Trim(code, "()"))
		if len(parts) == 3 {
			b.mu.Lock()
			if b.sessions[session] == nil {
				b.sessions[session] = map[string]string{}
			}
			b.sessions[session][parts[1]] = parts[2]
			b.mu.Unlock()
			return value("#'user/" + parts[1])
		}
	}

	// Bare symbol lookup against session bindings.
	if !strings.ContainsAny(code, "() ") {
		b.mu.Lock()
		bound, ok := b.sessions[session][code]
		b.mu.Unlock()
		if ok {
			return value(bound)
		}
		return []map[string]any{
			withSession(map[string]any{
				"id":     id,
				"err":    "Syntax error compiling. Unable to resolve symbol: " + code + "\n",
				"ex":     "class clojure.lang.Compiler$CompilerException",
				"status": []any{"eval-error"},
			}),
			withSession(map[string]any{"id": id, "status": []any{"done"}}),
		}
	}

	return value("nil")
}

// newTestStack wires a store, tool handler, and MCP handler over a mock
// backend, already connected.
func newTestStack(t *testing.T) (*mockBackend, *state.Store, *ToolHandler, *MCPHandler) {
	t.Helper()
	backend := newMockBackend(t)

	st := state.New(state.Config{
		Workspace:         t.TempDir(),
		EvalTimeout:       5 * time.Second,
		HeartbeatInterval: time.Hour,
	})
	client, err := nrepl.Dial("127.0.0.1", backend.port)
	require.NoError(t, err)
	st.SetClient(client, "127.0.0.1", backend.port)
	t.Cleanup(st.ClearConnection)

	tools := NewToolHandler(st)
	return backend, st, tools, NewMCPHandler(tools)
}

// callTool drives a tools/call through the MCP handler and decodes the tool
// result envelope.
func callTool(t *testing.T, h *MCPHandler, name string, args any) MCPToolResult {
	t.Helper()
	argsJSON, err := json.Marshal(args)
	require.NoError(t, err)
	params, err := json.Marshal(map[string]any{"name": name, "arguments": json.RawMessage(argsJSON)})
	require.NoError(t, err)

	resp := h.HandleRequest(JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error, "unexpected protocol error: %+v", resp.Error)

	var result MCPToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.NotEmpty(t, result.Content)
	return result
}

func resultText(result MCPToolResult) string {
	var b strings.Builder
	for _, block := range result.Content {
		b.WriteString(block.Text)
	}
	return b.String()
}
