// tools_inspect_test.go — doc/source/apropos/complete wrapper tests,
// covering both native-op and synthesized-eval paths.
package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franks42/mcp-nrepl-bridge/internal/state"
)

// stackWithOps wires a connected handler against a backend advertising the
// given ops.
func stackWithOps(t *testing.T, ops ...string) (*mockBackend, *MCPHandler) {
	t.Helper()
	backend := newMockBackend(t, ops...)
	st := state.New(state.Config{Workspace: t.TempDir()})
	client, err := dialBackend(backend)
	require.NoError(t, err)
	st.SetClient(client, "127.0.0.1", backend.port)
	t.Cleanup(st.ClearConnection)
	return backend, NewMCPHandler(NewToolHandler(st))
}

func TestDocUsesNativeInfoOp(t *testing.T) {
	t.Parallel()
	_, h := stackWithOps(t, "eval", "clone", "describe", "info")

	result := callTool(t, h, "doc", map[string]any{"symbol": "map"})
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(result), "docstring for map")
}

func TestDocFallsBackToEval(t *testing.T) {
	t.Parallel()
	backend, h := stackWithOps(t, "eval", "clone", "describe")

	result := callTool(t, h, "doc", map[string]any{"symbol": "map"})
	assert.False(t, result.IsError)
	// The wrapper synthesized a clojure.repl/doc form; the mock evals the
	// unknown form to nil, which is enough to prove the path taken.
	_ = backend
	assert.Contains(t, resultText(result), "nil")
}

func TestSourceSynthesizesEval(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	result := callTool(t, h, "source", map[string]any{"symbol": "my-fn", "ns": "my.app"})
	assert.False(t, result.IsError)
}

func TestAproposRequiresQuery(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	result := callTool(t, h, "apropos", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(result), "schema")
}

func TestCompleteFallsBackWithoutNativeOp(t *testing.T) {
	t.Parallel()
	_, _, _, h := newTestStack(t)

	result := callTool(t, h, "complete", map[string]any{"prefix": "ma"})
	assert.False(t, result.IsError)
}

func TestDescribeOpsCachedOncePerConnection(t *testing.T) {
	t.Parallel()
	_, st, tools, _ := newTestStack(t)

	require.Nil(t, st.DescribeOps())
	first := tools.describeOps()
	assert.True(t, first["eval"])
	require.NotNil(t, st.DescribeOps())

	// Reconnect drops the cache so the native-vs-eval choice is re-made.
	st.ClearConnection()
	assert.Nil(t, st.DescribeOps())
}

func TestQualify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "my.app/f", qualify("f", "my.app"))
	assert.Equal(t, "other/f", qualify("other/f", "my.app"))
	assert.Equal(t, "f", qualify("f", ""))
}
