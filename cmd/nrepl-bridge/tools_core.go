// tools_core.go — ToolHandler plumbing plus the connection and session tools.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/franks42/mcp-nrepl-bridge/internal/nrepl"
	"github.com/franks42/mcp-nrepl-bridge/internal/state"
)

// discoverTimeout bounds how long a connect without an explicit port waits
// for the sentinel file to appear.
const discoverTimeout = 2 * time.Second

// ToolHandler executes tool calls against the state core and the nREPL
// client.
type ToolHandler struct {
	st *state.Store
}

// NewToolHandler creates a tool handler over the given state store.
func NewToolHandler(st *state.Store) *ToolHandler {
	return &ToolHandler{st: st}
}

// HandleToolCall dispatches one validated tool invocation. The second return
// is false when the tool name is not in the catalog.
func (h *ToolHandler) HandleToolCall(req JSONRPCRequest, name string, args json.RawMessage) (JSONRPCResponse, bool) {
	d, ok := lookupTool(name)
	if !ok {
		return JSONRPCResponse{}, false
	}
	if err := validateArgs(d, args); err != nil {
		return errorResult(req, err), true
	}
	return d.handler(h, req, args), true
}

// client returns the active connection or a not-connected error.
func (h *ToolHandler) client() (*nrepl.Client, error) {
	c := h.st.Client()
	if c == nil {
		return nil, nrepl.Errorf(nrepl.KindNotConnected, "no nREPL connection; use the connect tool first")
	}
	return c, nil
}

// send performs one RP exchange under the configured eval deadline,
// invalidating the stored connection when the transport fails.
func (h *ToolHandler) send(op map[string]any, timeout time.Duration) (*nrepl.Reply, error) {
	c, err := h.client()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = h.st.Config().EvalTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reply, err := c.Send(ctx, op)
	if err != nil {
		switch nrepl.KindOf(err) {
		case nrepl.KindTransportClosed, nrepl.KindCodec:
			h.st.ClearConnection()
		}
		return nil, err
	}
	h.st.TouchSession(reply.Session)
	return reply, nil
}

// resolveSession picks the explicit session argument or falls back to the
// bridge's default session.
func (h *ToolHandler) resolveSession(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return h.st.DefaultSession()
}

// ============================================
// connect / status / new-session / describe / raw
// ============================================

func (h *ToolHandler) toolConnect(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	var params struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return errorResult(req, nrepl.Wrap(nrepl.KindSchema, "parse connect arguments", err))
		}
	}
	if params.Host == "" {
		params.Host = "localhost"
	}

	cfg := h.st.Config()
	if params.Port == 0 {
		params.Port = cfg.FixedPort
	}
	if params.Port == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), discoverTimeout)
		defer cancel()
		port, err := nrepl.WaitForPort(ctx, cfg.Workspace)
		if err != nil {
			return errorResult(req, err)
		}
		params.Port = port
	}

	client, err := nrepl.Dial(params.Host, params.Port)
	if err != nil {
		return errorResult(req, err)
	}
	h.st.SetClient(client, params.Host, params.Port)
	logrus.WithFields(logrus.Fields{"host": params.Host, "port": params.Port}).Info("connected to nREPL server")

	return textResult(req, fmt.Sprintf("Connected to nREPL server at %s:%d", params.Host, params.Port))
}

// statusReport is the JSON body of the status tool and the status resource.
type statusReport struct {
	Connected      bool                         `json:"connected"`
	Host           string                       `json:"host,omitempty"`
	Port           int                          `json:"port,omitempty"`
	ConnectedAt    string                       `json:"connected_at,omitempty"`
	Sessions       map[string]state.SessionInfo `json:"sessions"`
	DefaultSession string                       `json:"default_session,omitempty"`
	Heartbeat      state.HeartbeatRecord        `json:"heartbeat"`
	RecentCommands int                          `json:"recent_commands"`
}

func buildStatusReport(snap state.Snapshot) statusReport {
	report := statusReport{
		Connected:      snap.Connected,
		Sessions:       snap.Sessions,
		DefaultSession: snap.DefaultSession,
		Heartbeat:      snap.Heartbeat,
		RecentCommands: len(snap.Recent),
	}
	if snap.Connected {
		report.Host = snap.Host
		report.Port = snap.Port
		report.ConnectedAt = snap.ConnectedAt.UTC().Format(time.RFC3339)
	}
	return report
}

func (h *ToolHandler) toolStatus(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	snap := h.st.Snapshot()
	summary := "Not connected"
	if snap.Connected {
		summary = fmt.Sprintf("Connected to %s:%d, %d session(s)", snap.Host, snap.Port, len(snap.Sessions))
	}
	return jsonResult(req, summary, buildStatusReport(snap))
}

func (h *ToolHandler) toolNewSession(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	reply, err := h.send(map[string]any{"op": "clone"}, 0)
	if err != nil {
		return errorResult(req, err)
	}
	if reply.NewSession == "" {
		return errorResult(req, nrepl.Errorf(nrepl.KindEvalError, "clone reply carried no new-session id"))
	}

	h.st.AddSession(reply.NewSession)
	if h.st.DefaultSession() == "" {
		h.st.SetDefaultSession(reply.NewSession)
	}
	return jsonResult(req, "", map[string]string{"new-session": reply.NewSession})
}

func (h *ToolHandler) toolDescribe(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	reply, err := h.send(map[string]any{"op": "describe", "verbose?": "true"}, 0)
	if err != nil {
		return errorResult(req, err)
	}

	ops := describeOpsOf(reply)
	h.st.SetDescribeOps(ops)

	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	body := map[string]any{"ops": names}
	if versions, ok := reply.Extra["versions"]; ok {
		body["versions"] = versions
	}
	return jsonResult(req, fmt.Sprintf("Server advertises %d operation(s)", len(names)), body)
}

func (h *ToolHandler) toolRaw(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	var params struct {
		Message map[string]any `json:"message"`
		Session string         `json:"session"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return errorResult(req, nrepl.Wrap(nrepl.KindSchema, "parse raw arguments", err))
	}
	if len(params.Message) == 0 {
		return errorResult(req, nrepl.Errorf(nrepl.KindSchema, "raw message must carry at least an op"))
	}

	op := make(map[string]any, len(params.Message)+1)
	for k, v := range params.Message {
		op[k] = v
	}
	if session := h.resolveSession(params.Session); session != "" {
		if _, present := op["session"]; !present {
			op["session"] = session
		}
	}

	reply, err := h.send(op, 0)
	if err != nil {
		return errorResult(req, err)
	}
	return jsonResult(req, "", rawReplyBody(reply))
}

// rawReplyBody projects a merged reply into a JSON object for the raw tool.
func rawReplyBody(reply *nrepl.Reply) map[string]any {
	body := map[string]any{"status": reply.Status}
	setIf := func(key, val string) {
		if val != "" {
			body[key] = val
		}
	}
	setIf("value", reply.Value)
	setIf("out", reply.Out)
	setIf("err", reply.Err)
	setIf("ex", reply.Ex)
	setIf("root-ex", reply.RootEx)
	setIf("ns", reply.NS)
	setIf("session", reply.Session)
	setIf("new-session", reply.NewSession)
	for k, v := range reply.Extra {
		body[k] = v
	}
	return body
}

// describeOpsOf extracts the advertised op set from a describe reply.
func describeOpsOf(reply *nrepl.Reply) map[string]bool {
	ops := map[string]bool{}
	if raw, ok := reply.Extra["ops"].(map[string]any); ok {
		for op := range raw {
			ops[op] = true
		}
	}
	return ops
}

// describeOps returns the cached advertised-op set, fetching it once per
// connection. The wrapper tools use it to pick native ops over synthesized
// eval fallbacks; the decision is re-made after every reconnect because the
// cache is cleared with the connection.
func (h *ToolHandler) describeOps() map[string]bool {
	if ops := h.st.DescribeOps(); ops != nil {
		return ops
	}
	reply, err := h.send(map[string]any{"op": "describe"}, 0)
	if err != nil {
		logrus.WithError(err).Debug("describe probe failed; assuming baseline ops")
		return map[string]bool{}
	}
	ops := describeOpsOf(reply)
	h.st.SetDescribeOps(ops)
	return ops
}
