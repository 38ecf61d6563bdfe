// tools_eval.go — Evaluation-family tools: eval, require, load-file,
// interrupt, stacktrace.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/franks42/mcp-nrepl-bridge/internal/nrepl"
	"github.com/franks42/mcp-nrepl-bridge/internal/state"
)

func (h *ToolHandler) toolEval(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	var params struct {
		Code      string `json:"code"`
		Session   string `json:"session"`
		NS        string `json:"ns"`
		TimeoutMS int    `json:"timeout_ms"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return errorResult(req, nrepl.Wrap(nrepl.KindSchema, "parse eval arguments", err))
	}

	op := map[string]any{"op": "eval", "code": params.Code}
	session := h.resolveSession(params.Session)
	if session != "" {
		op["session"] = session
	}
	if params.NS != "" {
		op["ns"] = params.NS
	}

	reply, err := h.evalOp(op, params.Code, session, time.Duration(params.TimeoutMS)*time.Millisecond)
	if err != nil {
		return errorResult(req, err)
	}
	if reply.IsError() {
		return errorResult(req, evalErrorOf(reply))
	}
	return evalResult(req, renderReply(reply), reply.Session, reply.NS)
}

// evalOp runs one evaluation exchange and records it in the recent-command
// ring regardless of outcome.
func (h *ToolHandler) evalOp(op map[string]any, code, session string, timeout time.Duration) (*nrepl.Reply, error) {
	reply, err := h.send(op, timeout)

	rec := state.CommandRecord{Code: code, Session: session, Timestamp: time.Now()}
	if reply != nil {
		rec.Value = reply.Value
		rec.Out = reply.Out
		rec.Err = reply.Err
		rec.Ex = reply.Ex
		rec.NS = reply.NS
		if reply.Session != "" {
			rec.Session = reply.Session
		}
	} else if err != nil {
		rec.Err = err.Error()
	}
	h.st.RecordCommand(rec)

	return reply, err
}

// evalErrorOf turns an error-bearing merged reply into an eval-error carrying
// the exception class followed by the server's error output.
func evalErrorOf(reply *nrepl.Reply) error {
	detail := reply.Ex
	if errText := strings.TrimSpace(reply.Err); errText != "" {
		if detail == "" {
			detail = errText
		} else {
			detail += ": " + errText
		}
	}
	if detail == "" {
		detail = "evaluation failed"
	}
	e := nrepl.Errorf(nrepl.KindEvalError, "%s", detail)
	if reply.RootEx != "" && reply.RootEx != reply.Ex {
		e.Msg += " (root: " + reply.RootEx + ")"
	}
	return e
}

func (h *ToolHandler) toolRequire(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	var params struct {
		Namespace string `json:"namespace"`
		As        string `json:"as"`
		Refer     string `json:"refer"`
		Reload    bool   `json:"reload"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return errorResult(req, nrepl.Wrap(nrepl.KindSchema, "parse require arguments", err))
	}

	code := buildRequireForm(params.Namespace, params.As, params.Refer, params.Reload)
	session := h.resolveSession("")
	op := map[string]any{"op": "eval", "code": code}
	if session != "" {
		op["session"] = session
	}

	reply, err := h.evalOp(op, code, session, 0)
	if err != nil {
		return errorResult(req, err)
	}
	if reply.IsError() {
		return errorResult(req, evalErrorOf(reply))
	}
	return evalResult(req, renderReply(reply), reply.Session, reply.NS)
}

// buildRequireForm synthesizes the require call submitted through eval.
func buildRequireForm(namespace, as, refer string, reload bool) string {
	var spec strings.Builder
	fmt.Fprintf(&spec, "'%s", namespace)
	if as != "" {
		fmt.Fprintf(&spec, " :as %s", as)
	}
	if refer == "all" {
		spec.WriteString(" :refer :all")
	} else if refer != "" {
		fmt.Fprintf(&spec, " :refer [%s]", refer)
	}

	form := spec.String()
	if as != "" || refer != "" {
		form = "[" + strings.TrimPrefix(form, "'") + "]"
		form = "'" + form
	}
	if reload {
		return fmt.Sprintf("(require %s :reload)", form)
	}
	return fmt.Sprintf("(require %s)", form)
}

func (h *ToolHandler) toolLoadFile(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	var params struct {
		FilePath string `json:"file-path"`
		Session  string `json:"session"`
		NS       string `json:"ns"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return errorResult(req, nrepl.Wrap(nrepl.KindSchema, "parse load-file arguments", err))
	}

	content, err := os.ReadFile(params.FilePath)
	if err != nil {
		return errorResult(req, nrepl.Wrap(nrepl.KindIO, "read "+params.FilePath, err))
	}

	op := map[string]any{
		"op":        "load-file",
		"file":      string(content),
		"file-path": params.FilePath,
		"file-name": baseName(params.FilePath),
	}
	session := h.resolveSession(params.Session)
	if session != "" {
		op["session"] = session
	}
	if params.NS != "" {
		op["ns"] = params.NS
	}

	reply, err := h.send(op, 0)
	if err != nil {
		return errorResult(req, err)
	}
	if reply.IsError() {
		return errorResult(req, evalErrorOf(reply))
	}
	return evalResult(req, renderReply(reply), reply.Session, reply.NS)
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func (h *ToolHandler) toolInterrupt(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	var params struct {
		Session string `json:"session"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return errorResult(req, nrepl.Wrap(nrepl.KindSchema, "parse interrupt arguments", err))
		}
	}

	op := map[string]any{"op": "interrupt"}
	if session := h.resolveSession(params.Session); session != "" {
		op["session"] = session
	}

	reply, err := h.send(op, 0)
	if err != nil {
		return errorResult(req, err)
	}
	if reply.HasStatus("interrupted") || reply.HasStatus("done") {
		return textResult(req, "Interrupt delivered")
	}
	return textResult(req, "Interrupt sent; server replied with status "+strings.Join(reply.Status, ", "))
}

func (h *ToolHandler) toolStacktrace(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	var params struct {
		Session string `json:"session"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return errorResult(req, nrepl.Wrap(nrepl.KindSchema, "parse stacktrace arguments", err))
		}
	}
	session := h.resolveSession(params.Session)

	// cider-nrepl servers expose a dedicated op; plain servers get the
	// classic print-stack-trace form through eval.
	if h.describeOps()["stacktrace"] {
		op := map[string]any{"op": "stacktrace"}
		if session != "" {
			op["session"] = session
		}
		reply, err := h.send(op, 0)
		if err != nil {
			return errorResult(req, err)
		}
		return jsonResult(req, "Stacktrace", rawReplyBody(reply))
	}

	code := "(if *e (clojure.repl/pst *e 50) (println \"no exception\"))"
	op := map[string]any{"op": "eval", "code": code}
	if session != "" {
		op["session"] = session
	}
	reply, err := h.evalOp(op, code, session, 0)
	if err != nil {
		return errorResult(req, err)
	}
	return evalResult(req, renderReply(reply), reply.Session, reply.NS)
}
