// tools_inspect.go — Symbol inspection tools: doc, source, apropos, complete.
// doc, apropos, and complete prefer the native nREPL op (info, apropos,
// completions/complete) when the server advertises it and otherwise
// synthesize an equivalent form through eval. source always goes through
// eval with clojure.repl/source; no native op is tried for it.
package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/franks42/mcp-nrepl-bridge/internal/nrepl"
)

// qualify prepends the namespace to a bare symbol when one was given.
func qualify(symbol, ns string) string {
	if ns != "" && !strings.Contains(symbol, "/") {
		return ns + "/" + symbol
	}
	return symbol
}

func (h *ToolHandler) toolDoc(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	var params struct {
		Symbol string `json:"symbol"`
		NS     string `json:"ns"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return errorResult(req, nrepl.Wrap(nrepl.KindSchema, "parse doc arguments", err))
	}

	if h.describeOps()["info"] {
		op := map[string]any{"op": "info", "symbol": params.Symbol}
		if params.NS != "" {
			op["ns"] = params.NS
		}
		reply, err := h.send(op, 0)
		if err != nil {
			return errorResult(req, err)
		}
		if !reply.HasStatus("no-info") {
			return jsonResult(req, "Symbol info for "+params.Symbol, rawReplyBody(reply))
		}
		// Fall through to the eval path when the native op knows nothing.
	}

	code := fmt.Sprintf("(clojure.repl/doc %s)", qualify(params.Symbol, params.NS))
	return h.inspectEval(req, code)
}

func (h *ToolHandler) toolSource(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	var params struct {
		Symbol string `json:"symbol"`
		NS     string `json:"ns"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return errorResult(req, nrepl.Wrap(nrepl.KindSchema, "parse source arguments", err))
	}

	code := fmt.Sprintf("(clojure.repl/source %s)", qualify(params.Symbol, params.NS))
	return h.inspectEval(req, code)
}

func (h *ToolHandler) toolApropos(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	var params struct {
		Query    string `json:"query"`
		SearchNS string `json:"search-ns"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return errorResult(req, nrepl.Wrap(nrepl.KindSchema, "parse apropos arguments", err))
	}

	if h.describeOps()["apropos"] {
		op := map[string]any{"op": "apropos", "query": params.Query}
		if params.SearchNS != "" {
			op["search-ns"] = params.SearchNS
		}
		reply, err := h.send(op, 0)
		if err != nil {
			return errorResult(req, err)
		}
		return jsonResult(req, "Matches for "+params.Query, rawReplyBody(reply))
	}

	var code string
	if params.SearchNS != "" {
		code = fmt.Sprintf("(filter #(.startsWith (str %%) %q) (map str (keys (ns-publics '%s))))", params.Query, params.SearchNS)
		code = fmt.Sprintf("(vec %s)", code)
	} else {
		code = fmt.Sprintf("(vec (clojure.repl/apropos %q))", params.Query)
	}
	return h.inspectEval(req, code)
}

func (h *ToolHandler) toolComplete(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	var params struct {
		Prefix string `json:"prefix"`
		NS     string `json:"ns"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return errorResult(req, nrepl.Wrap(nrepl.KindSchema, "parse complete arguments", err))
	}

	ops := h.describeOps()
	for _, nativeOp := range []string{"completions", "complete"} {
		if !ops[nativeOp] {
			continue
		}
		op := map[string]any{"op": nativeOp, "prefix": params.Prefix}
		if params.NS != "" {
			op["ns"] = params.NS
		}
		reply, err := h.send(op, 0)
		if err != nil {
			return errorResult(req, err)
		}
		return jsonResult(req, "Completions for "+params.Prefix, rawReplyBody(reply))
	}

	// No completion op: match interned symbols by prefix in the target ns.
	ns := params.NS
	if ns == "" {
		ns = "user"
	}
	code := fmt.Sprintf(
		"(vec (sort (filter #(.startsWith %% %q) (map str (concat (keys (ns-publics '%s)) (keys (ns-refers '%s)))))))",
		params.Prefix, ns, ns)
	return h.inspectEval(req, code)
}

// inspectEval submits synthesized inspection code through eval and renders
// the reply. Inspection output arrives on stdout, so the rendered reply is
// the payload.
func (h *ToolHandler) inspectEval(req JSONRPCRequest, code string) JSONRPCResponse {
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
