// http.go — HTTP transport: POST /mcp, OPTIONS /mcp preflight, GET /health.
// Requests are handled concurrently; serialization toward the backend
// happens inside the nREPL client, not here.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// maxPostBodySize bounds one /mcp request body.
const maxPostBodySize = 10 * 1024 * 1024

// httpTransport serves the MCP endpoint plus a health probe.
type httpTransport struct {
	handler   *MCPHandler
	startTime time.Time
}

func newHTTPTransport(handler *MCPHandler) *httpTransport {
	return &httpTransport{handler: handler, startTime: time.Now()}
}

// corsMiddleware adds permissive cross-origin headers; the bridge assumes a
// trusted local boundary and makes no authentication claim.
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// jsonResponse is a JSON response helper.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("encode HTTP response")
	}
}

func (t *httpTransport) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonResponse(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPostBodySize)
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		t.writeJSONRPCError(w, nil, codeParseError, "Read error: "+err.Error())
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		// Application-level failures still answer 200 with an
		// error-bearing JSON-RPC body.
		t.writeJSONRPCError(w, extractJSONRPCID(bodyBytes), codeParseError, "Parse error: "+err.Error())
		return
	}

	resp := t.handler.HandleRequest(req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	jsonResponse(w, http.StatusOK, resp)
}

// writeJSONRPCError answers 200 OK with a JSON-RPC error body.
func (t *httpTransport) writeJSONRPCError(w http.ResponseWriter, id any, code int, message string) {
	jsonResponse(w, http.StatusOK, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
	})
}

// extractJSONRPCID pulls the id out of an otherwise unparsable body so the
// error response can still reflect it.
func extractJSONRPCID(body []byte) any {
	var partial map[string]any
	if json.Unmarshal(body, &partial) == nil {
		if id, ok := partial["id"]; ok {
			return id
		}
	}
	return nil
}

func (t *httpTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonResponse(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}
	snap := t.handler.tools.st.Snapshot()
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime_ms": time.Since(t.startTime).Milliseconds(),
		"connected": snap.Connected,
	})
}

func (t *httpTransport) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", corsMiddleware(t.handleMCP))
	mux.HandleFunc("/health", corsMiddleware(t.handleHealth))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})
	return mux
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (t *httpTransport) Run(ctx context.Context, port int) error {
	server := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: t.mux(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithField("addr", server.Addr).Info("HTTP transport listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
