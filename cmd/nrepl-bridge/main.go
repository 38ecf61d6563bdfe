// nrepl-bridge exposes an nREPL server as MCP tools: evaluation, symbol
// inspection, session management, and diagnostics over JSON-RPC 2.0, served
// on stdio or HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/franks42/mcp-nrepl-bridge/internal/nrepl"
	"github.com/franks42/mcp-nrepl-bridge/internal/state"
)

const version = "1.2.0"

func main() {
	cfg := loadConfig()
	initLogging(cfg.Debug)
	logrus.WithFields(logrus.Fields{
		"version":   version,
		"workspace": cfg.Workspace,
	}).Info("nrepl-bridge starting")

	st := state.New(cfg)
	tools := NewToolHandler(st)
	handler := NewMCPHandler(tools)

	// Discovery at startup is best effort; tools work once the caller
	// connects explicitly.
	autoConnect(st, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go NewHeartbeat(tools).Run(ctx)

	if cfg.HTTPPort > 0 {
		if err := newHTTPTransport(handler).Run(ctx, cfg.HTTPPort); err != nil {
			logrus.WithError(err).Error("HTTP transport failed")
			os.Exit(1)
		}
		return
	}

	if err := newStdioTransport(handler, os.Stdin, os.Stdout).Run(); err != nil {
		logrus.WithError(err).Error("stdio transport failed")
		os.Exit(1)
	}
}

// autoConnect tries to reach a backend at startup: a fixed PORT wins,
// otherwise the workspace sentinel file is consulted briefly. Failure only
// logs; the connect tool remains available.
func autoConnect(st *state.Store, cfg state.Config) {
	port := cfg.FixedPort
	if port == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		discovered, err := nrepl.WaitForPort(ctx, cfg.Workspace)
		if err != nil {
			logrus.WithError(err).Debug("no nREPL port discovered at startup")
			return
		}
		port = discovered
	}

	client, err := nrepl.Dial("localhost", port)
	if err != nil {
		logrus.WithError(err).WithField("port", port).Warn("auto-connect failed")
		return
	}
	st.SetClient(client, "localhost", port)
	logrus.WithField("port", port).Info("auto-connected to nREPL server")
}
