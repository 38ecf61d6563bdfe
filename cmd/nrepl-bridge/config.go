// config.go — Environment-driven configuration.
// The bridge is launched by MCP hosts that pass no argv, so every knob is an
// environment variable.
package main

import (
	"os"
	"strconv"
	"time"

	"github.com/franks42/mcp-nrepl-bridge/internal/state"
)

const (
	defaultEvalTimeout       = state.DefaultEvalTimeout
	defaultHeartbeatInterval = state.DefaultHeartbeatInterval
)

// loadConfig resolves the bridge configuration from the environment.
//
//	DEBUG                  enable debug logging
//	HTTP_PORT              serve MCP over HTTP instead of stdio
//	WORKSPACE              directory holding .nrepl-port (default: cwd)
//	PORT                   fixed nREPL port, bypasses discovery
//	NREPL_EVAL_TIMEOUT_MS  per-send deadline
//	HEARTBEAT_INTERVAL_MS  liveness probe interval
func loadConfig() state.Config {
	cfg := state.Config{
		Debug:             envBool("DEBUG"),
		HTTPPort:          envInt("HTTP_PORT", 0),
		FixedPort:         envInt("PORT", 0),
		EvalTimeout:       envDurationMS("NREPL_EVAL_TIMEOUT_MS", defaultEvalTimeout),
		HeartbeatInterval: envDurationMS("HEARTBEAT_INTERVAL_MS", defaultHeartbeatInterval),
		RecentCommandCap:  state.DefaultRecentCommands,
	}

	cfg.Workspace = os.Getenv("WORKSPACE")
	if cfg.Workspace == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.Workspace = cwd
		} else {
			cfg.Workspace = "."
		}
	}
	return cfg
}

func envBool(name string) bool {
	v := os.Getenv(name)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationMS(name string, fallback time.Duration) time.Duration {
	ms := envInt(name, 0)
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
