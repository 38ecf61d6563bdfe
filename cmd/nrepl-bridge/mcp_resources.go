// mcp_resources.go — Read-only MCP resources over the state core.
package main

import (
	"encoding/json"

	"github.com/franks42/mcp-nrepl-bridge/internal/state"
)

const (
	resourceRecentCommands = "nrepl://recent-commands"
	resourceStatus         = "nrepl://status"
)

func mcpResources() []MCPResource {
	return []MCPResource{
		{
			URI:         resourceRecentCommands,
			Name:        "Recent evaluations",
			Description: "The last evaluations submitted through the bridge, newest last",
			MimeType:    "application/json",
		},
		{
			URI:         resourceStatus,
			Name:        "Bridge status",
			Description: "Connection, session, and heartbeat snapshot",
			MimeType:    "application/json",
		},
	}
}

// resolveResourceContent renders one resource URI from a state snapshot.
func resolveResourceContent(st *state.Store, uri string) (MCPResourceContent, bool) {
	snap := st.Snapshot()

	var body any
	switch uri {
	case resourceRecentCommands:
		body = map[string]any{"commands": snap.Recent, "cap": snap.Config.RecentCommandCap}
	case resourceStatus:
		body = buildStatusReport(snap)
	default:
		return MCPResourceContent{}, false
	}

	text, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return MCPResourceContent{}, false
	}
	return MCPResourceContent{URI: uri, MimeType: "application/json", Text: string(text)}, true
}
