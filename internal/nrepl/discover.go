// discover.go — Port discovery via the workspace sentinel file.
// Editors and REPL launchers drop the server's TCP port into .nrepl-port at
// the workspace root; the bridge reads it instead of requiring configuration.
package nrepl

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// PortFileName is the conventional sentinel file written by nREPL launchers.
const PortFileName = ".nrepl-port"

// discoverPollInterval is how often WaitForPort re-checks the workspace.
const discoverPollInterval = 100 * time.Millisecond

// ReadPortFile reads and parses <workspace>/.nrepl-port. A missing file is
// reported as a discovery timeout (the caller decides whether to wait); an
// unparsable file is a discovery-parse error.
func ReadPortFile(workspace string) (int, error) {
	path := filepath.Join(workspace, PortFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, Wrap(KindDiscoveryTimeout, "no port file at "+path, err)
		}
		return 0, Wrap(KindDiscoveryParse, "read "+path, err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || port < 1 || port > 65535 {
		return 0, Errorf(KindDiscoveryParse, "port file %s holds %q, want a TCP port", path, strings.TrimSpace(string(raw)))
	}
	return port, nil
}

// WaitForPort polls the workspace until the sentinel file appears or ctx
// expires. Parse failures abort immediately; only absence is retried.
func WaitForPort(ctx context.Context, workspace string) (int, error) {
	ticker := time.NewTicker(discoverPollInterval)
	defer ticker.Stop()

	for {
		port, err := ReadPortFile(workspace)
		if err == nil {
			return port, nil
		}
		if KindOf(err) != KindDiscoveryTimeout {
			return 0, err
		}
		select {
		case <-ctx.Done():
			return 0, Wrap(KindDiscoveryTimeout, "gave up waiting for "+PortFileName+" in "+workspace, ctx.Err())
		case <-ticker.C:
		}
	}
}
