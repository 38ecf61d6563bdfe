// heartbeat.go — Background liveness probe.
// While a connection exists, a trivial evaluation runs on every tick. After
// heartbeatFailureThreshold consecutive failures the connection is declared
// dead and cleared; the bridge never reconnects on its own.
package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	heartbeatFailureThreshold = 3
	heartbeatProbeTimeout     = 5 * time.Second
)

// Heartbeat owns the probe loop.
type Heartbeat struct {
	tools    *ToolHandler
	interval time.Duration
}

// NewHeartbeat creates a heartbeat over the shared tool handler.
func NewHeartbeat(tools *ToolHandler) *Heartbeat {
	return &Heartbeat{
		tools:    tools,
		interval: tools.st.Config().HeartbeatInterval,
	}
}

// Run probes until ctx is cancelled.
func (hb *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb.tick()
		}
	}
}

// tick runs one probe. Ticks while disconnected are no-ops, which is also
// what stops probing after the failure threshold clears the connection.
func (hb *Heartbeat) tick() {
	if hb.tools.st.Client() == nil {
		return
	}

	_, err := hb.tools.send(map[string]any{"op": "eval", "code": "1"}, heartbeatProbeTimeout)
	if err == nil {
		hb.tools.st.RecordProbe(true)
		logrus.Debug("heartbeat ok")
		return
	}

	failures := hb.tools.st.RecordProbe(false)
	logrus.WithError(err).WithField("consecutive_failures", failures).Warn("heartbeat probe failed")
	if failures >= heartbeatFailureThreshold && hb.tools.st.Client() != nil {
		logrus.Warn("heartbeat failure threshold reached; marking disconnected")
		hb.tools.st.ClearConnection()
	}
}
