// health.go — The health-check tool.
// Produces a six-section diagnostic: environment, connection, core
// functionality, tool integration, optional performance, and configuration.
// Sections are independent; a failure in one never short-circuits the rest.
package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/franks42/mcp-nrepl-bridge/internal/nrepl"
	"github.com/franks42/mcp-nrepl-bridge/internal/state"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFailed   = "failed"
)

// healthSection is one named section of the diagnostic report.
type healthSection struct {
	Status  string   `json:"status"`
	Note    string   `json:"note"`
	Details []string `json:"details,omitempty"`
}

// healthReport is the full diagnostic.
type healthReport struct {
	Overall         string         `json:"overall"`
	Environment     healthSection  `json:"environment"`
	Connection      healthSection  `json:"connection"`
	Core            healthSection  `json:"core_functionality"`
	ToolIntegration healthSection  `json:"tool_integration"`
	Performance     *healthSection `json:"performance,omitempty"`
	Configuration   healthSection  `json:"configuration"`
}

// coreChecks are the functional probes run against a live connection. Each
// wants either a specific value or specific captured output.
var coreChecks = []struct {
	name    string
	code    string
	wantVal string
	wantOut string
}{
	{name: "arithmetic", code: "(+ 1 2)", wantVal: "3"},
	{name: "string concatenation", code: `(str "a" "b")`, wantVal: `"ab"`},
	{name: "collection counting", code: "(count [1 2 3])", wantVal: "3"},
	{name: "output capture", code: `(println "hc")`, wantOut: "hc\n"},
}

func (h *ToolHandler) toolHealthCheck(req JSONRPCRequest, args json.RawMessage) JSONRPCResponse {
	var params struct {
		IncludePerformance bool `json:"include_performance"`
		Verbose            bool `json:"verbose"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return errorResult(req, nrepl.Wrap(nrepl.KindSchema, "parse health-check arguments", err))
		}
	}

	snap := h.st.Snapshot()
	report := healthReport{
		Environment:     h.checkEnvironment(snap.Connected),
		Connection:      checkConnection(snap),
		Core:            h.checkCoreFunctionality(snap.Connected),
		ToolIntegration: h.checkToolIntegration(snap.Connected),
		Configuration:   checkConfiguration(snap),
	}
	if params.IncludePerformance {
		perf := h.checkPerformance(snap.Connected)
		report.Performance = &perf
	}

	report.Overall = worstStatus(report)
	h.st.RecordTest(report.Overall == statusOK)

	if !params.Verbose {
		report.Environment.Details = nil
		report.Connection.Details = nil
		report.Core.Details = nil
		report.ToolIntegration.Details = nil
		if report.Performance != nil {
			report.Performance.Details = nil
		}
		report.Configuration.Details = nil
	}

	return jsonResult(req, "Health check: "+report.Overall, report)
}

func worstStatus(r healthReport) string {
	sections := []healthSection{r.Environment, r.Connection, r.Core, r.ToolIntegration, r.Configuration}
	if r.Performance != nil {
		sections = append(sections, *r.Performance)
	}
	worst := statusOK
	for _, s := range sections {
		if s.Status == statusFailed {
			return statusFailed
		}
		if s.Status == statusDegraded {
			worst = statusDegraded
		}
	}
	return worst
}

func (h *ToolHandler) checkEnvironment(connected bool) healthSection {
	details := []string{
		"bridge " + version,
		"go " + runtime.Version(),
		"workspace " + h.st.Config().Workspace,
	}

	if !connected {
		return healthSection{
			Status:  statusDegraded,
			Note:    "bridge running; backend versions unavailable while disconnected",
			Details: details,
		}
	}

	reply, err := h.send(map[string]any{"op": "describe"}, 0)
	if err != nil {
		return healthSection{Status: statusDegraded, Note: "describe failed: " + err.Error(), Details: details}
	}
	if versions, ok := reply.Extra["versions"].(map[string]any); ok {
		names := make([]string, 0, len(versions))
		for name := range versions {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			details = append(details, fmt.Sprintf("%s %s", name, renderVersion(versions[name])))
		}
	}
	return healthSection{Status: statusOK, Note: "backend reachable, versions collected", Details: details}
}

// renderVersion formats a describe version entry, which servers report
// either as a plain string or as a components dictionary.
func renderVersion(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val["version-string"].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func checkConnection(snap state.Snapshot) healthSection {
	if !snap.Connected {
		return healthSection{Status: statusFailed, Note: "no active nREPL connection"}
	}

	details := []string{fmt.Sprintf("address %s:%d", snap.Host, snap.Port)}
	hb := snap.Heartbeat
	if hb.LastProbe.IsZero() {
		details = append(details, "no heartbeat probe yet")
		return healthSection{Status: statusOK, Note: fmt.Sprintf("connected to %s:%d", snap.Host, snap.Port), Details: details}
	}

	details = append(details, fmt.Sprintf("last probe %s ago: %s", time.Since(hb.LastProbe).Round(time.Millisecond), hb.LastOutcome))
	if hb.LastOutcome == "fail" {
		return healthSection{
			Status:  statusDegraded,
			Note:    fmt.Sprintf("last heartbeat probe failed (%d consecutive)", hb.ConsecutiveFailures),
			Details: details,
		}
	}
	return healthSection{Status: statusOK, Note: fmt.Sprintf("connected to %s:%d, heartbeat healthy", snap.Host, snap.Port), Details: details}
}

func (h *ToolHandler) checkCoreFunctionality(connected bool) healthSection {
	if !connected {
		return healthSection{Status: statusFailed, Note: "not connected"}
	}

	var details []string
	failures := 0
	for _, check := range coreChecks {
		reply, err := h.send(map[string]any{"op": "eval", "code": check.code}, 0)
		switch {
		case err != nil:
			failures++
			details = append(details, fmt.Sprintf("%s: error %v", check.name, err))
		case check.wantVal != "" && reply.Value != check.wantVal:
			failures++
			details = append(details, fmt.Sprintf("%s: value %q, want %q", check.name, reply.Value, check.wantVal))
		case check.wantOut != "" && reply.Out != check.wantOut:
			failures++
			details = append(details, fmt.Sprintf("%s: out %q, want %q", check.name, reply.Out, check.wantOut))
		default:
			details = append(details, check.name+": ok")
		}
	}

	switch {
	case failures == 0:
		return healthSection{Status: statusOK, Note: "all core evaluations passed", Details: details}
	case failures < len(coreChecks):
		return healthSection{Status: statusDegraded, Note: fmt.Sprintf("%d of %d core evaluations failed", failures, len(coreChecks)), Details: details}
	default:
		return healthSection{Status: statusFailed, Note: "every core evaluation failed", Details: details}
	}
}

// integrationOps are the operations the tool catalog leans on.
var integrationOps = []string{"eval", "clone", "describe", "load-file", "interrupt"}

func (h *ToolHandler) checkToolIntegration(connected bool) healthSection {
	if !connected {
		return healthSection{Status: statusFailed, Note: "not connected"}
	}

	ops := h.describeOps()
	if len(ops) == 0 {
		return healthSection{Status: statusDegraded, Note: "server advertised no operations"}
	}

	var missing, details []string
	for _, op := range integrationOps {
		if ops[op] {
			details = append(details, op+": advertised")
		} else {
			missing = append(missing, op)
			details = append(details, op+": missing")
		}
	}
	if len(missing) > 0 {
		return healthSection{
			Status:  statusDegraded,
			Note:    "missing ops: " + strings.Join(missing, ", "),
			Details: details,
		}
	}
	return healthSection{Status: statusOK, Note: fmt.Sprintf("%d operations advertised", len(ops)), Details: details}
}

// performanceSamples is how many trivial evaluations the performance section
// times.
const performanceSamples = 5

func (h *ToolHandler) checkPerformance(connected bool) healthSection {
	if !connected {
		return healthSection{Status: statusFailed, Note: "not connected"}
	}

	latencies := make([]time.Duration, 0, performanceSamples)
	for i := 0; i < performanceSamples; i++ {
		start := time.Now()
		if _, err := h.send(map[string]any{"op": "eval", "code": "1"}, 0); err != nil {
			return healthSection{Status: statusDegraded, Note: fmt.Sprintf("sample %d failed: %v", i+1, err)}
		}
		latencies = append(latencies, time.Since(start))
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	min := latencies[0]
	median := latencies[len(latencies)/2]
	max := latencies[len(latencies)-1]
	note := fmt.Sprintf("min %s / median %s / max %s over %d evaluations", min, median, max, performanceSamples)

	status := statusOK
	if median > time.Second {
		status = statusDegraded
	}
	return healthSection{Status: status, Note: note}
}

func checkConfiguration(snap state.Snapshot) healthSection {
	cfg := snap.Config
	details := []string{
		fmt.Sprintf("debug %v", cfg.Debug),
		fmt.Sprintf("eval timeout %s", cfg.EvalTimeout),
		fmt.Sprintf("heartbeat interval %s", cfg.HeartbeatInterval),
		fmt.Sprintf("recent-command cap %d", cfg.RecentCommandCap),
		"workspace " + cfg.Workspace,
	}
	if cfg.EvalTimeout <= 0 || cfg.HeartbeatInterval <= 0 {
		return healthSection{Status: statusDegraded, Note: "non-positive timeout or interval", Details: details}
	}
	return healthSection{Status: statusOK, Note: "configuration sane", Details: details}
}
