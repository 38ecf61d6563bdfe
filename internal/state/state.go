// Package state holds the bridge's process-wide mutable state: the active
// nREPL connection, known sessions, the recent-command ring, heartbeat
// metrics, and configuration.
//
// The whole structure lives behind an atomic pointer. Readers take an
// immutable snapshot; mutators copy, modify, and compare-and-swap. There are
// no per-field locks.
package state

import (
	"sync/atomic"
	"time"

	"github.com/franks42/mcp-nrepl-bridge/internal/nrepl"
)

// Defaults applied by New for zero-valued configuration fields.
const (
	DefaultRecentCommands    = 10
	DefaultEvalTimeout       = 30 * time.Second
	DefaultHeartbeatInterval = 45 * time.Second
)

// Config is the bridge configuration resolved once at bootstrap.
type Config struct {
	Debug             bool
	Workspace         string
	HTTPPort          int
	FixedPort         int
	EvalTimeout       time.Duration
	HeartbeatInterval time.Duration
	RecentCommandCap  int
}

// SessionInfo is the local record kept per backend session.
type SessionInfo struct {
	Created  time.Time `json:"created"`
	LastUsed time.Time `json:"last_used"`
}

// CommandRecord is one entry in the recent-command ring.
type CommandRecord struct {
	Code      string    `json:"code"`
	Value     string    `json:"value,omitempty"`
	Out       string    `json:"out,omitempty"`
	Err       string    `json:"err,omitempty"`
	Ex        string    `json:"ex,omitempty"`
	Session   string    `json:"session,omitempty"`
	NS        string    `json:"ns,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HeartbeatRecord tracks liveness-probe history.
type HeartbeatRecord struct {
	LastProbe           time.Time `json:"last_probe"`
	LastOutcome         string    `json:"last_outcome,omitempty"` // "ok" or "fail"
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastTest            time.Time `json:"last_test"`
	LastTestPassed      bool      `json:"last_test_passed"`
}

// Snapshot is a consistent, caller-owned view of the bridge state.
type Snapshot struct {
	Connected      bool
	Host           string
	Port           int
	ConnectedAt    time.Time
	Sessions       map[string]SessionInfo
	DefaultSession string
	Recent         []CommandRecord
	Heartbeat      HeartbeatRecord
	Config         Config
	DescribeOps    map[string]bool
}

// inner is the swapped-as-a-whole state record. All reference-typed fields
// are treated as immutable once published; mutators replace them.
type inner struct {
	client         *nrepl.Client
	host           string
	port           int
	connectedAt    time.Time
	sessions       map[string]SessionInfo
	defaultSession string
	recent         []CommandRecord
	heartbeat      HeartbeatRecord
	config         Config
	describeOps    map[string]bool
}

// Store is the process-wide state holder.
type Store struct {
	p atomic.Pointer[inner]
}

// New creates a Store carrying cfg and no connection.
func New(cfg Config) *Store {
	if cfg.RecentCommandCap <= 0 {
		cfg.RecentCommandCap = DefaultRecentCommands
	}
	if cfg.EvalTimeout <= 0 {
		cfg.EvalTimeout = DefaultEvalTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	s := &Store{}
	s.p.Store(&inner{
		sessions: map[string]SessionInfo{},
		config:   cfg,
	})
	return s
}

// update runs fn against a copy of the current state until the swap lands.
func (s *Store) update(fn func(st *inner)) {
	for {
		old := s.p.Load()
		next := *old
		fn(&next)
		if s.p.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Snapshot returns a consistent copy of the state. Maps and slices are
// duplicated so callers can hold the result indefinitely.
func (s *Store) Snapshot() Snapshot {
	st := s.p.Load()
	snap := Snapshot{
		Connected:      st.client != nil,
		Host:           st.host,
		Port:           st.port,
		ConnectedAt:    st.connectedAt,
		DefaultSession: st.defaultSession,
		Heartbeat:      st.heartbeat,
		Config:         st.config,
		Sessions:       make(map[string]SessionInfo, len(st.sessions)),
		Recent:         make([]CommandRecord, len(st.recent)),
	}
	for id, info := range st.sessions {
		snap.Sessions[id] = info
	}
	copy(snap.Recent, st.recent)
	if st.describeOps != nil {
		snap.DescribeOps = make(map[string]bool, len(st.describeOps))
		for op := range st.describeOps {
			snap.DescribeOps[op] = true
		}
	}
	return snap
}

// Config returns the bootstrap configuration.
func (s *Store) Config() Config { return s.p.Load().config }

// Client returns the active connection, or nil.
func (s *Store) Client() *nrepl.Client { return s.p.Load().client }

// SetClient installs a new connection, closing and fully replacing any prior
// one. Sessions and the cached op set belong to a connection and are reset.
func (s *Store) SetClient(c *nrepl.Client, host string, port int) {
	var old *nrepl.Client
	s.update(func(st *inner) {
		old = st.client
		st.client = c
		st.host = host
		st.port = port
		st.connectedAt = time.Now()
		st.sessions = map[string]SessionInfo{}
		st.defaultSession = ""
		st.describeOps = nil
		st.heartbeat.ConsecutiveFailures = 0
	})
	if old != nil {
		old.Close()
	}
}

// ClearConnection drops and closes the active connection, if any.
func (s *Store) ClearConnection() {
	var old *nrepl.Client
	s.update(func(st *inner) {
		old = st.client
		st.client = nil
		st.sessions = map[string]SessionInfo{}
		st.defaultSession = ""
		st.describeOps = nil
	})
	if old != nil {
		old.Close()
	}
}

// AddSession records a backend-issued session id.
func (s *Store) AddSession(id string) {
	now := time.Now()
	s.update(func(st *inner) {
		sessions := copySessions(st.sessions)
		sessions[id] = SessionInfo{Created: now, LastUsed: now}
		st.sessions = sessions
	})
}

// TouchSession refreshes a session's last-used time; unknown ids are added,
// since the backend may have issued them implicitly.
func (s *Store) TouchSession(id string) {
	if id == "" {
		return
	}
	now := time.Now()
	s.update(func(st *inner) {
		sessions := copySessions(st.sessions)
		info, ok := sessions[id]
		if !ok {
			info = SessionInfo{Created: now}
		}
		info.LastUsed = now
		sessions[id] = info
		st.sessions = sessions
	})
}

// SetDefaultSession records the session used when a tool passes none.
func (s *Store) SetDefaultSession(id string) {
	s.update(func(st *inner) { st.defaultSession = id })
}

// DefaultSession returns the current default session id, or empty.
func (s *Store) DefaultSession() string { return s.p.Load().defaultSession }

// RecordCommand appends to the recent-command ring, evicting the oldest
// entry once the configured cap is reached.
func (s *Store) RecordCommand(rec CommandRecord) {
	s.update(func(st *inner) {
		limit := st.config.RecentCommandCap
		recent := make([]CommandRecord, 0, len(st.recent)+1)
		recent = append(recent, st.recent...)
		recent = append(recent, rec)
		if len(recent) > limit {
			recent = recent[len(recent)-limit:]
		}
		st.recent = recent
	})
}

// RecordProbe folds one heartbeat probe outcome into the state and returns
// the consecutive-failure count after the probe.
func (s *Store) RecordProbe(ok bool) int {
	var failures int
	s.update(func(st *inner) {
		st.heartbeat.LastProbe = time.Now()
		if ok {
			st.heartbeat.LastOutcome = "ok"
			st.heartbeat.ConsecutiveFailures = 0
		} else {
			st.heartbeat.LastOutcome = "fail"
			st.heartbeat.ConsecutiveFailures++
		}
		failures = st.heartbeat.ConsecutiveFailures
	})
	return failures
}

// RecordTest stores the outcome of the last on-demand health check.
func (s *Store) RecordTest(passed bool) {
	s.update(func(st *inner) {
		st.heartbeat.LastTest = time.Now()
		st.heartbeat.LastTestPassed = passed
	})
}

// SetDescribeOps caches the op set advertised by the backend's describe
// reply. The cache is dropped on reconnect.
func (s *Store) SetDescribeOps(ops map[string]bool) {
	frozen := make(map[string]bool, len(ops))
	for op := range ops {
		frozen[op] = true
	}
	s.update(func(st *inner) { st.describeOps = frozen })
}

// DescribeOps returns the cached op set, or nil when describe has not run
// on this connection.
func (s *Store) DescribeOps() map[string]bool { return s.p.Load().describeOps }

func copySessions(src map[string]SessionInfo) map[string]SessionInfo {
	dst := make(map[string]SessionInfo, len(src)+1)
	for id, info := range src {
		dst[id] = info
	}
	return dst
}
