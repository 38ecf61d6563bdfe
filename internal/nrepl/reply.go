// reply.go — Multi-message response aggregation.
// An nREPL server answers one request with a stream of messages sharing the
// request id; evaluation output may arrive in many fragments before the
// terminal value. Reply is the single record merged from that stream.
package nrepl

import "strings"

// Reply is the merged form of all response messages for one request id.
//
// Merge rule: out and err fragments are concatenated in arrival order; value,
// ex, root-ex, ns, session, and new-session take the last non-empty
// occurrence; Status is the status list of the final message. Any other keys
// land in Extra, last occurrence wins.
type Reply struct {
	Value      string
	Out        string
	Err        string
	Ex         string
	RootEx     string
	NS         string
	Session    string
	NewSession string
	Status     []string
	Extra      map[string]any
}

// merger accumulates response messages until the terminal status arrives.
type merger struct {
	reply Reply
	out   strings.Builder
	errs  strings.Builder
}

// absorb folds one response message into the merge. It reports whether the
// message carried the terminal "done" status.
func (m *merger) absorb(msg map[string]any) bool {
	if s := msgString(msg, "out"); s != "" {
		m.out.WriteString(s)
	}
	if s := msgString(msg, "err"); s != "" {
		m.errs.WriteString(s)
	}
	takeLast(&m.reply.Value, msg, "value")
	takeLast(&m.reply.Ex, msg, "ex")
	takeLast(&m.reply.RootEx, msg, "root-ex")
	takeLast(&m.reply.NS, msg, "ns")
	takeLast(&m.reply.Session, msg, "session")
	takeLast(&m.reply.NewSession, msg, "new-session")

	status := msgStatus(msg)
	if len(status) > 0 {
		m.reply.Status = status
	}

	for k, v := range msg {
		switch k {
		case "id", "out", "err", "value", "ex", "root-ex", "ns", "session", "new-session", "status":
		default:
			if m.reply.Extra == nil {
				m.reply.Extra = map[string]any{}
			}
			m.reply.Extra[k] = v
		}
	}

	for _, s := range status {
		if s == "done" {
			return true
		}
	}
	return false
}

// finalize returns the completed merge.
func (m *merger) finalize() *Reply {
	m.reply.Out = m.out.String()
	m.reply.Err = m.errs.String()
	return &m.reply
}

// HasStatus reports whether the final status list contains token.
func (r *Reply) HasStatus(token string) bool {
	for _, s := range r.Status {
		if s == token {
			return true
		}
	}
	return false
}

// IsError reports whether the backend signalled an evaluation failure.
func (r *Reply) IsError() bool {
	return r.Ex != "" || r.HasStatus("eval-error") || r.HasStatus("error")
}

func takeLast(dst *string, msg map[string]any, key string) {
	if s := msgString(msg, key); s != "" {
		*dst = s
	}
}

func msgString(msg map[string]any, key string) string {
	s, _ := msg[key].(string)
	return s
}

func msgStatus(msg map[string]any) []string {
	list, ok := msg["status"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
