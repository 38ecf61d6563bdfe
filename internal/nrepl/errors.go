// errors.go — Bridge error taxonomy.
// Every failure surfaced to a tool handler is classified with a Kind so the
// MCP layer can project a stable, human-readable error payload without
// inspecting transport internals.
package nrepl

import (
	"errors"
	"fmt"
)

// Kind identifies a class of bridge failure.
type Kind string

const (
	KindSchema           Kind = "schema"
	KindToolNotFound     Kind = "tool-not-found"
	KindNotConnected     Kind = "not-connected"
	KindDiscoveryTimeout Kind = "discovery-timeout"
	KindDiscoveryParse   Kind = "discovery-parse"
	KindTransportClosed  Kind = "transport-closed"
	KindCodec            Kind = "codec"
	KindEvalTimeout      Kind = "eval-timeout"
	KindEvalError        Kind = "eval-error"
	KindIO               Kind = "io"
)

// Error is a classified bridge failure. Cause may be nil.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf extracts the Kind from err, or empty when err is not a bridge error.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}
