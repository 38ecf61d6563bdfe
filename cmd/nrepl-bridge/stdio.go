// stdio.go — Line-delimited standard-streams transport.
// One JSON-RPC request per input line, one response per output line, flushed
// after every write. Stdout carries nothing else; diagnostics go to stderr.
package main

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// maxLineSize bounds one request line; eval payloads can be large.
const maxLineSize = 10 * 1024 * 1024

// stdioTransport pumps JSON-RPC lines between in/out and the handler.
type stdioTransport struct {
	handler *MCPHandler
	in      io.Reader
	out     io.Writer

	writeMu sync.Mutex
}

func newStdioTransport(handler *MCPHandler, in io.Reader, out io.Writer) *stdioTransport {
	return &stdioTransport{handler: handler, in: in, out: out}
}

// Run serves until the input stream ends.
func (t *stdioTransport) Run() error {
	writer := bufio.NewWriter(t.out)
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			t.writeLine(writer, JSONRPCResponse{
				JSONRPC: "2.0",
				ID:      nil,
				Error:   &JSONRPCError{Code: codeParseError, Message: "Parse error: " + err.Error()},
			})
			continue
		}

		resp := t.handler.HandleRequest(req)
		if resp == nil {
			continue // notification
		}
		t.writeLine(writer, *resp)
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	logrus.Info("stdin closed, stdio transport exiting")
	return nil
}

func (t *stdioTransport) writeLine(writer *bufio.Writer, resp JSONRPCResponse) {
	respJSON, err := json.Marshal(resp)
	if err != nil {
		logrus.WithError(err).Error("marshal response")
		respJSON = []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal error: response marshal failed"}}`)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	writer.Write(respJSON)
	writer.WriteByte('\n')
	if err := writer.Flush(); err != nil {
		logrus.WithError(err).Error("flush stdout")
	}
}
