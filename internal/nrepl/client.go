// client.go — nREPL connection ownership and the single-flight send loop.
// The bencode stream is strictly ordered, so one request/response exchange
// owns the connection at a time; concurrent callers queue FIFO on the mutex.
package nrepl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/franks42/mcp-nrepl-bridge/internal/bencode"
)

// DefaultSendTimeout bounds a Send when the caller's context carries no
// deadline of its own.
const DefaultSendTimeout = 30 * time.Second

// Client owns one TCP connection to an nREPL server.
type Client struct {
	mu        sync.Mutex // serializes Send; FIFO under contention
	conn      net.Conn
	reader    *bufio.Reader
	host      string
	port      int
	createdAt time.Time
	closed    bool
	log       *logrus.Entry
}

// Dial opens a TCP connection to an nREPL server and wraps the read side in
// the buffered reader the codec's recursive descent requires.
func Dial(host string, port int) (*Client, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, Wrap(KindTransportClosed, "dial "+addr, err)
	}
	return &Client{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		host:      host,
		port:      port,
		createdAt: time.Now(),
		log:       logrus.WithField("nrepl", addr),
	}, nil
}

// Addr returns the host and port this client dialed.
func (c *Client) Addr() (string, int) { return c.host, c.port }

// CreatedAt returns when the connection was established.
func (c *Client) CreatedAt() time.Time { return c.createdAt }

// Close shuts the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Send transmits one operation and blocks until the response stream for it
// terminates, returning the merged reply.
//
// A fresh correlation id is assigned to every outbound message. Response
// messages bearing other ids, or none, are ignored; some servers emit
// unsolicited notifications mid-stream. On deadline expiry the send fails
// with an eval-timeout and the connection stays usable; on any transport or
// codec failure the connection is closed and the error says so.
func (c *Client) Send(ctx context.Context, op map[string]any) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, Errorf(KindNotConnected, "connection closed")
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultSendTimeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.closeLocked()
		return nil, Wrap(KindTransportClosed, "set deadline", err)
	}
	defer c.conn.SetDeadline(time.Time{})

	id := uuid.NewString()
	msg := make(map[string]any, len(op)+1)
	for k, v := range op {
		msg[k] = v
	}
	msg["id"] = id

	start := time.Now()
	if err := bencode.Encode(c.conn, msg); err != nil {
		c.closeLocked()
		return nil, Wrap(KindTransportClosed, "write", err)
	}

	var m merger
	for {
		raw, err := bencode.Decode(c.reader)
		if err != nil {
			return nil, c.failRead(err)
		}
		resp, ok := raw.(map[string]any)
		if !ok {
			c.closeLocked()
			return nil, Errorf(KindCodec, "non-dictionary message %T", raw)
		}
		if respID, _ := resp["id"].(string); respID != id {
			c.log.WithField("id", respID).Debug("ignoring unmatched message")
			continue
		}
		if m.absorb(resp) {
			reply := m.finalize()
			c.log.WithFields(logrus.Fields{
				"op":      op["op"],
				"id":      id,
				"elapsed": time.Since(start).String(),
				"status":  reply.Status,
			}).Debug("exchange complete")
			return reply, nil
		}
	}
}

// failRead classifies a read-loop failure. A deadline expiry leaves the
// connection open for the next send; everything else invalidates it.
func (c *Client) failRead(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return Wrap(KindEvalTimeout, "no terminal status before deadline", err)
	}
	c.closeLocked()
	if errors.Is(err, bencode.ErrCodec) {
		return Wrap(KindCodec, "decode", err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Wrap(KindTransportClosed, "connection closed by server", err)
	}
	return Wrap(KindTransportClosed, "read", err)
}
