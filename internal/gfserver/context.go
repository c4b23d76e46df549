package gfserver

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sheerbytes/getfile/internal/protocol"
	"github.com/sheerbytes/getfile/internal/streamio"
	"github.com/sheerbytes/getfile/internal/transport"
)

// ErrHandleClosed is returned by a Context that was already closed or aborted.
var ErrHandleClosed = errors.New("connection handle closed")

// Context is the handle for one accepted request. The boss owns it until it
// is pushed to the queue; from then on only the worker that popped it may
// use it, and that worker closes it.
type Context struct {
	ep       transport.Endpoint
	path     string
	accepted time.Time

	mu    sync.Mutex
	valid bool
	sent  int64
}

func newContext(ep transport.Endpoint, path string, accepted time.Time) *Context {
	return &Context{ep: ep, path: path, accepted: accepted, valid: true}
}

// Path returns the request path parsed by the boss.
func (c *Context) Path() string { return c.path }

// RemoteAddr returns the client address.
func (c *Context) RemoteAddr() net.Addr { return c.ep.RemoteAddr() }

// Accepted returns when the boss accepted the connection.
func (c *Context) Accepted() time.Time { return c.accepted }

// BytesSent returns how many body bytes were transmitted.
func (c *Context) BytesSent() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// Valid reports whether the handle may still be used.
func (c *Context) Valid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid
}

// SendHeader transmits the response header.
func (c *Context) SendHeader(status protocol.Status, length int64) error {
	if !c.Valid() {
		return ErrHandleClosed
	}
	_, err := streamio.SendAll(c.ep, protocol.EncodeResponseHeader(status, length))
	return err
}

// Send transmits body bytes.
func (c *Context) Send(data []byte) (int, error) {
	if !c.Valid() {
		return 0, ErrHandleClosed
	}
	n, err := streamio.SendAll(c.ep, data)
	c.mu.Lock()
	c.sent += int64(n)
	c.mu.Unlock()
	return n, err
}

// Abort closes the connection without completing the response.
func (c *Context) Abort() {
	_ = c.Close()
}

// Close retires the handle and closes the connection. Later calls are no-ops.
func (c *Context) Close() error {
	c.mu.Lock()
	if !c.valid {
		c.mu.Unlock()
		return nil
	}
	c.valid = false
	c.mu.Unlock()
	return c.ep.Close()
}
