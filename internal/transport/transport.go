// Package transport carries GETFILE frames over TCP connections or QUIC
// streams. Each Endpoint carries exactly one request and its response.
package transport

import (
	"context"
	"io"
	"net"
)

// Endpoint is one bidirectional byte stream between client and server.
type Endpoint interface {
	io.Reader
	io.Writer
	// Close releases the stream. After Close, Read and Write fail.
	Close() error
	// RemoteAddr returns the address of the peer.
	RemoteAddr() net.Addr
}

// Listener yields endpoints opened by clients.
type Listener interface {
	// Accept waits for the next endpoint. It returns ctx.Err() once ctx is
	// done and net.ErrClosed after Close.
	Accept(ctx context.Context) (Endpoint, error)
	Addr() net.Addr
	Close() error
}

// Dialer opens endpoints to a server.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Endpoint, error)
}
