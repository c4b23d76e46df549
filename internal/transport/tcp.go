package transport

import (
	"context"
	"net"
	"time"
)

var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = TCPDialer{}
)

// TCPListener accepts one endpoint per TCP connection.
type TCPListener struct {
	ln net.Listener
}

// ListenTCP listens on addr, e.g. ":12041".
func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPListener{ln: ln}, nil
}

// NewTCPListener wraps an existing listener.
func NewTCPListener(ln net.Listener) *TCPListener {
	return &TCPListener{ln: ln}
}

// Accept waits for the next connection. Cancelling ctx closes the listener.
func (l *TCPListener) Accept(ctx context.Context) (Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = l.ln.Close()
	})
	defer stop()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

// Addr returns the listening address.
func (l *TCPListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting connections.
func (l *TCPListener) Close() error {
	return l.ln.Close()
}

// TCPDialer opens a new TCP connection per request.
type TCPDialer struct {
	// Timeout bounds connection setup only. Zero means no timeout.
	Timeout time.Duration
}

// Dial connects to addr ("host:port").
func (d TCPDialer) Dial(ctx context.Context, addr string) (Endpoint, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
