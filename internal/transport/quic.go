package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/sheerbytes/getfile/internal/logging"
)

var (
	_ Listener = (*QUICListener)(nil)
	_ Dialer   = (*QUICDialer)(nil)
	_ Endpoint = (*quicEndpoint)(nil)
)

// QUICListener accepts QUIC connections and yields every bidirectional
// stream opened on them as a separate endpoint.
type QUICListener struct {
	ln      *quic.Listener
	logger  *slog.Logger
	streams chan Endpoint
	done    chan struct{}
	once    sync.Once
	cancel  context.CancelFunc
}

// ListenQUIC listens for QUIC connections on the UDP address addr.
func ListenQUIC(addr string, logger *slog.Logger) (*QUICListener, error) {
	tlsConf, err := ServerTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}
	ln, err := quic.ListenAddr(addr, tlsConf, DefaultServerQUICConfig())
	if err != nil {
		return nil, err
	}
	logger = logging.OrDiscard(logger)
	ctx, cancel := context.WithCancel(context.Background())
	l := &QUICListener{
		ln:      ln,
		logger:  logger,
		streams: make(chan Endpoint),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go l.acceptConns(ctx)
	logger.Info("QUIC listener created", "local_addr", ln.Addr())
	return l, nil
}

func (l *QUICListener) acceptConns(ctx context.Context) {
	for {
		conn, err := l.ln.Accept(ctx)
		if err != nil {
			return
		}
		l.logger.Debug("QUIC connection accepted", "remote_addr", conn.RemoteAddr())
		go l.acceptStreams(ctx, conn)
	}
}

func (l *QUICListener) acceptStreams(ctx context.Context, conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		ep := &quicEndpoint{stream: stream, remote: conn.RemoteAddr()}
		select {
		case l.streams <- ep:
		case <-l.done:
			stream.CancelRead(0)
			_ = stream.Close()
			return
		}
	}
}

// Accept returns the next stream opened by any client.
func (l *QUICListener) Accept(ctx context.Context) (Endpoint, error) {
	select {
	case ep := <-l.streams:
		return ep, nil
	case <-l.done:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr returns the UDP address the listener is bound to.
func (l *QUICListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting connections and streams.
func (l *QUICListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		l.cancel()
		err = l.ln.Close()
	})
	return err
}

// QUICDialer opens a QUIC connection and a single stream per request.
type QUICDialer struct {
	logger *slog.Logger
}

// NewQUICDialer creates a dialer. logger may be nil.
func NewQUICDialer(logger *slog.Logger) *QUICDialer {
	logger = logging.OrDiscard(logger)
	return &QUICDialer{logger: logger}
}

// Dial connects to the UDP address addr and opens one stream.
func (d *QUICDialer) Dial(ctx context.Context, addr string) (Endpoint, error) {
	conn, err := quic.DialAddr(ctx, addr, ClientTLSConfig(), DefaultClientQUICConfig())
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, fmt.Errorf("open stream: %w", err)
	}
	d.logger.Debug("QUIC stream opened", "remote_addr", conn.RemoteAddr(), "stream_id", stream.StreamID())
	return &quicEndpoint{stream: stream, conn: conn, remote: conn.RemoteAddr()}, nil
}

// quicEndpoint adapts a QUIC stream to Endpoint. On the dialing side it also
// owns the connection, which is closed together with the stream.
type quicEndpoint struct {
	stream *quic.Stream
	conn   *quic.Conn
	remote net.Addr

	mu     sync.Mutex
	closed bool
}

func (e *quicEndpoint) Read(p []byte) (int, error) {
	return e.stream.Read(p)
}

func (e *quicEndpoint) Write(p []byte) (int, error) {
	return e.stream.Write(p)
}

func (e *quicEndpoint) RemoteAddr() net.Addr {
	return e.remote
}

func (e *quicEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	err := e.stream.Close()
	if e.conn != nil {
		if cerr := e.conn.CloseWithError(0, ""); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
