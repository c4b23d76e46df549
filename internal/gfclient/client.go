// Package gfclient performs GETFILE downloads.
package gfclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sheerbytes/getfile/internal/bufpool"
	"github.com/sheerbytes/getfile/internal/logging"
	"github.com/sheerbytes/getfile/internal/protocol"
	"github.com/sheerbytes/getfile/internal/streamio"
	"github.com/sheerbytes/getfile/internal/transport"
)

// DefaultChunkSize is the receive buffer size for body reads.
const DefaultChunkSize = 8192

var (
	// ErrTransport indicates the connection could not be opened or the
	// request could not be sent.
	ErrTransport = errors.New("transport error")
	// ErrBadPath indicates a request path that does not start with "/".
	ErrBadPath = errors.New("request path must start with /")
)

// Client runs requests. It holds no per-request state and is safe for use
// by many workers at once.
type Client struct {
	dialer    transport.Dialer
	logger    *slog.Logger
	chunkPool *bufpool.Pool
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the default TCP dialer.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = logging.OrDiscard(l) }
}

// WithChunkSize sets the body receive buffer size.
func WithChunkSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkPool = bufpool.For(n)
		}
	}
}

// New creates a client.
func New(opts ...Option) *Client {
	c := &Client{
		dialer:    transport.TCPDialer{},
		logger:    logging.Discard(),
		chunkPool: bufpool.For(DefaultChunkSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Perform runs req to completion: connect, send the request frame, read and
// decode the response header, then stream the body to req.Sink when the
// status is OK. It returns nil for a well-formed OK, FILE_NOT_FOUND or ERROR
// response and an error for anything else. The outcome is also recorded on
// req.
func (c *Client) Perform(ctx context.Context, req *Request) (err error) {
	req.state = StateInit
	req.status = protocol.StatusUnknown
	req.fileLen = 0
	req.bytesReceived = 0
	defer func() {
		req.state = StateDone
		req.err = err
	}()

	if !strings.HasPrefix(req.Path, "/") {
		req.status = protocol.StatusInvalid
		return fmt.Errorf("%w: %q", ErrBadPath, req.Path)
	}

	req.state = StateConnecting
	ep, err := c.dialer.Dial(ctx, req.Addr())
	if err != nil {
		req.status = protocol.StatusError
		return fmt.Errorf("%w: connect %s: %v", ErrTransport, req.Addr(), err)
	}
	defer ep.Close()

	if _, err := streamio.SendAll(ep, protocol.EncodeRequest(req.Path)); err != nil {
		req.status = protocol.StatusError
		return fmt.Errorf("%w: send request: %v", ErrTransport, err)
	}
	req.state = StateRequestSent

	raw, err := streamio.RecvUntilMarker(ep, protocol.MaxHeaderSize)
	if err != nil {
		req.status = protocol.StatusInvalid
		return fmt.Errorf("receive header: %w", err)
	}
	hdr, leftover, err := protocol.DecodeResponseHeader(raw)
	if err != nil {
		req.status = protocol.StatusInvalid
		return fmt.Errorf("decode header: %w", err)
	}
	req.state = StateHeaderReceived
	req.status = hdr.Status

	c.logger.Debug("response header", "path", req.Path, "status", hdr.Status, "length", hdr.Length)

	switch hdr.Status {
	case protocol.StatusOK:
	case protocol.StatusInvalid:
		return fmt.Errorf("%w: server rejected request for %s", protocol.ErrInvalid, req.Path)
	default:
		return nil
	}

	req.fileLen = hdr.Length
	sink := req.Sink
	if sink == nil {
		sink = SinkFuncs{}
	}
	if err := sink.OnHeader(raw[:len(raw)-len(leftover)]); err != nil {
		return fmt.Errorf("header sink: %w", err)
	}

	req.state = StateBodyStreaming
	if int64(len(leftover)) > req.fileLen {
		leftover = leftover[:req.fileLen]
	}
	if len(leftover) > 0 {
		if err := sink.OnBody(leftover); err != nil {
			return fmt.Errorf("body sink: %w", err)
		}
		req.bytesReceived = int64(len(leftover))
	}

	remaining := req.fileLen - req.bytesReceived
	if remaining == 0 {
		return nil
	}

	buf := c.chunkPool.Get()
	defer c.chunkPool.Put(buf)
	n, err := streamio.StreamExact(ep, remaining, *buf, sink.OnBody)
	req.bytesReceived += n
	if err != nil {
		c.logger.Warn("body transfer failed", "path", req.Path, "received", req.bytesReceived, "length", req.fileLen, "error", err)
		return fmt.Errorf("receive body: %w", err)
	}
	return nil
}
