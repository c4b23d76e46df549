// Package gfserver serves GETFILE requests with one boss loop per listener
// and a shared pool of workers.
package gfserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sheerbytes/getfile/internal/bufpool"
	"github.com/sheerbytes/getfile/internal/logging"
	"github.com/sheerbytes/getfile/internal/protocol"
	"github.com/sheerbytes/getfile/internal/streamio"
	"github.com/sheerbytes/getfile/internal/taskqueue"
	"github.com/sheerbytes/getfile/internal/transport"
	"github.com/sheerbytes/getfile/internal/workerpool"
)

const (
	// MaxRequestSize bounds the bytes the boss reads while waiting for the
	// request terminator.
	MaxRequestSize = protocol.MaxHeaderSize
	// DefaultChunkSize is the body send chunk.
	DefaultChunkSize = 12041
	// DefaultWorkers is the worker pool size.
	DefaultWorkers = 64
)

// Server dispatches accepted requests to a detached worker pool.
type Server struct {
	store     ContentStore
	logger    *slog.Logger
	reporter  Reporter
	workers   int
	chunkPool *bufpool.Pool

	queue *taskqueue.Queue[*Context]
	pool  *workerpool.Pool[*Context]
	once  sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = logging.OrDiscard(l) }
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithChunkSize sets the body send chunk size.
func WithChunkSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.chunkPool = bufpool.For(n)
		}
	}
}

// WithReporter registers a per-request observer.
func WithReporter(r Reporter) Option {
	return func(s *Server) {
		if r != nil {
			s.reporter = r
		}
	}
}

// New creates a server for store. Workers are started by the first Serve.
func New(store ContentStore, opts ...Option) *Server {
	s := &Server{
		store:     store,
		logger:    logging.Discard(),
		reporter:  nopReporter{},
		workers:   DefaultWorkers,
		chunkPool: bufpool.For(DefaultChunkSize),
		queue:     taskqueue.New[*Context](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = workerpool.New(s.queue)
	return s
}

// Start launches the worker pool. The workers run for the life of the
// process. Calling Start more than once has no further effect.
func (s *Server) Start() {
	s.once.Do(func() {
		s.pool.Start(s.workers, 0, func(_ int, ctx *Context) {
			s.handle(ctx)
		})
		s.logger.Info("worker pool started", "workers", s.workers)
	})
}

// Pending returns the number of requests waiting for a worker.
func (s *Server) Pending() int {
	return s.queue.Len()
}

// Serve runs the boss loop on l until ctx is done or l fails permanently.
// Serve may be called concurrently for several listeners; they share the
// worker pool. It returns nil after ctx is cancelled.
func (s *Server) Serve(ctx context.Context, l transport.Listener) error {
	s.Start()
	s.logger.Info("serving", "addr", l.Addr())
	defer l.Close()

	for {
		ep, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		s.dispatch(ep)
	}
}

// dispatch reads and validates the request line. Valid requests are handed
// to the queue; the boss must not touch the handle after pushing it.
func (s *Server) dispatch(ep transport.Endpoint) {
	accepted := time.Now()
	raw, err := streamio.RecvUntilMarker(ep, MaxRequestSize)
	if err != nil {
		status := protocol.StatusInvalid
		if errors.Is(err, streamio.ErrTransport) {
			status = protocol.StatusError
		}
		s.reject(ep, "", status, accepted, err)
		return
	}
	req, err := protocol.DecodeRequest(raw)
	if err != nil {
		s.reject(ep, "", protocol.StatusInvalid, accepted, err)
		return
	}
	s.logger.Debug("request queued", "path", req.Path, "remote_addr", ep.RemoteAddr())
	s.queue.Push(newContext(ep, req.Path, accepted))
}

func (s *Server) reject(ep transport.Endpoint, path string, status protocol.Status, accepted time.Time, cause error) {
	s.logger.Warn("rejecting request", "remote_addr", ep.RemoteAddr(), "status", status, "error", cause)
	_, _ = streamio.SendAll(ep, protocol.EncodeResponseHeader(status, 0))
	_ = ep.Close()
	s.reporter.Report(Event{
		Path:     path,
		Remote:   ep.RemoteAddr(),
		Status:   status,
		Duration: time.Since(accepted),
		Err:      cause,
	})
}

// handle is the worker side: resolve, respond, stream, close.
func (s *Server) handle(ctx *Context) {
	ev := Event{Path: ctx.Path(), Remote: ctx.RemoteAddr()}
	defer func() {
		ev.Sent = ctx.BytesSent()
		ev.Duration = time.Since(ctx.Accepted())
		s.reporter.Report(ev)
	}()
	defer ctx.Close()

	src, length, err := s.store.Resolve(ctx.Path())
	switch {
	case err == nil:
		defer src.Close()
		ev.Status = protocol.StatusOK
		ev.Length = length
	case errors.Is(err, ErrNotFound):
		ev.Status = protocol.StatusFileNotFound
	default:
		s.logger.Warn("resolve failed", "path", ctx.Path(), "error", err)
		ev.Status = protocol.StatusError
		ev.Err = err
	}

	if err := ctx.SendHeader(ev.Status, ev.Length); err != nil {
		s.logger.Warn("send header failed", "path", ctx.Path(), "error", err)
		ev.Err = err
		ctx.Abort()
		return
	}
	if ev.Status != protocol.StatusOK {
		return
	}

	if err := s.sendBody(ctx, src, length); err != nil {
		s.logger.Warn("body transfer aborted", "path", ctx.Path(), "sent", ctx.BytesSent(), "length", length, "error", err)
		ev.Err = err
		ctx.Abort()
		return
	}
	s.logger.Debug("request served", "path", ctx.Path(), "bytes", length)
}

func (s *Server) sendBody(ctx *Context, src Source, length int64) error {
	buf := s.chunkPool.Get()
	defer s.chunkPool.Put(buf)
	chunk := *buf

	var off int64
	for off < length {
		want := int64(len(chunk))
		if remaining := length - off; remaining < want {
			want = remaining
		}
		n, err := src.ReadAt(chunk[:want], off)
		if n == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("source ended at %d of %d bytes", off, length)
			}
			return fmt.Errorf("read source: %w", err)
		}
		if _, err := ctx.Send(chunk[:n]); err != nil {
			return err
		}
		off += int64(n)
	}
	return nil
}
