// Package download drives a client run: it draws request paths from a
// workload, hands the requests to a worker pool and saves every body under
// an output directory.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sheerbytes/getfile/internal/gfclient"
	"github.com/sheerbytes/getfile/internal/logging"
	"github.com/sheerbytes/getfile/internal/progress"
	"github.com/sheerbytes/getfile/internal/protocol"
	"github.com/sheerbytes/getfile/internal/taskqueue"
	"github.com/sheerbytes/getfile/internal/workerpool"
	"github.com/sheerbytes/getfile/internal/workload"
)

var (
	// ErrPathTooLong is returned when a workload path exceeds
	// protocol.MaxPathLen characters.
	ErrPathTooLong = errors.New("request path exceeds maximum length")
	// ErrUnsafePath is returned when a request path would be saved outside
	// the output directory.
	ErrUnsafePath = errors.New("request path escapes output directory")
)

// Config describes one client run.
type Config struct {
	Server    string
	Port      uint16
	Workers   int
	PerWorker int
	OutDir    string
	Client    *gfclient.Client
	Logger    *slog.Logger
	// OnResult, if set, is called by the worker after each request.
	OnResult func(Result)
}

// Result is the outcome of one request.
type Result struct {
	Seq       int
	Path      string
	LocalPath string
	Status    protocol.Status
	Bytes     int64
	Err       error
	Duration  time.Duration
}

// Summary aggregates a run.
type Summary struct {
	Requests int
	ByStatus map[protocol.Status]int
	Failed   int
	Bytes    int64
	Elapsed  time.Duration
	AvgBps   float64
}

// Plan draws n paths from w in order and checks each against
// protocol.MaxPathLen.
func Plan(w *workload.Workload, n int) ([]string, error) {
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p := w.Next()
		if len(p) > protocol.MaxPathLen {
			return nil, fmt.Errorf("%w: %d characters (max %d)", ErrPathTooLong, len(p), protocol.MaxPathLen)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// LocalPath returns where the body of request number seq for reqPath is
// saved: the path without its leading slash, suffixed with a six-digit
// sequence number, under outDir.
func LocalPath(outDir, reqPath string, seq int) (string, error) {
	rel := filepath.FromSlash(fmt.Sprintf("%s-%06d", strings.TrimPrefix(reqPath, "/"), seq))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, reqPath)
	}
	return filepath.Join(outDir, rel), nil
}

type job struct {
	seq       int
	localPath string
	req       *gfclient.Request
	file      *fileSink
}

// Run performs Workers × PerWorker requests and waits for all of them.
// Paths are validated before any worker starts; an invalid path aborts the
// run without sending anything. Cancelling ctx makes the remaining requests
// fail without connecting.
func Run(ctx context.Context, cfg Config, w *workload.Workload) (Summary, error) {
	logger := logging.OrDiscard(cfg.Logger)
	client := cfg.Client
	if client == nil {
		client = gfclient.New(gfclient.WithLogger(logger))
	}
	workers := max(cfg.Workers, 1)
	perWorker := max(cfg.PerWorker, 1)
	total := workers * perWorker

	paths, err := Plan(w, total)
	if err != nil {
		return Summary{}, err
	}
	jobs := make([]*job, total)
	for seq, p := range paths {
		local, err := LocalPath(cfg.OutDir, p, seq)
		if err != nil {
			return Summary{}, err
		}
		j := &job{seq: seq, localPath: local, file: &fileSink{path: local}}
		j.req = gfclient.NewRequest(cfg.Server, cfg.Port, p, j.file)
		jobs[seq] = j
	}

	meter := progress.NewMeter()
	var (
		mu      sync.Mutex
		summary = Summary{ByStatus: make(map[protocol.Status]int)}
	)

	queue := taskqueue.New[*job]()
	pool := workerpool.New(queue)
	pool.Start(workers, perWorker, func(worker int, j *job) {
		started := time.Now()
		err := client.Perform(ctx, j.req)
		if cerr := j.file.finish(err); cerr != nil && err == nil {
			err = cerr
		}
		res := Result{
			Seq:       j.seq,
			Path:      j.req.Path,
			LocalPath: j.localPath,
			Status:    j.req.Status(),
			Bytes:     j.req.BytesReceived(),
			Err:       err,
			Duration:  time.Since(started),
		}
		meter.Add(res.Bytes)
		meter.Done()
		if err != nil {
			logger.Warn("request failed", "worker", worker, "path", res.Path, "status", res.Status, "error", err)
		} else {
			logger.Debug("request done", "worker", worker, "path", res.Path, "status", res.Status, "bytes", res.Bytes)
		}

		mu.Lock()
		summary.Requests++
		summary.ByStatus[res.Status]++
		summary.Bytes += res.Bytes
		if err != nil {
			summary.Failed++
		}
		mu.Unlock()

		if cfg.OnResult != nil {
			cfg.OnResult(res)
		}
	})

	for _, j := range jobs {
		logger.Debug("requesting", "server", cfg.Server, "path", j.req.Path)
		queue.Push(j)
	}
	pool.Wait()

	stats := meter.Snapshot()
	summary.Elapsed = stats.Elapsed
	summary.AvgBps = stats.AvgBps
	return summary, nil
}

// fileSink creates its file when the OK header arrives, so requests that
// end without a body leave nothing behind.
type fileSink struct {
	path string
	f    *os.File
}

func (s *fileSink) OnHeader([]byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	s.f = f
	return nil
}

func (s *fileSink) OnBody(chunk []byte) error {
	if s.f == nil {
		return errors.New("body before header")
	}
	_, err := s.f.Write(chunk)
	return err
}

// finish closes the file and removes it when the transfer failed.
func (s *fileSink) finish(transferErr error) error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if transferErr != nil {
		_ = os.Remove(s.path)
		return nil
	}
	return err
}
