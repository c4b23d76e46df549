package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sheerbytes/getfile/internal/config"
	"github.com/sheerbytes/getfile/internal/content"
	"github.com/sheerbytes/getfile/internal/gfserver"
	"github.com/sheerbytes/getfile/internal/logging"
	"github.com/sheerbytes/getfile/internal/monitor"
	"github.com/sheerbytes/getfile/internal/termio"
	"github.com/sheerbytes/getfile/internal/transport"
)

const version = "v0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	defer termio.Flush()
	if hasHelpFlag(args) {
		printUsage()
		return 0
	}
	if hasVersionFlag(args) {
		fmt.Fprintln(termio.Stdout(), version)
		return 0
	}
	cfg, err := config.ParseServerConfig(args)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "gfserver: %v\n", err)
		printUsage()
		return 1
	}
	logger := logging.New("gfserver", cfg.LogLevel)

	store, err := content.Load(cfg.ContentPath)
	if err != nil {
		logger.Error("failed to load content map", "path", cfg.ContentPath, "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.WatchContent {
		if err := store.Watch(ctx, logger, nil); err != nil {
			logger.Error("failed to watch content map", "error", err)
			return 1
		}
	}

	opts := []gfserver.Option{
		gfserver.WithLogger(logger),
		gfserver.WithWorkers(cfg.Threads),
		gfserver.WithChunkSize(cfg.ChunkSize),
	}
	var (
		srv *gfserver.Server
		mon *monitor.Monitor
	)
	if cfg.MonitorAddr != "" {
		mon = monitor.New(
			monitor.WithLogger(logger),
			monitor.WithName(fmt.Sprintf("gfserver %s port %d", version, cfg.Port)),
			monitor.WithPending(func() int { return srv.Pending() }),
		)
		opts = append(opts, gfserver.WithReporter(mon))
	}
	srv = gfserver.New(store, opts...)

	listeners, err := listen(cfg, logger)
	if err != nil {
		logger.Error("failed to listen", "error", err)
		return 1
	}

	var httpSrv *http.Server
	if mon != nil {
		ln, err := net.Listen("tcp", cfg.MonitorAddr)
		if err != nil {
			logger.Error("failed to listen for monitor", "addr", cfg.MonitorAddr, "error", err)
			for _, l := range listeners {
				_ = l.Close()
			}
			return 1
		}
		httpSrv = &http.Server{Handler: mon.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("monitor server failed", "error", err)
			}
		}()
		fmt.Fprintf(termio.Stdout(), "monitor listening addr=%s\n", ln.Addr())
	}

	fmt.Fprintf(termio.Stdout(), "serving entries=%d port=%d workers=%d\n", store.Len(), cfg.Port, cfg.Threads)

	var (
		wg     sync.WaitGroup
		failed atomic.Bool
	)
	for _, l := range listeners {
		wg.Add(1)
		go func(l transport.Listener) {
			defer wg.Done()
			if err := srv.Serve(ctx, l); err != nil {
				logger.Error("listener stopped", "addr", l.Addr(), "error", err)
				failed.Store(true)
				stop()
			}
		}(l)
	}
	wg.Wait()

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if failed.Load() {
		return 1
	}
	fmt.Fprintln(termio.Stdout(), "server stopped")
	return 0
}

func listen(cfg config.ServerConfig, logger *slog.Logger) ([]transport.Listener, error) {
	tcpLn, err := transport.ListenTCP(net.JoinHostPort("", strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("tcp port %d: %w", cfg.Port, err)
	}
	listeners := []transport.Listener{tcpLn}
	if cfg.QUICPort != 0 {
		quicLn, err := transport.ListenQUIC(net.JoinHostPort("", strconv.Itoa(cfg.QUICPort)), logger)
		if err != nil {
			_ = tcpLn.Close()
			return nil, fmt.Errorf("quic port %d: %w", cfg.QUICPort, err)
		}
		listeners = append(listeners, quicLn)
	}
	return listeners, nil
}

func printUsage() {
	fmt.Fprintln(termio.Stderr(), "usage: gfserver [options]")
	fmt.Fprintln(termio.Stderr(), "  -p, --port N            port to listen on (default 12041)")
	fmt.Fprintln(termio.Stderr(), "  -t, --nthreads N        number of worker goroutines (default 64)")
	fmt.Fprintln(termio.Stderr(), "  -m, --content FILE      content map file (default content.txt)")
	fmt.Fprintln(termio.Stderr(), "      --quic-port N       also serve over QUIC on this UDP port")
	fmt.Fprintln(termio.Stderr(), "      --monitor-addr ADDR serve /health, /stats and /events on ADDR")
	fmt.Fprintln(termio.Stderr(), "      --chunk-size N      body send chunk size in bytes (default 12041)")
	fmt.Fprintln(termio.Stderr(), "      --watch-content     reload the content map when it changes")
	fmt.Fprintln(termio.Stderr(), "      --log-level LEVEL   debug, info, warn or error (default info)")
	fmt.Fprintln(termio.Stderr(), "  -h, --help              show this help")
	fmt.Fprintln(termio.Stderr(), "environment: GETFILE_PORT GETFILE_NTHREADS GETFILE_CONTENT GETFILE_MONITOR_ADDR GETFILE_LOG_LEVEL")
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func hasVersionFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}
