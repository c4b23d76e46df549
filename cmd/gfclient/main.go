package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sheerbytes/getfile/internal/config"
	"github.com/sheerbytes/getfile/internal/download"
	"github.com/sheerbytes/getfile/internal/gfclient"
	"github.com/sheerbytes/getfile/internal/logging"
	"github.com/sheerbytes/getfile/internal/progress"
	"github.com/sheerbytes/getfile/internal/protocol"
	"github.com/sheerbytes/getfile/internal/termio"
	"github.com/sheerbytes/getfile/internal/transport"
	"github.com/sheerbytes/getfile/internal/workload"
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
	cfg, err := config.ParseClientConfig(args)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "gfclient: %v\n", err)
		printUsage()
		return 1
	}
	logger := logging.New("gfclient", cfg.LogLevel)

	w, err := workload.Load(cfg.WorkloadPath)
	if err != nil {
		logger.Error("unable to load workload file", "path", cfg.WorkloadPath, "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientOpts := []gfclient.Option{gfclient.WithLogger(logger)}
	if cfg.QUIC {
		clientOpts = append(clientOpts, gfclient.WithDialer(transport.NewQUICDialer(logger)))
	}

	summary, err := download.Run(ctx, download.Config{
		Server:    cfg.Server,
		Port:      uint16(cfg.Port),
		Workers:   cfg.Threads,
		PerWorker: cfg.Requests,
		OutDir:    cfg.OutDir,
		Client:    gfclient.New(clientOpts...),
		Logger:    logger,
		OnResult: func(r download.Result) {
			fmt.Fprintf(termio.Stdout(), "%s%s %s %d bytes\n", cfg.Server, r.Path, r.Status, r.Bytes)
		},
	}, w)
	if err != nil {
		logger.Error("run aborted", "error", err)
		return 1
	}

	fmt.Fprintf(termio.Stdout(), "requests=%d ok=%d not_found=%d error=%d invalid=%d failed=%d bytes=%s elapsed=%s avg=%s\n",
		summary.Requests,
		summary.ByStatus[protocol.StatusOK],
		summary.ByStatus[protocol.StatusFileNotFound],
		summary.ByStatus[protocol.StatusError],
		summary.ByStatus[protocol.StatusInvalid],
		summary.Failed,
		progress.FormatBytes(summary.Bytes),
		progress.FormatElapsed(summary.Elapsed),
		progress.FormatRate(summary.AvgBps),
	)
	return 0
}

func printUsage() {
	fmt.Fprintln(termio.Stderr(), "usage: gfclient [options]")
	fmt.Fprintln(termio.Stderr(), "  -s, --server HOST       server address (default localhost)")
	fmt.Fprintln(termio.Stderr(), "  -p, --port N            server port (default 12041)")
	fmt.Fprintln(termio.Stderr(), "  -t, --nthreads N        number of worker goroutines (default 32)")
	fmt.Fprintln(termio.Stderr(), "  -n, --nrequests N       requests per worker (default 4)")
	fmt.Fprintln(termio.Stderr(), "  -w, --workload FILE     workload file (default workload.txt)")
	fmt.Fprintln(termio.Stderr(), "      --out DIR           directory downloads are saved under (default .)")
	fmt.Fprintln(termio.Stderr(), "      --quic              use QUIC instead of TCP")
	fmt.Fprintln(termio.Stderr(), "      --log-level LEVEL   debug, info, warn or error (default info)")
	fmt.Fprintln(termio.Stderr(), "  -h, --help              show this help")
	fmt.Fprintln(termio.Stderr(), "environment: GETFILE_SERVER GETFILE_PORT GETFILE_NTHREADS GETFILE_NREQUESTS GETFILE_WORKLOAD GETFILE_LOG_LEVEL")
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
