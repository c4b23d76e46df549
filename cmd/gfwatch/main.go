package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sheerbytes/getfile/internal/config"
	"github.com/sheerbytes/getfile/internal/logging"
	"github.com/sheerbytes/getfile/internal/monitor"
	"github.com/sheerbytes/getfile/internal/progress"
	"github.com/sheerbytes/getfile/internal/termio"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	defer termio.Flush()
	for _, arg := range args {
		if arg == "-h" || arg == "--help" {
			fmt.Fprintln(termio.Stderr(), "usage: gfwatch [--monitor ws://host:port/events] [--log-level LEVEL]")
			return 0
		}
	}
	cfg, err := config.ParseWatchConfig(args)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "gfwatch: %v\n", err)
		return 1
	}
	logger := logging.New("gfwatch", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := monitor.Dial(ctx, cfg.MonitorURL, logger)
	if err != nil {
		logger.Error("failed to connect to monitor", "url", cfg.MonitorURL, "error", err)
		return 1
	}
	defer conn.Close()

	err = conn.ReadLoop(ctx, func(env monitor.Envelope) {
		switch env.Type {
		case monitor.TypeHello:
			var h monitor.Hello
			if err := env.DecodePayload(&h); err != nil {
				logger.Warn("bad hello payload", "error", err)
				return
			}
			fmt.Fprintf(termio.Stdout(), "connected to %s: %d requests served, %s sent, up %s\n",
				h.Server, h.Stats.Requests, progress.FormatBytes(h.Stats.BytesSent), h.Stats.Uptime)
		case monitor.TypeTransfer:
			var tr monitor.Transfer
			if err := env.DecodePayload(&tr); err != nil {
				logger.Warn("bad transfer payload", "error", err)
				return
			}
			line := fmt.Sprintf("%s %-14s %s %d/%d bytes %dms", tr.At, tr.Status, tr.Path, tr.Sent, tr.Length, tr.DurationMs)
			if tr.Remote != "" {
				line += " from " + tr.Remote
			}
			if tr.Error != "" {
				line += " error=" + tr.Error
			}
			fmt.Fprintln(termio.Stdout(), line)
		default:
			logger.Debug("ignoring envelope", "type", env.Type)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("monitor connection lost", "error", err)
		return 1
	}
	return 0
}
