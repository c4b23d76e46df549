// Package config reads process options from GETFILE_* environment variables
// and command-line flags. Flags take precedence over the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Defaults shared by the binaries.
const (
	DefaultPort          = 12041
	DefaultServerThreads = 64
	DefaultClientThreads = 32
	DefaultRequests      = 4
	DefaultContentPath   = "content.txt"
	DefaultWorkloadPath  = "workload.txt"
	DefaultServer        = "localhost"
	DefaultChunkSize     = 12041
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// ServerConfig holds configuration for gfserver.
type ServerConfig struct {
	Port         int
	Threads      int
	ContentPath  string
	QUICPort     int // 0 disables the QUIC listener
	MonitorAddr  string
	ChunkSize    int
	WatchContent bool
	LogLevel     string
}

// ClientConfig holds configuration for gfclient.
type ClientConfig struct {
	Server       string
	Port         int
	Threads      int
	Requests     int // per worker
	WorkloadPath string
	OutDir       string
	QUIC         bool
	LogLevel     string
}

// WatchConfig holds configuration for gfwatch.
type WatchConfig struct {
	MonitorURL string
	LogLevel   string
}

// ParseServerConfig parses gfserver options from args (without the program
// name) and the environment.
func ParseServerConfig(args []string) (ServerConfig, error) {
	return parseServerConfigWithFlagSet(flag.NewFlagSet("gfserver", flag.ContinueOnError), args)
}

// parseServerConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseServerConfigWithFlagSet(fs *flag.FlagSet, args []string) (ServerConfig, error) {
	cfg := ServerConfig{
		Port:        DefaultPort,
		Threads:     DefaultServerThreads,
		ContentPath: DefaultContentPath,
		ChunkSize:   DefaultChunkSize,
		LogLevel:    "info",
	}

	var err error
	if cfg.Port, err = envInt("GETFILE_PORT", cfg.Port); err != nil {
		return cfg, err
	}
	if cfg.Threads, err = envInt("GETFILE_NTHREADS", cfg.Threads); err != nil {
		return cfg, err
	}
	cfg.ContentPath = envString("GETFILE_CONTENT", cfg.ContentPath)
	cfg.MonitorAddr = envString("GETFILE_MONITOR_ADDR", cfg.MonitorAddr)
	cfg.LogLevel = envString("GETFILE_LOG_LEVEL", cfg.LogLevel)

	fs.SetOutput(io.Discard)
	intFlag(fs, &cfg.Port, "p", "port", cfg.Port, "port to listen on")
	intFlag(fs, &cfg.Threads, "t", "nthreads", cfg.Threads, "number of worker goroutines")
	stringFlag(fs, &cfg.ContentPath, "m", "content", cfg.ContentPath, "content map file")
	fs.IntVar(&cfg.QUICPort, "quic-port", cfg.QUICPort, "also serve over QUIC on this UDP port (0 disables)")
	fs.StringVar(&cfg.MonitorAddr, "monitor-addr", cfg.MonitorAddr, "address for the HTTP/websocket monitor (empty disables)")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "body send chunk size in bytes")
	fs.BoolVar(&cfg.WatchContent, "watch-content", false, "reload the content map when it changes")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := checkPort("port", cfg.Port); err != nil {
		return cfg, err
	}
	if cfg.QUICPort != 0 {
		if err := checkPort("quic-port", cfg.QUICPort); err != nil {
			return cfg, err
		}
	}
	if cfg.Threads < 1 {
		return cfg, fmt.Errorf("%w: nthreads must be at least 1, got %d", ErrInvalid, cfg.Threads)
	}
	if cfg.ChunkSize < 1 {
		return cfg, fmt.Errorf("%w: chunk-size must be positive, got %d", ErrInvalid, cfg.ChunkSize)
	}
	if cfg.ContentPath == "" {
		return cfg, fmt.Errorf("%w: content map path is required", ErrInvalid)
	}
	return cfg, nil
}

// ParseClientConfig parses gfclient options from args and the environment.
func ParseClientConfig(args []string) (ClientConfig, error) {
	return parseClientConfigWithFlagSet(flag.NewFlagSet("gfclient", flag.ContinueOnError), args)
}

// parseClientConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseClientConfigWithFlagSet(fs *flag.FlagSet, args []string) (ClientConfig, error) {
	cfg := ClientConfig{
		Server:       DefaultServer,
		Port:         DefaultPort,
		Threads:      DefaultClientThreads,
		Requests:     DefaultRequests,
		WorkloadPath: DefaultWorkloadPath,
		OutDir:       ".",
		LogLevel:     "info",
	}

	var err error
	cfg.Server = envString("GETFILE_SERVER", cfg.Server)
	if cfg.Port, err = envInt("GETFILE_PORT", cfg.Port); err != nil {
		return cfg, err
	}
	if cfg.Threads, err = envInt("GETFILE_NTHREADS", cfg.Threads); err != nil {
		return cfg, err
	}
	if cfg.Requests, err = envInt("GETFILE_NREQUESTS", cfg.Requests); err != nil {
		return cfg, err
	}
	cfg.WorkloadPath = envString("GETFILE_WORKLOAD", cfg.WorkloadPath)
	cfg.LogLevel = envString("GETFILE_LOG_LEVEL", cfg.LogLevel)

	fs.SetOutput(io.Discard)
	stringFlag(fs, &cfg.Server, "s", "server", cfg.Server, "server host")
	intFlag(fs, &cfg.Port, "p", "port", cfg.Port, "server port")
	intFlag(fs, &cfg.Threads, "t", "nthreads", cfg.Threads, "number of worker goroutines")
	intFlag(fs, &cfg.Requests, "n", "nrequests", cfg.Requests, "requests per worker")
	stringFlag(fs, &cfg.WorkloadPath, "w", "workload", cfg.WorkloadPath, "workload file")
	fs.StringVar(&cfg.WorkloadPath, "workload-path", cfg.WorkloadPath, "workload file")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "directory downloads are saved under")
	fs.BoolVar(&cfg.QUIC, "quic", false, "use QUIC instead of TCP")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if cfg.Server == "" {
		return cfg, fmt.Errorf("%w: server is required", ErrInvalid)
	}
	if err := checkPort("port", cfg.Port); err != nil {
		return cfg, err
	}
	if cfg.Threads < 1 {
		return cfg, fmt.Errorf("%w: nthreads must be at least 1, got %d", ErrInvalid, cfg.Threads)
	}
	if cfg.Requests < 1 {
		return cfg, fmt.Errorf("%w: nrequests must be at least 1, got %d", ErrInvalid, cfg.Requests)
	}
	return cfg, nil
}

// ParseWatchConfig parses gfwatch options from args and the environment.
func ParseWatchConfig(args []string) (WatchConfig, error) {
	return parseWatchConfigWithFlagSet(flag.NewFlagSet("gfwatch", flag.ContinueOnError), args)
}

// parseWatchConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseWatchConfigWithFlagSet(fs *flag.FlagSet, args []string) (WatchConfig, error) {
	cfg := WatchConfig{
		MonitorURL: "ws://localhost:9090/events",
		LogLevel:   envString("GETFILE_LOG_LEVEL", "info"),
	}
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.MonitorURL, "monitor", cfg.MonitorURL, "websocket URL of the server monitor")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if cfg.MonitorURL == "" {
		return cfg, fmt.Errorf("%w: monitor URL is required", ErrInvalid)
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v)
	}
	return n, nil
}

func checkPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %s must be in 1..65535, got %d", ErrInvalid, name, port)
	}
	return nil
}

// intFlag registers the same variable under a short and a long name.
func intFlag(fs *flag.FlagSet, p *int, short, long string, def int, usage string) {
	fs.IntVar(p, short, def, usage)
	fs.IntVar(p, long, def, usage)
}

func stringFlag(fs *flag.FlagSet, p *string, short, long string, def string, usage string) {
	fs.StringVar(p, short, def, usage)
	fs.StringVar(p, long, def, usage)
}
