package config

import (
	"errors"
	"flag"
	"testing"
)

var getfileEnv = []string{
	"GETFILE_PORT",
	"GETFILE_NTHREADS",
	"GETFILE_CONTENT",
	"GETFILE_SERVER",
	"GETFILE_NREQUESTS",
	"GETFILE_WORKLOAD",
	"GETFILE_LOG_LEVEL",
	"GETFILE_MONITOR_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range getfileEnv {
		t.Setenv(key, "")
	}
}

func TestParseServerConfig_Defaults(t *testing.T) {
	clearEnv(t)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 12041 {
		t.Errorf("expected Port to be 12041, got %d", cfg.Port)
	}
	if cfg.Threads != 64 {
		t.Errorf("expected Threads to be 64, got %d", cfg.Threads)
	}
	if cfg.ContentPath != "content.txt" {
		t.Errorf("expected ContentPath to be content.txt, got %s", cfg.ContentPath)
	}
	if cfg.QUICPort != 0 || cfg.MonitorAddr != "" || cfg.WatchContent {
		t.Errorf("optional features should be off by default: %+v", cfg)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel to be info, got %s", cfg.LogLevel)
	}
}

func TestParseServerConfig_ShortAndLongFlags(t *testing.T) {
	clearEnv(t)

	for _, args := range [][]string{
		{"-p", "8000", "-t", "4", "-m", "map.txt"},
		{"--port", "8000", "--nthreads", "4", "--content", "map.txt"},
	} {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		cfg, err := parseServerConfigWithFlagSet(fs, args)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", args, err)
		}
		if cfg.Port != 8000 || cfg.Threads != 4 || cfg.ContentPath != "map.txt" {
			t.Errorf("%v: got %+v", args, cfg)
		}
	}
}

func TestParseServerConfig_EnvFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GETFILE_PORT", "7070")
	t.Setenv("GETFILE_NTHREADS", "8")
	t.Setenv("GETFILE_CONTENT", "/srv/content.txt")
	t.Setenv("GETFILE_MONITOR_ADDR", "127.0.0.1:9090")
	t.Setenv("GETFILE_LOG_LEVEL", "warn")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 7070 || cfg.Threads != 8 || cfg.ContentPath != "/srv/content.txt" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.MonitorAddr != "127.0.0.1:9090" || cfg.LogLevel != "warn" {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestParseServerConfig_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GETFILE_PORT", "7070")
	t.Setenv("GETFILE_LOG_LEVEL", "warn")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{"-p", "9090", "-log-level", "error", "--quic-port", "9091", "--watch-content"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Flags should override env
	if cfg.Port != 9090 {
		t.Errorf("expected Port to be 9090 (from flag), got %d", cfg.Port)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("expected LogLevel to be error (from flag), got %s", cfg.LogLevel)
	}
	if cfg.QUICPort != 9091 || !cfg.WatchContent {
		t.Errorf("expected QUIC port and watch flag, got %+v", cfg)
	}
}

func TestParseServerConfig_Invalid(t *testing.T) {
	clearEnv(t)

	tests := [][]string{
		{"-p", "0"},
		{"-p", "70000"},
		{"-t", "0"},
		{"--chunk-size", "0"},
		{"--quic-port", "-1"},
		{"-m", ""},
		{"--unknown"},
		{"-p", "abc"},
	}
	for _, args := range tests {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		if _, err := parseServerConfigWithFlagSet(fs, args); !errors.Is(err, ErrInvalid) {
			t.Errorf("%v: error = %v, want ErrInvalid", args, err)
		}
	}

	t.Setenv("GETFILE_PORT", "not-a-port")
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if _, err := parseServerConfigWithFlagSet(fs, nil); !errors.Is(err, ErrInvalid) {
		t.Errorf("bad env: error = %v, want ErrInvalid", err)
	}
}

func TestParseClientConfig_Defaults(t *testing.T) {
	clearEnv(t)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseClientConfigWithFlagSet(fs, []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := ClientConfig{
		Server:       "localhost",
		Port:         12041,
		Threads:      32,
		Requests:     4,
		WorkloadPath: "workload.txt",
		OutDir:       ".",
		LogLevel:     "info",
	}
	if cfg != want {
		t.Errorf("got %+v, want %+v", cfg, want)
	}
}

func TestParseClientConfig_FlagsAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GETFILE_SERVER", "files.example")
	t.Setenv("GETFILE_NREQUESTS", "10")
	t.Setenv("GETFILE_WORKLOAD", "env-workload.txt")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseClientConfigWithFlagSet(fs, []string{"-t", "2", "--workload", "flag-workload.txt", "--out", "/tmp/dl", "--quic"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server != "files.example" || cfg.Requests != 10 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.Threads != 2 || cfg.WorkloadPath != "flag-workload.txt" || cfg.OutDir != "/tmp/dl" || !cfg.QUIC {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestParseClientConfig_Invalid(t *testing.T) {
	clearEnv(t)

	for _, args := range [][]string{
		{"-n", "0"},
		{"-t", "-3"},
		{"-s", ""},
		{"-p", "65536"},
	} {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		if _, err := parseClientConfigWithFlagSet(fs, args); !errors.Is(err, ErrInvalid) {
			t.Errorf("%v: error = %v, want ErrInvalid", args, err)
		}
	}
}

func TestParseWatchConfig(t *testing.T) {
	clearEnv(t)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseWatchConfigWithFlagSet(fs, []string{"--monitor", "ws://10.0.0.1:9090/events"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MonitorURL != "ws://10.0.0.1:9090/events" || cfg.LogLevel != "info" {
		t.Errorf("got %+v", cfg)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	if _, err := parseWatchConfigWithFlagSet(fs, []string{"--monitor", ""}); !errors.Is(err, ErrInvalid) {
		t.Errorf("error = %v, want ErrInvalid", err)
	}
}
