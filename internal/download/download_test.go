package download

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sheerbytes/getfile/internal/content"
	"github.com/sheerbytes/getfile/internal/gfserver"
	"github.com/sheerbytes/getfile/internal/protocol"
	"github.com/sheerbytes/getfile/internal/transport"
	"github.com/sheerbytes/getfile/internal/workload"
)

func TestLocalPath(t *testing.T) {
	got, err := LocalPath("out", "/dir/file.txt", 7)
	if err != nil {
		t.Fatalf("LocalPath error: %v", err)
	}
	if want := filepath.Join("out", "dir", "file.txt-000007"); got != want {
		t.Errorf("LocalPath = %q, want %q", got, want)
	}
	for _, bad := range []string{"/../etc/passwd", "/a/../../b"} {
		if _, err := LocalPath("out", bad, 0); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("LocalPath(%q) error = %v, want ErrUnsafePath", bad, err)
		}
	}
}

func TestPlan(t *testing.T) {
	w, err := workload.New([]string{"/a", "/b"})
	if err != nil {
		t.Fatalf("workload: %v", err)
	}
	paths, err := Plan(w, 5)
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if strings.Join(paths, ",") != "/a,/b,/a,/b,/a" {
		t.Errorf("paths = %v", paths)
	}

	long := "/" + strings.Repeat("x", protocol.MaxPathLen)
	w, _ = workload.New([]string{"/ok", long})
	if _, err := Plan(w, 2); !errors.Is(err, ErrPathTooLong) {
		t.Errorf("error = %v, want ErrPathTooLong", err)
	}
}

func startServer(t *testing.T, files map[string][]byte) (string, uint16) {
	t.Helper()
	dir := t.TempDir()
	entries := make(map[string]string)
	for reqPath, data := range files {
		local := filepath.Join(dir, strings.ReplaceAll(strings.TrimPrefix(reqPath, "/"), "/", "_"))
		if err := os.WriteFile(local, data, 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
		entries[reqPath] = local
	}
	l, err := transport.ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = gfserver.New(content.NewFromMap(entries), gfserver.WithWorkers(4)).Serve(ctx, l)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	host, port, _ := net.SplitHostPort(l.Addr().String())
	p, _ := strconv.Atoi(port)
	return host, uint16(p)
}

func TestRunSavesEveryDownload(t *testing.T) {
	files := map[string][]byte{
		"/docs/readme.txt": []byte("read me"),
		"/blob.bin":        bytes.Repeat([]byte{0xAB}, 100000),
	}
	host, port := startServer(t, files)
	w, err := workload.New([]string{"/docs/readme.txt", "/blob.bin", "/missing"})
	if err != nil {
		t.Fatalf("workload: %v", err)
	}
	out := t.TempDir()

	var (
		mu      sync.Mutex
		results []Result
	)
	summary, err := Run(context.Background(), Config{
		Server:    host,
		Port:      port,
		Workers:   4,
		PerWorker: 3,
		OutDir:    out,
		OnResult: func(r Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
	}, w)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if summary.Requests != 12 || len(results) != 12 {
		t.Fatalf("requests = %d, results = %d, want 12", summary.Requests, len(results))
	}
	if summary.ByStatus[protocol.StatusOK] != 8 || summary.ByStatus[protocol.StatusFileNotFound] != 4 {
		t.Errorf("ByStatus = %v", summary.ByStatus)
	}
	if summary.Failed != 0 {
		t.Errorf("Failed = %d", summary.Failed)
	}
	wantBytes := int64(4*len(files["/docs/readme.txt"]) + 4*len(files["/blob.bin"]))
	if summary.Bytes != wantBytes {
		t.Errorf("Bytes = %d, want %d", summary.Bytes, wantBytes)
	}

	seen := make(map[int]bool)
	for _, r := range results {
		if seen[r.Seq] {
			t.Errorf("sequence %d reported twice", r.Seq)
		}
		seen[r.Seq] = true
		want, ok := files[r.Path]
		got, err := os.ReadFile(r.LocalPath)
		if !ok {
			if err == nil {
				t.Errorf("%s: file saved for a missing path", r.LocalPath)
			}
			continue
		}
		if err != nil || !bytes.Equal(got, want) {
			t.Errorf("%s: content mismatch (err=%v)", r.LocalPath, err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "docs", "readme.txt-000000")); err != nil {
		t.Errorf("first download not at expected name: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "blob.bin-000001")); err != nil {
		t.Errorf("second download not at expected name: %v", err)
	}
}

func TestRunRejectsLongPathBeforeSending(t *testing.T) {
	w, _ := workload.New([]string{"/" + strings.Repeat("p", 600)})
	called := false
	_, err := Run(context.Background(), Config{
		Server:    "127.0.0.1",
		Port:      1,
		Workers:   2,
		PerWorker: 2,
		OutDir:    t.TempDir(),
		OnResult:  func(Result) { called = true },
	}, w)
	if !errors.Is(err, ErrPathTooLong) {
		t.Fatalf("error = %v, want ErrPathTooLong", err)
	}
	if called {
		t.Error("a request ran despite the invalid path")
	}
}

func TestRunCancelled(t *testing.T) {
	host, port := startServer(t, map[string][]byte{"/a": []byte("a")})
	w, _ := workload.New([]string{"/a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := Run(ctx, Config{Server: host, Port: port, Workers: 2, PerWorker: 2, OutDir: t.TempDir()}, w)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Requests != 4 || summary.Failed != 4 {
		t.Errorf("requests = %d, failed = %d, want 4/4", summary.Requests, summary.Failed)
	}
	if summary.ByStatus[protocol.StatusError] != 4 {
		t.Errorf("ByStatus = %v", summary.ByStatus)
	}
}
