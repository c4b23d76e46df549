// Package workload supplies the request paths a client run downloads.
package workload

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ErrEmpty is returned for workload files without any path.
var ErrEmpty = errors.New("workload has no paths")

// Workload hands out request paths in file order, wrapping around at the end.
type Workload struct {
	mu    sync.Mutex
	paths []string
	next  int
}

// Load reads one request path per line from path. Blank lines and lines
// starting with # are skipped.
func Load(path string) (*Workload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open workload: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a workload from r.
func Parse(r io.Reader) (*Workload, error) {
	var paths []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read workload: %w", err)
	}
	return New(paths)
}

// New builds a workload from paths.
func New(paths []string) (*Workload, error) {
	if len(paths) == 0 {
		return nil, ErrEmpty
	}
	return &Workload{paths: append([]string(nil), paths...)}, nil
}

// Next returns the next path.
func (w *Workload) Next() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.paths[w.next]
	w.next = (w.next + 1) % len(w.paths)
	return p
}

// Len returns the number of distinct entries.
func (w *Workload) Len() int {
	return len(w.paths)
}
