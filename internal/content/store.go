// Package content maps GETFILE request paths to files on disk.
package content

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sheerbytes/getfile/internal/gfserver"
)

// ErrNotFound is returned for request paths missing from the map.
var ErrNotFound = gfserver.ErrNotFound

var _ gfserver.ContentStore = (*Store)(nil)

// Store resolves request paths through a content map file. Each line maps
// a request path to a local file:
//
//	/courses/ud923/filecorpus/yellowstone.jpg courses/ud923/filecorpus/yellowstone.jpg
//
// Blank lines and lines starting with # are ignored. Relative file paths are
// taken relative to the map file's directory.
type Store struct {
	mapPath string

	mu      sync.RWMutex
	entries map[string]string
}

// Load reads the content map at mapPath.
func Load(mapPath string) (*Store, error) {
	s := &Store{mapPath: mapPath}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromMap builds a store from an in-memory mapping.
func NewFromMap(entries map[string]string) *Store {
	copied := make(map[string]string, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &Store{entries: copied}
}

// Reload re-reads the map file. On error the previous mapping stays active.
func (s *Store) Reload() error {
	if s.mapPath == "" {
		return errors.New("store has no map file")
	}
	f, err := os.Open(s.mapPath)
	if err != nil {
		return fmt.Errorf("open content map: %w", err)
	}
	defer f.Close()

	entries, err := parseMap(f, filepath.Dir(s.mapPath))
	if err != nil {
		return fmt.Errorf("parse content map %s: %w", s.mapPath, err)
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// MapPath returns the map file the store was loaded from.
func (s *Store) MapPath() string {
	return s.mapPath
}

// Len returns the number of mapped paths.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Resolve opens the file mapped to path. The caller closes the returned
// source.
func (s *Store) Resolve(path string) (gfserver.Source, int64, error) {
	s.mu.RLock()
	local, ok := s.entries[path]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	f, err := os.Open(local)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, path)
	}
	return f, info.Size(), nil
}

func parseMap(r io.Reader, baseDir string) (map[string]string, error) {
	entries := make(map[string]string)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected <request path> <file>, got %q", lineNo, line)
		}
		key, local := fields[0], fields[1]
		if !strings.HasPrefix(key, "/") {
			return nil, fmt.Errorf("line %d: request path %q must start with /", lineNo, key)
		}
		if !filepath.IsAbs(local) {
			local = filepath.Join(baseDir, local)
		}
		entries[key] = local
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
