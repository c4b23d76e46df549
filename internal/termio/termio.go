// Package termio serializes console output from many goroutines.
package termio

import (
	"io"
	"os"
	"sync"
)

// Writer copies every Write and hands it to a single goroutine that owns the
// underlying writer, so callers never block on a slow terminal.
type Writer struct {
	out    io.Writer
	ch     chan []byte
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// NewWriter starts a writer goroutine for out.
func NewWriter(out io.Writer) *Writer {
	w := &Writer{
		out:  out,
		ch:   make(chan []byte, 1024),
		done: make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		for buf := range w.ch {
			_, _ = w.out.Write(buf)
		}
	}()
	return w
}

func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return w.out.Write(p)
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	w.ch <- buf
	return len(p), nil
}

// Close drains pending output. Later writes go straight to the underlying
// writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()
	<-w.done
	return nil
}

var (
	once   sync.Once
	stdout *Writer
	stderr *Writer
)

func initStd() {
	once.Do(func() {
		stdout = NewWriter(os.Stdout)
		stderr = NewWriter(os.Stderr)
	})
}

func Stdout() io.Writer {
	initStd()
	return stdout
}

func Stderr() io.Writer {
	initStd()
	return stderr
}

// Flush drains stdout and stderr. Call it before os.Exit.
func Flush() {
	initStd()
	_ = stdout.Close()
	_ = stderr.Close()
}
