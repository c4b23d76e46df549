package gfserver

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/sheerbytes/getfile/internal/protocol"
)

// ErrNotFound is returned by a ContentStore for paths it does not serve.
var ErrNotFound = errors.New("content not found")

// Source is readable content. Reads are positional so that workers never
// share a cursor.
type Source interface {
	io.ReaderAt
	io.Closer
}

// ContentStore maps request paths to content. Resolve is called by many
// workers at once.
type ContentStore interface {
	// Resolve returns the source for path and its length in bytes. It
	// returns an error wrapping ErrNotFound when path is not served.
	Resolve(path string) (Source, int64, error)
}

// Event describes one finished request.
type Event struct {
	Path     string
	Remote   net.Addr
	Status   protocol.Status
	Length   int64
	Sent     int64
	Duration time.Duration
	Err      error
}

// Reporter is notified after every request, including rejected ones.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(ev Event) { f(ev) }

type nopReporter struct{}

func (nopReporter) Report(Event) {}
