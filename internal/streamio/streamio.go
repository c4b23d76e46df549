// Package streamio masks partial reads and writes on byte-stream connections.
package streamio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/sheerbytes/getfile/internal/protocol"
)

var (
	// ErrTransport wraps read and write failures reported by the connection.
	ErrTransport = errors.New("transport error")
	// ErrFraming indicates the peer closed, or the limit was reached, before
	// a terminator arrived.
	ErrFraming = errors.New("framing error")
	// ErrTruncated indicates the peer closed before the declared byte count
	// was delivered.
	ErrTruncated = errors.New("truncated transfer")
)

const readChunk = 512

// SendAll writes buf to w, looping over partial writes.
func SendAll(w io.Writer, buf []byte) (int, error) {
	sent := 0
	for sent < len(buf) {
		n, err := w.Write(buf[sent:])
		if n < 0 || n > len(buf)-sent {
			return sent, fmt.Errorf("%w: invalid write count %d", ErrTransport, n)
		}
		sent += n
		if err != nil {
			return sent, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if n == 0 {
			return sent, fmt.Errorf("%w: %v", ErrTransport, io.ErrShortWrite)
		}
	}
	return sent, nil
}

// RecvUntilMarker reads from r until the header terminator is present in the
// accumulated bytes. At most limit bytes are read. The returned slice holds
// everything read, which may include bytes past the terminator.
func RecvUntilMarker(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = protocol.MaxHeaderSize
	}
	buf := make([]byte, 0, min(limit, readChunk))
	marker := []byte(protocol.Terminator)
	for {
		if len(buf) == limit {
			return buf, fmt.Errorf("%w: no terminator within %d bytes", ErrFraming, limit)
		}
		if len(buf) == cap(buf) {
			grown := make([]byte, len(buf), min(limit, 2*cap(buf)))
			copy(grown, buf)
			buf = grown
		}
		// Only the tail that could complete a marker needs rescanning.
		scanFrom := max(0, len(buf)-len(marker)+1)
		n, err := r.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if n > 0 && bytes.Contains(buf[scanFrom:], marker) {
			return buf, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf, fmt.Errorf("%w: peer closed after %d bytes", ErrFraming, len(buf))
			}
			return buf, fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
}

// StreamExact reads exactly n bytes from r, handing each chunk to fn as it
// arrives. buf is the read buffer; it is reused between calls to fn.
// It returns the number of bytes delivered to fn.
func StreamExact(r io.Reader, n int64, buf []byte, fn func(chunk []byte) error) (int64, error) {
	if len(buf) == 0 {
		buf = make([]byte, 8192)
	}
	var done int64
	for done < n {
		want := int64(len(buf))
		if remaining := n - done; remaining < want {
			want = remaining
		}
		got, err := r.Read(buf[:want])
		if got > 0 {
			if ferr := fn(buf[:got]); ferr != nil {
				return done, ferr
			}
			done += int64(got)
		}
		if done == n {
			return done, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return done, fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, done, n)
			}
			return done, fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
	return done, nil
}

// RecvExact reads exactly n bytes from r into a new buffer.
func RecvExact(r io.Reader, n int64) ([]byte, error) {
	out := make([]byte, 0, n)
	_, err := StreamExact(r, n, nil, func(chunk []byte) error {
		out = append(out, chunk...)
		return nil
	})
	return out, err
}
