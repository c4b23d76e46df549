package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	// Scheme is the first token of every frame.
	Scheme = "GETFILE"
	// MethodGet is the only request method.
	MethodGet = "GET"
	// Terminator ends every header.
	Terminator = "\r\n\r\n"

	// MaxPathLen bounds request paths. Producers enforce it before
	// submitting; the codec does not.
	MaxPathLen = 500
	// MaxHeaderSize bounds how many bytes a reader accumulates while
	// looking for the terminator.
	MaxHeaderSize = 1024
)

var (
	// ErrInvalid marks any frame that cannot be decoded. Peers answer or
	// record it as StatusInvalid.
	ErrInvalid = errors.New("invalid frame")
	// ErrNoTerminator indicates the buffer does not hold a complete header.
	ErrNoTerminator = fmt.Errorf("%w: terminator not found", ErrInvalid)
)

var terminator = []byte(Terminator)

// Request is a decoded request frame.
type Request struct {
	Path string
}

// ResponseHeader is a decoded response header.
type ResponseHeader struct {
	Status Status
	Length int64
}

// SplitFrame locates the terminator in buf. header holds the bytes up to and
// including the terminator, rest the bytes that followed it in the same read.
func SplitFrame(buf []byte) (header, rest []byte, ok bool) {
	idx := bytes.Index(buf, terminator)
	if idx < 0 {
		return nil, nil, false
	}
	end := idx + len(terminator)
	return buf[:end], buf[end:], true
}

// HasTerminator reports whether buf contains a complete header.
func HasTerminator(buf []byte) bool {
	return bytes.Contains(buf, terminator)
}

// EncodeRequest builds the request frame for path.
func EncodeRequest(path string) []byte {
	return []byte(Scheme + " " + MethodGet + " " + path + " " + Terminator)
}

// EncodeResponseHeader builds a response header. The length is forced to 0
// for every status other than OK.
func EncodeResponseHeader(status Status, length int64) []byte {
	if status != StatusOK || length < 0 {
		length = 0
	}
	return fmt.Appendf(nil, "%s %s %d %s", Scheme, status, length, Terminator)
}

// DecodeRequest parses a request frame. Bytes after the terminator are ignored.
func DecodeRequest(buf []byte) (Request, error) {
	tokens, err := headerTokens(buf)
	if err != nil {
		return Request{}, err
	}
	if tokens[0] != Scheme {
		return Request{}, fmt.Errorf("%w: bad scheme %q", ErrInvalid, tokens[0])
	}
	if tokens[1] != MethodGet {
		return Request{}, fmt.Errorf("%w: bad method %q", ErrInvalid, tokens[1])
	}
	if !strings.HasPrefix(tokens[2], "/") {
		return Request{}, fmt.Errorf("%w: path %q must start with /", ErrInvalid, tokens[2])
	}
	return Request{Path: tokens[2]}, nil
}

// DecodeResponseHeader parses a response header and returns the body bytes
// that arrived in the same buffer.
func DecodeResponseHeader(buf []byte) (ResponseHeader, []byte, error) {
	_, rest, ok := SplitFrame(buf)
	if !ok {
		return ResponseHeader{}, nil, ErrNoTerminator
	}
	tokens, err := headerTokens(buf)
	if err != nil {
		return ResponseHeader{}, nil, err
	}
	if tokens[0] != Scheme {
		return ResponseHeader{}, nil, fmt.Errorf("%w: bad scheme %q", ErrInvalid, tokens[0])
	}
	status, ok := ParseStatus(tokens[1])
	if !ok {
		return ResponseHeader{}, nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, tokens[1])
	}
	length, err := ParseLength(tokens[2])
	if err != nil {
		return ResponseHeader{}, nil, err
	}
	return ResponseHeader{Status: status, Length: length}, rest, nil
}

// ParseLength parses a decimal, non-negative body length.
func ParseLength(token string) (int64, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: empty length", ErrInvalid)
	}
	var n int64
	for i := 0; i < len(token); i++ {
		c := token[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: bad length %q", ErrInvalid, token)
		}
		d := int64(c - '0')
		if n > (1<<63-1-d)/10 {
			return 0, fmt.Errorf("%w: length %q overflows", ErrInvalid, token)
		}
		n = n*10 + d
	}
	return n, nil
}

// headerTokens returns the three space-separated tokens of the header in buf.
// A single space before the terminator is part of the frame format and is
// dropped before splitting.
func headerTokens(buf []byte) ([]string, error) {
	idx := bytes.Index(buf, terminator)
	if idx < 0 {
		return nil, ErrNoTerminator
	}
	text := strings.TrimSuffix(string(buf[:idx]), " ")
	tokens := strings.Split(text, " ")
	if len(tokens) != 3 {
		return nil, fmt.Errorf("%w: expected 3 tokens, got %d", ErrInvalid, len(tokens))
	}
	for _, tok := range tokens {
		if tok == "" {
			return nil, fmt.Errorf("%w: empty token", ErrInvalid)
		}
	}
	return tokens, nil
}
