package gfclient

import (
	"net"
	"strconv"

	"github.com/sheerbytes/getfile/internal/protocol"
)

// State is a step of the per-request state machine.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateRequestSent
	StateHeaderReceived
	StateBodyStreaming
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateConnecting:
		return "CONNECTING"
	case StateRequestSent:
		return "REQUEST_SENT"
	case StateHeaderReceived:
		return "HEADER_RECEIVED"
	case StateBodyStreaming:
		return "BODY_STREAMING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Sink receives the response of one request. Both methods run on the worker
// performing the request and must not block indefinitely.
type Sink interface {
	// OnHeader receives the raw response header, terminator included.
	OnHeader(header []byte) error
	// OnBody receives body bytes in arrival order. chunk is only valid for
	// the duration of the call.
	OnBody(chunk []byte) error
}

// SinkFuncs adapts plain functions to Sink. Nil functions are skipped.
type SinkFuncs struct {
	Header func(header []byte) error
	Body   func(chunk []byte) error
}

func (s SinkFuncs) OnHeader(header []byte) error {
	if s.Header == nil {
		return nil
	}
	return s.Header(header)
}

func (s SinkFuncs) OnBody(chunk []byte) error {
	if s.Body == nil {
		return nil
	}
	return s.Body(chunk)
}

// Request describes one download. It is created by the caller, handed to a
// worker through the queue, and read back by the caller once the worker is
// done with it. It is never used by two goroutines at once.
type Request struct {
	Server string
	Port   uint16
	Path   string
	Sink   Sink

	state         State
	status        protocol.Status
	fileLen       int64
	bytesReceived int64
	err           error
}

// NewRequest creates a request for path on server:port.
func NewRequest(server string, port uint16, path string, sink Sink) *Request {
	return &Request{Server: server, Port: port, Path: path, Sink: sink}
}

// Addr returns the "host:port" the request is sent to.
func (r *Request) Addr() string {
	return net.JoinHostPort(r.Server, strconv.Itoa(int(r.Port)))
}

// State returns the last state reached.
func (r *Request) State() State { return r.state }

// Status returns the response status, or StatusError when no header was
// received because of a transport failure.
func (r *Request) Status() protocol.Status { return r.status }

// FileLen returns the body length declared by the server.
func (r *Request) FileLen() int64 { return r.fileLen }

// BytesReceived returns how many body bytes were delivered to the sink.
func (r *Request) BytesReceived() int64 { return r.bytesReceived }

// Err returns the error Perform reported for this request, if any.
func (r *Request) Err() error { return r.err }
