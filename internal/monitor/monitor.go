// Package monitor publishes server activity: a JSON health probe, request
// counters, and a websocket feed with one envelope per finished request.
package monitor

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sheerbytes/getfile/internal/gfserver"
	"github.com/sheerbytes/getfile/internal/logging"
	"github.com/sheerbytes/getfile/internal/progress"
	"github.com/sheerbytes/getfile/internal/protocol"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 4096
)

var _ gfserver.Reporter = (*Monitor)(nil)

// Monitor counts finished requests and pushes them to websocket
// subscribers. It implements gfserver.Reporter.
type Monitor struct {
	name     string
	logger   *slog.Logger
	hub      *Hub
	meter    *progress.Meter
	pending  func() int
	upgrader websocket.Upgrader

	mu       sync.Mutex
	byStatus map[protocol.Status]int64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logging.OrDiscard(l) }
}

// WithName sets the server name announced to subscribers.
func WithName(name string) Option {
	return func(m *Monitor) { m.name = name }
}

// WithPending sets the function reporting queued requests, usually
// (*gfserver.Server).Pending.
func WithPending(fn func() int) Option {
	return func(m *Monitor) { m.pending = fn }
}

// New creates a monitor.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		name:     "gfserver",
		logger:   logging.Discard(),
		hub:      NewHub(),
		meter:    progress.NewMeter(),
		byStatus: make(map[protocol.Status]int64),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hub returns the subscriber hub.
func (m *Monitor) Hub() *Hub { return m.hub }

// Report records ev and broadcasts it.
func (m *Monitor) Report(ev gfserver.Event) {
	m.mu.Lock()
	m.byStatus[ev.Status]++
	m.mu.Unlock()
	m.meter.Add(ev.Sent)
	m.meter.Done()

	payload := Transfer{
		Path:       ev.Path,
		Status:     ev.Status.String(),
		Length:     ev.Length,
		Sent:       ev.Sent,
		DurationMs: ev.Duration.Milliseconds(),
		At:         formatTime(time.Now()),
	}
	if ev.Remote != nil {
		payload.Remote = ev.Remote.String()
	}
	if ev.Err != nil {
		payload.Error = ev.Err.Error()
	}
	env, err := NewEnvelope(TypeTransfer, NewMsgID(), payload)
	if err != nil {
		m.logger.Error("failed to create transfer envelope", "error", err)
		return
	}
	m.hub.Broadcast(env)
}

// Stats returns the counters.
func (m *Monitor) Stats() Stats {
	snap := m.meter.Snapshot()
	st := Stats{
		Requests:  snap.Items,
		ByStatus:  make(map[string]int64),
		BytesSent: snap.Bytes,
		RateBps:   snap.RateBps,
		Uptime:    progress.FormatElapsed(snap.Elapsed),
	}
	m.mu.Lock()
	for status, n := range m.byStatus {
		st.ByStatus[status.String()] = n
	}
	m.mu.Unlock()
	if m.pending != nil {
		st.Pending = m.pending()
	}
	return st
}

// Handler serves /health, /stats and /events.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, m.Stats())
	})
	mux.HandleFunc("/events", m.handleEvents)
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (m *Monitor) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(readLimit)

	var writeMu sync.Mutex
	send := func(env Envelope) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(env)
	}

	hello, err := NewEnvelope(TypeHello, NewMsgID(), Hello{Server: m.name, Stats: m.Stats()})
	if err != nil {
		m.logger.Error("failed to create hello envelope", "error", err)
		return
	}
	if err := send(hello); err != nil {
		return
	}

	id := NewMsgID()
	remove := m.hub.Add(id, send)
	defer remove()
	m.logger.Info("subscriber connected", "id", id, "remote_addr", r.RemoteAddr)

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				writeMu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
				writeMu.Unlock()
			}
		}
	}()

	// Subscribers only listen; reading drives control frames and detects
	// the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("subscriber read error", "id", id, "error", err)
			}
			m.logger.Info("subscriber disconnected", "id", id)
			return
		}
	}
}
