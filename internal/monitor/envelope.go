package monitor

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnvelopeVersion is the version stamped on every envelope.
const EnvelopeVersion = 1

// Envelope types.
const (
	TypeHello    = "hello"
	TypeTransfer = "transfer"
)

// Envelope wraps every message pushed to /events subscribers.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	MsgID   string          `json:"msg_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope creates an envelope and marshals payload into it.
func NewEnvelope(msgType, msgID string, payload any) (Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal payload: %w", err)
		}
		raw = b
	}
	return Envelope{
		V:       EnvelopeVersion,
		Type:    msgType,
		MsgID:   msgID,
		Payload: raw,
	}, nil
}

// DecodePayload unmarshals the payload into out.
func (e Envelope) DecodePayload(out any) error {
	if len(e.Payload) == 0 {
		return errors.New("payload is empty")
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

// ValidateBasic checks the fields every envelope must carry.
func (e Envelope) ValidateBasic() error {
	if e.V != EnvelopeVersion {
		return fmt.Errorf("invalid envelope version: got %d, expected %d", e.V, EnvelopeVersion)
	}
	if e.Type == "" {
		return errors.New("type is required")
	}
	if e.MsgID == "" {
		return errors.New("msg_id is required")
	}
	return nil
}

// NewMsgID returns a random 16-character hex identifier.
func NewMsgID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}

// Transfer is the payload of a TypeTransfer envelope.
type Transfer struct {
	Path       string `json:"path"`
	Remote     string `json:"remote,omitempty"`
	Status     string `json:"status"`
	Length     int64  `json:"length"`
	Sent       int64  `json:"sent"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	At         string `json:"at"`
}

// Hello is sent to every subscriber right after it connects.
type Hello struct {
	Server string `json:"server"`
	Stats  Stats  `json:"stats"`
}

// Stats is served by /stats and embedded in Hello.
type Stats struct {
	Requests  int64            `json:"requests"`
	ByStatus  map[string]int64 `json:"by_status"`
	BytesSent int64            `json:"bytes_sent"`
	RateBps   float64          `json:"rate_bps"`
	Uptime    string           `json:"uptime"`
	Pending   int              `json:"pending"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
