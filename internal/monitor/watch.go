package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sheerbytes/getfile/internal/logging"
)

const idleTimeout = 2 * pingInterval

var dialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
}

// Conn is a subscription to a monitor's /events feed.
type Conn struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	writeMu sync.Mutex
}

// Dial subscribes to the feed at wsURL, e.g. ws://127.0.0.1:9090/events.
func Dial(ctx context.Context, wsURL string, logger *slog.Logger) (*Conn, error) {
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket upgrade failed (%d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket upgrade failed (%d)", resp.StatusCode)
		}
		return nil, err
	}
	return &Conn{conn: conn, logger: logging.OrDiscard(logger)}, nil
}

// ReadLoop calls onEnv for every valid envelope until the connection closes
// or ctx is done. It returns ctx.Err() after cancellation.
func (c *Conn) ReadLoop(ctx context.Context, onEnv func(Envelope)) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPingHandler(func(appData string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		if messageType != websocket.TextMessage {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn("invalid JSON envelope", "error", err)
			continue
		}
		if err := env.ValidateBasic(); err != nil {
			c.logger.Warn("invalid envelope", "error", err)
			continue
		}
		onEnv(env)
	}
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
