package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// noDeadline clears a previously set read/write deadline.
var noDeadline time.Time

// Dialer establishes websocket stream connections to the gateway's push
// endpoint. Safe for concurrent use; each Dial yields an independent stream.
type Dialer struct {
	url string
	log *zap.Logger
}

// NewDialer creates a Dialer for url (ws:// or wss://, full path to the
// connection endpoint).
func NewDialer(url string, log *zap.Logger) *Dialer {
	return &Dialer{url: url, log: log}
}

// Dial opens the websocket, sends the connect command carrying the session
// token, and waits for the server's acknowledgement. The context bounds the
// whole handshake.
func (d *Dialer) Dial(ctx context.Context, token string) (*Stream, error) {
	dialer := websocket.Dialer{Subprotocols: []string{"json"}}
	ws, _, err := dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
		_ = ws.SetWriteDeadline(deadline)
	}

	cmd := connectCommand{ID: 1, Connect: connectBody{Token: token}}
	if err := ws.WriteJSON(cmd); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send connect command: %w", err)
	}

	// The first frame back acknowledges the connect command. The server
	// subscribed this session's channel at create time, so no subscribe
	// command follows.
	if _, _, err := ws.ReadMessage(); err != nil {
		ws.Close()
		return nil, fmt.Errorf("await connect reply: %w", err)
	}

	// Handshake deadlines do not apply to the stream itself.
	_ = ws.SetReadDeadline(noDeadline)
	_ = ws.SetWriteDeadline(noDeadline)

	return &Stream{ws: ws, log: d.log}, nil
}

// Stream is one established push connection. ReadEvent is driven by a single
// reader goroutine; Close may be called from another goroutine to unblock it.
type Stream struct {
	ws  *websocket.Conn
	log *zap.Logger
}

// ReadEvent blocks until the next publication arrives and decodes it. Frames
// that are not publications (connect replies, server pings) are skipped.
// Returns an error when the connection is closed or the frame is unreadable.
func (s *Stream) ReadEvent() (PushEvent, error) {
	for {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			return PushEvent{}, err
		}

		var env pushEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			return PushEvent{}, fmt.Errorf("decode push frame: %w", err)
		}
		if env.Push == nil || env.Push.Pub == nil {
			s.log.Debug("skipping non-publication frame")
			continue
		}

		data := env.Push.Pub.Data
		return PushEvent{Token: data.Token, Done: data.Done}, nil
	}
}

// Close tears the connection down, unblocking any pending ReadEvent.
func (s *Stream) Close() error {
	return s.ws.Close()
}
