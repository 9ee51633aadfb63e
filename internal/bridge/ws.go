// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout    = 10 * time.Second
	wsPingInterval    = 30 * time.Second
	wsMaxMessageBytes = 1 << 20
)

// WSTransport adapts an upgraded WebSocket connection into a bridge
// transport. The embedded runtime connects back over this socket: commands
// go out as JSON envelopes, runtime events come in through ReadPump.
type WSTransport struct {
	conn *websocket.Conn

	// gorilla allows one concurrent writer per connection.
	writeMu sync.Mutex
}

// NewWSTransport wraps an already-upgraded connection.
func NewWSTransport(conn *websocket.Conn) *WSTransport {
	return &WSTransport{conn: conn}
}

// Send writes one envelope to the runtime.
func (t *WSTransport) Send(ctx context.Context, env Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteJSON(env)
}

// ReadPump reads runtime messages until the connection or context ends,
// feeding each raw message into handle. It returns nil on a clean close and
// the close error otherwise. Messages are handled sequentially, preserving
// the order the runtime sent them.
func (t *WSTransport) ReadPump(ctx context.Context, handle func([]byte)) error {
	t.conn.SetReadLimit(wsMaxMessageBytes)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.conn.Close()
		case <-stop:
		}
	}()
	go t.pingLoop(stop)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}
		handle(data)
	}
}

// Close tells the runtime the session is over and drops the connection.
func (t *WSTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return t.conn.Close()
}

func (t *WSTransport) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.writeMu.Lock()
			_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
