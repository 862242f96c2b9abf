package channel

import (
	"context"
	"sync"
	"time"

	"github.com/DaniruKun/dronetracker/control"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WebSocket sends each command pair as one binary message of two bytes
type WebSocket struct {
	mu     sync.Mutex
	ws     *websocket.Conn
	err    error
	closed bool
	done   chan struct{}
}

// DialWebSocket connects to a ws:// or wss:// endpoint
func DialWebSocket(ctx context.Context, url string) (*WebSocket, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return NewWebSocket(conn), nil
}

// NewWebSocket wraps an established connection. Incoming messages are discarded;
// the reader only exists so control frames (ping, close) get processed.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	w := &WebSocket{ws: conn, done: make(chan struct{})}
	go w.drain()
	return w
}

func (w *WebSocket) drain() {
	defer close(w.done)
	for {
		if _, _, err := w.ws.NextReader(); err != nil {
			return
		}
	}
}

// Send writes one binary message
func (w *WebSocket) Send(ctx context.Context, pair control.CommandPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}

	if WriteTimeout > 0 {
		if err := w.ws.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
			w.err = errors.Wrapf(err, "send %s", pair)
			return w.err
		}
	}
	if err := w.ws.WriteMessage(websocket.BinaryMessage, pair.Bytes()); err != nil {
		w.err = errors.Wrapf(err, "send %s", pair)
		return w.err
	}
	return nil
}

// Close sends a close frame and closes the connection
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	w.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

	err := w.ws.Close()
	<-w.done
	return err
}
