package hub

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Subscriber is a destination for encoded steering messages. Send is only ever called
// from one goroutine at a time and must not block longer than the hub's write timeout.
type Subscriber interface {
	Send(data []byte) error
	Close() error
}

type subscription struct {
	id    uuid.UUID
	sub   Subscriber
	since uint64 // last sequence published before Subscribe
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// WebSocketSubscriber delivers messages as websocket text frames.
type WebSocketSubscriber struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocketSubscriber wraps conn. Every write gets writeTimeout as its deadline.
func NewWebSocketSubscriber(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSubscriber {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &WebSocketSubscriber{conn: conn, writeTimeout: writeTimeout}
}

// Send implements Subscriber.
func (w *WebSocketSubscriber) Send(data []byte) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the connection. A close frame that cannot be
// written is reported along with the close error; one already sent is not.
func (w *WebSocketSubscriber) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	err := w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.writeTimeout))
	if errors.Is(err, websocket.ErrCloseSent) {
		err = nil
	}
	if err != nil {
		err = fmt.Errorf("send close frame: %w", err)
	}
	return errors.Join(err, w.conn.Close())
}
