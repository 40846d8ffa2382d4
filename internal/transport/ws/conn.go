package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/meet-relay/internal/domain"
)

// wsConn is the engine-facing sink of one socket. Send only enqueues; the
// write loop owns the socket writes.
type wsConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newWsConn(c *websocket.Conn, id string, buffer int) *wsConn {
	return &wsConn{
		id:     id,
		conn:   c,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

// Send queues ev for writing. A full queue means the peer cannot keep up:
// the socket is closed and the engine learns about it as a disconnect.
func (c *wsConn) Send(ev domain.Event) error {
	data, err := encode(ev)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return domain.ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		go func() { _ = c.Close() }()
		return domain.ErrSendBufferFull
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) ID() string { return c.id }
