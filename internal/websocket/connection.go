package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection wraps a WebSocket with a single writer goroutine so any
// component can call WriteJSON without racing on the socket. The id is the
// connection handle the coordinator keys its ephemeral state on; it is
// unique per physical connection, never reused across reconnects.
type Connection struct {
	id        string
	conn      *websocket.Conn
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded WebSocket and starts its write loop.
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.New().String(),
		conn:    conn,
		writeCh: make(chan []byte, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop(writeTimeout)

	return c
}

func (c *Connection) writeLoop(writeTimeout time.Duration) {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the connection handle.
func (c *Connection) ID() string {
	return c.id
}

// WriteJSON queues a JSON message for delivery. Safe for concurrent use.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// Context is canceled when the connection closes; the handler's ping loop
// watches it.
func (c *Connection) Context() context.Context {
	return c.ctx
}
