// Package client is the client side of a relaychat connection: one
// websocket that carries chat and file transfer frames in both directions.
package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("connection closed")

// Connection wraps a websocket. Send may be called from several goroutines;
// writes are serialized.
type Connection struct {
	conn *websocket.Conn
	log  *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

// Dial connects to a relaychat server. origin is sent as the Origin header,
// which the server checks against its allow-list.
func Dial(ctx context.Context, url, origin string, log *zap.SugaredLogger) (*Connection, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	log.Infow("connection", "status", "connected", "url", url)
	return &Connection{conn: conn, log: log}, nil
}

// Send writes one frame.
func (c *Connection) Send(f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadLoop hands every inbound frame to handle until the connection closes
// or ctx is cancelled. A normal close returns nil.
func (c *Connection) ReadLoop(ctx context.Context, handle func(protocol.Frame)) error {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if c.isClosed() {
				return nil
			}
			return err
		}

		frames, err := protocol.DecodeBatch(data)
		if err != nil {
			c.log.Warnw("connection", "error", "invalid frame", "cause", err)
		}
		for _, f := range frames {
			handle(f)
		}
	}
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close sends a close frame and closes the socket.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return c.conn.Close()
}
