// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one websocket connection in a room. It implements
// broadcast.Recipient: Send queues the frame for the write pump. Chat and
// notices fail at once on a full buffer; transfer frames wait up to
// transferWait for a slot, which slows the relaying sender down.
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	addr string
	room string

	mu       sync.Mutex
	send     chan []byte
	closed   bool
	quit     chan struct{}
	quitOnce sync.Once

	transferWait   time.Duration
	maxMessageSize int64
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig
	log            *zap.SugaredLogger
}

// NewClient creates a client for conn in room. Settings come from the hub's
// configuration.
func NewClient(conn *websocket.Conn, hub *Hub, addr, room string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:             id,
		conn:           conn,
		hub:            hub,
		addr:           addr,
		room:           room,
		send:           make(chan []byte, cfg.SendBuffer),
		quit:           make(chan struct{}),
		transferWait:   writeWait,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		log:            hub.log.With("client", id[:8], "addr", addr, "room", room),
	}
}

// ID returns the client's unique id.
func (c *Client) ID() string {
	return c.id
}

// Room returns the room the client joined.
func (c *Client) Room() string {
	return c.room
}

func (c *Client) String() string {
	return fmt.Sprintf("%s@%s", c.id[:8], c.addr)
}

// Send queues f for delivery.
func (c *Client) Send(f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	if f.IsTransfer() {
		return c.enqueue(data, c.transferWait)
	}
	return c.enqueue(data, 0)
}

// enqueue hands data to the write pump, waiting at most wait for a free
// slot. closeSend interrupts the wait.
func (c *Client) enqueue(data []byte, wait time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
	}
	if wait <= 0 {
		return errSendBufferFull
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case c.send <- data:
		return nil
	case <-c.quit:
		return errClientClosed
	case <-timer.C:
		return errSendBufferFull
	}
}

// closeSend closes the send channel once; the write pump then sends a close
// frame and exits.
func (c *Client) closeSend() bool {
	c.quitOnce.Do(func() { close(c.quit) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warnw("client", "error", "set read deadline", "cause", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// logReadError classifies the error that ended the read loop.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warnw("client", "error", "message too large", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.log.Infow("client", "status", "disconnected", "cause", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Infow("client", "status", "connection closed", "cause", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseMessageTooBig):
		c.log.Warnw("client", "error", "unexpected close", "cause", err)
	default:
		c.log.Warnw("client", "error", "read", "cause", err)
	}
}

// allow applies the rate limit to chat and command frames. File transfer
// frames are not limited; a single file is many chunks.
func (c *Client) allow(f protocol.Frame) bool {
	if f.Type != protocol.TypeChat && f.Type != protocol.TypeCommand {
		return true
	}
	if c.limiter.Allow() {
		return true
	}
	c.log.Warnw("client", "error", "rate limit exceeded", "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
	return false
}

// handleFrame stamps an inbound frame with its origin and relays it to the
// client's room.
func (c *Client) handleFrame(f protocol.Frame) {
	if f.Type == protocol.TypeNotice {
		c.log.Warnw("client", "error", "clients may not send notices")
		return
	}
	if !c.allow(f) {
		return
	}

	f.From = c.id[:8]
	f.Room = c.room
	if f.IsTransfer() {
		c.log.Debugw("client", "relay", f.Type, "transfer_id", f.TransferID())
	}
	c.hub.BroadcastRoom(c, f)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warnw("client", "error", "close in read pump", "cause", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		frames, err := protocol.DecodeBatch(raw)
		if err != nil {
			c.log.Warnw("client", "error", "invalid frame", "cause", err)
		}
		for _, f := range frames {
			c.handleFrame(f)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warnw("client", "error", "close in write pump", "cause", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.write(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.ping() {
				return
			}
		}
	}
}

// write sends message plus whatever is already queued as one websocket
// message, newline separated. A closed send channel becomes a close frame.
func (c *Client) write(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warnw("client", "error", "set write deadline", "cause", err)
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Warnw("client", "error", "write close", "cause", err)
		}
		return false
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Warnw("client", "error", "next writer", "cause", err)
		return false
	}
	if _, err := w.Write(message); err != nil {
		c.log.Warnw("client", "error", "write", "cause", err)
		return false
	}

	for n := len(c.send); n > 0; n-- {
		queued, ok := <-c.send
		if !ok {
			break
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.log.Warnw("client", "error", "write separator", "cause", err)
			return false
		}
		if _, err := w.Write(queued); err != nil {
			c.log.Warnw("client", "error", "write queued", "cause", err)
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Warnw("client", "error", "flush", "cause", err)
		return false
	}
	return true
}

func (c *Client) ping() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warnw("client", "error", "set write deadline", "cause", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warnw("client", "error", "ping", "cause", err)
		return false
	}
	return true
}
