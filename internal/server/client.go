// Package server manages individual WebSocket clients, handling read/write
// pumps, outbound queuing, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relay/internal/broadcast"
	"github.com/Tyrowin/relay/internal/logx"
	"github.com/Tyrowin/relay/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client represents a WebSocket client connection in the relay.
// It satisfies broadcast.Connection: Send only enqueues, and the write pump
// drains the queue in order.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	maxMessageSize int64
	log            logx.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new Client with a fresh id. The send channel is
// buffered to bufferSize frames.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, maxMessageSize int64, bufferSize int, log logx.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(maxMessageSize)
	}
	if bufferSize <= 0 {
		bufferSize = defaultSendBufferSize
	}

	id := uuid.NewString()
	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, bufferSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: maxMessageSize,
		log:            log.With(logx.String("conn", id), logx.String("addr", addr)),
	}
}

// ID returns the connection id assigned at accept.
func (c *Client) ID() string { return c.id }

// Send enqueues data for the write pump without blocking.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return broadcast.ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return broadcast.ErrSendBufferFull
	}
}

// Close closes the underlying socket. The read pump then fails and the hub
// processes the disconnect.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// finish stops further sends and lets the write pump drain and exit.
func (c *Client) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("set initial read deadline", logx.Err(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("set read deadline in pong handler", logx.Err(err))
		}
		return nil
	})
}

// handleReadError logs the read failure at a level matching how expected it is.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("frame exceeded maximum size", logx.Int64("limit", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug("client closed connection", logx.Err(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("connection closed", logx.Err(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("unexpected WebSocket close", logx.Err(err))
	default:
		c.log.Warn("WebSocket read error", logx.Err(err))
	}
}

// processMessage decodes one raw frame and hands it to the hub. Frames that
// are not JSON or name no known event are logged and dropped.
func (c *Client) processMessage(rawMessage []byte) bool {
	c.log.Trace("inbound frame", logx.Int("bytes", len(rawMessage)))
	in, err := protocol.DecodeInbound(rawMessage)
	if err != nil {
		c.log.Debug("invalid frame", logx.Err(err))
		return false
	}
	return c.hub.dispatch(c, in)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("close connection in readPump", logx.Err(err))
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		c.processMessage(rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("close connection in writePump", logx.Err(err))
	}
}

// handleMessage writes one outgoing frame and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("set write deadline", logx.Err(err))
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("write frame", logx.Err(err))
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("write close message", logx.Err(err))
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("set write deadline for ping", logx.Err(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug("write ping", logx.Err(err))
		return false
	}
	return true
}
