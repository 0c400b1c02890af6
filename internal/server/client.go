// Package server manages individual WebSocket connections: read/write pumps,
// rate limiting, and the per-connection session identity.
package server

import (
	"errors"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client represents one persistent connection to a remote peer. A client
// starts anonymous; the identity field is set when the hub processes the
// client's first accepted name event.
//
// The identity and closed fields are owned by the hub run loop and must only
// be touched from there (or from single-goroutine tests); the pumps never
// read them.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	id             string
	addr           string
	identity       string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient wraps a WebSocket connection for the given hub. The send channel
// is buffered; a full buffer drops deliveries rather than blocking the hub.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		id:             uuid.NewString(),
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the connection's log-correlation identifier.
func (c *Client) ID() string {
	return c.id
}

// Identity returns the display name bound to this connection, or the empty
// string while the session is anonymous.
func (c *Client) Identity() string {
	return c.identity
}

// trySend enqueues an encoded event without blocking. It reports false when
// the client is closed or its buffer is full; the caller treats both as a
// swallowed per-recipient delivery failure.
func (c *Client) trySend(data []byte) bool {
	if c.closed || data == nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// setupReadConnection configures the read deadline and pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs the read failure and reports whether the read loop
// should stop. Every non-nil error ends the loop; the distinction here is
// only how loudly it gets logged.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Client %s disconnected: %v", c.addr, err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Client %s connection closed: %v", c.addr, err)
		return true
	}

	log.Printf("WebSocket read error from %s: %v", c.addr, err)
	return true
}

// readPump reads frames from the peer and hands them to the hub run loop.
// Parsing and dispatch happen on the hub loop so registry mutations stay
// serialized. The pump exits on any read error and requests unregistration.
// Channel sends race hub shutdown, so each one also selects on the hub
// context; otherwise a pump could block forever once the run loop exits.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in readPump: %v", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		if c.rateLimiter != nil && !c.rateLimiter.allow() {
			log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding frame",
				c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
			continue
		}

		select {
		case c.hub.inbound <- inboundFrame{client: c, payload: payload}:
		case <-c.hub.ctx.Done():
			return
		}
	}
}

// writePump drains the send channel to the peer and emits periodic pings.
// It exits when the send channel is closed, any write fails, or the hub
// shuts down.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				log.Printf("Error setting write deadline for %s: %v", c.addr, err)
				return
			}
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					log.Printf("Error writing close message to %s: %v", c.addr, err)
				}
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Error writing message to %s: %v", c.addr, err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Error writing ping message to %s: %v", c.addr, err)
				return
			}

		case <-c.hub.ctx.Done():
			return
		}
	}
}
