// Package server manages individual WebSocket sessions, handling read/write
// pumps, rate limiting, and the persist-then-broadcast pipeline for each
// connection.
package server

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Mohamed-Silaya/chat-app/internal/store"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second

	// persistWait bounds one SaveMessage call. It is deliberately detached
	// from the connection's lifetime: a message already read off the wire
	// finishes its persist+broadcast even if the connection is closing.
	persistWait = 5 * time.Second
)

// Client is one live connection to a room. It owns its transport channel
// exclusively; the hub holds a non-owning reference for the room's lifetime.
// The declared username travels per message and is never pinned to the
// session.
type Client struct {
	id             string
	room           string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	store          store.Store
	logger         *zap.Logger
	closed         bool
	maxMessageSize int64
	limiter        *rateLimiter
}

// NewClient creates a session for a freshly upgraded connection to the given
// room. The send channel is buffered so a slow reader does not stall fan-out.
func NewClient(conn *websocket.Conn, hub *Hub, st store.Store, room, addr string, cfg Config, logger *zap.Logger) *Client {
	id := uuid.NewString()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:    id,
		room:  room,
		conn:  conn,
		send:  make(chan []byte, 256),
		hub:   hub,
		store: st,
		logger: logger.With(
			zap.String("client_id", id),
			zap.String("room", room),
			zap.String("addr", addr)),
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
	}
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("error setting initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("error setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// handleReadError classifies a read failure and reports whether the receive
// loop should stop. Every non-nil error ends the loop; classification only
// affects the log line.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("inbound frame exceeded size limit", zap.Int64("limit", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Info("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Info("connection closed", zap.Error(err))
	default:
		c.logger.Warn("websocket read error", zap.Error(err))
	}
	return true
}

// processMessage runs the receive pipeline for one inbound frame:
// parse, persist, broadcast. Parse and persist failures drop the message and
// keep the loop alive; nothing is ever reported back to the sender.
func (c *Client) processMessage(raw []byte) bool {
	msg, err := parseInbound(raw)
	if err != nil {
		c.logger.Warn("dropping malformed payload", zap.Error(err))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistWait)
	defer cancel()

	saved, err := c.store.SaveMessage(ctx, c.room, msg.Username, msg.Message)
	if err != nil {
		c.logger.Error("dropping message: persist failed",
			zap.String("username", msg.Username), zap.Error(err))
		return false
	}

	payload, err := chatPayload(msg.Message, msg.Username, saved.ID, saved.Timestamp)
	if err != nil {
		c.logger.Error("dropping message: encode failed", zap.Error(err))
		return false
	}

	// The hub stops receiving once its loop exits; don't park on a dead
	// channel during shutdown.
	select {
	case c.hub.broadcast <- roomMessage{Room: c.room, Payload: payload}:
	case <-c.hub.ctx.Done():
	}
	return true
}

// readPump receives inbound frames until the transport closes. The deferred
// unregister guarantees the room membership is released on every exit path,
// clean or abrupt.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
			// Shutdown tears down memberships itself.
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("error closing connection in readPump", zap.Error(err))
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		if !c.limiter.allow() {
			c.logger.Warn("rate limit exceeded; discarding message")
			continue
		}

		c.processMessage(raw)
	}
}

// writePump drains the send channel to the connection and keeps it alive
// with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("error closing connection in writePump", zap.Error(err))
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !c.writeOutbound(payload, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeOutbound writes one payload plus anything else already queued.
// Returns false when the pump should stop.
func (c *Client) writeOutbound(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("error setting write deadline", zap.Error(err))
		return false
	}

	if !ok {
		// The hub closed the send channel on unregister.
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("error writing close message", zap.Error(err))
		}
		return false
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.logger.Warn("error creating writer", zap.Error(err))
		return false
	}

	if _, err := w.Write(payload); err != nil {
		c.logger.Warn("error writing message", zap.Error(err))
		return false
	}

	// Coalesce whatever fan-out queued behind this payload.
	queued := len(c.send)
	for i := 0; i < queued; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.logger.Warn("error writing separator", zap.Error(err))
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			c.logger.Warn("error writing queued message", zap.Error(err))
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.logger.Warn("error closing writer", zap.Error(err))
		return false
	}
	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("error setting ping deadline", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn("error writing ping", zap.Error(err))
		return false
	}
	return true
}
