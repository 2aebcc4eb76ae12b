// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chat-relay/internal/chat"
)

// Client represents one WebSocket connection. It owns the connection state,
// the buffered send channel the hub writes into, and the chat session that
// carries the connection's bound display name.
type Client struct {
	id             string
	session        *chat.Session
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a Client with a fresh connection id and an unbound chat
// session. The send channel is buffered to absorb fanout bursts.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)

	id := uuid.NewString()
	return &Client{
		id:             id,
		session:        &chat.Session{ID: id},
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		closed:         false,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
	}
}

// GetSendChan returns the client's send channel for reading outgoing frames.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Warn().Str("conn", c.id).Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			log.Warn().Str("conn", c.id).Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs an appropriate message for the error and reports
// whether the read loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Warn().Str("conn", c.id).Int64("limit", c.maxMessageSize).Msg("frame exceeded maximum size")
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Debug().Str("conn", c.id).Err(err).Msg("client disconnected")
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Debug().Str("conn", c.id).Err(err).Msg("client connection closed")
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		log.Warn().Str("conn", c.id).Err(err).Msg("unexpected websocket error")
		return true
	}

	log.Warn().Str("conn", c.id).Err(err).Msg("websocket read error")
	return true
}

// checkRateLimit reports whether the frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		log.Debug().
			Str("conn", c.id).
			Int("burst", c.rateLimit.Burst).
			Dur("interval", c.rateLimit.RefillInterval).
			Msg("rate limit exceeded; discarding frame")
		return false
	}
	return true
}

// processFrame decodes the envelope and hands the event to the hub loop.
// Frames that are not valid envelopes are discarded here; everything else is
// the engine's call.
func (c *Client) processFrame(raw []byte) bool {
	var env chat.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Debug().Str("conn", c.id).Err(err).Msg("invalid frame")
		return false
	}
	if env.Event == "" {
		log.Debug().Str("conn", c.id).Msg("frame missing event name")
		return false
	}

	select {
	case c.hub.events <- inboundEvent{client: c, name: env.Event, data: env.Data}:
		return true
	case <-c.hub.ctx.Done():
		return false
	}
}

// signalDisconnect hands the client back to the hub loop for unregistration.
// Once the hub has shut down nothing drains the channel anymore, so the send
// gives up instead of parking the pump goroutine forever.
func (c *Client) signalDisconnect() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.ctx.Done():
	}
}

func (c *Client) readPump() {
	defer func() {
		c.signalDisconnect()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Warn().Str("conn", c.id).Err(err).Msg("error closing connection in readPump")
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

		if !c.checkRateLimit() {
			continue
		}

		c.processFrame(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Warn().Str("conn", c.id).Err(err).Msg("error closing connection in writePump")
	}
}

// handleMessage writes one outgoing frame, or the close frame when the send
// channel has been closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Warn().Str("conn", c.id).Err(err).Msg("error setting write deadline")
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		log.Warn().Str("conn", c.id).Err(err).Msg("error writing close message")
	}
	return false
}

// writeTextMessage writes the frame plus any frames already queued behind it.
func (c *Client) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		log.Warn().Str("conn", c.id).Err(err).Msg("error creating writer")
		return false
	}

	if _, err := w.Write(message); err != nil {
		log.Warn().Str("conn", c.id).Err(err).Msg("error writing frame")
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			log.Warn().Str("conn", c.id).Err(err).Msg("error writing frame separator")
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			log.Warn().Str("conn", c.id).Err(err).Msg("error writing queued frame")
			return false
		}
	}

	if err := w.Close(); err != nil {
		log.Warn().Str("conn", c.id).Err(err).Msg("error closing writer")
		return false
	}
	return true
}

// handlePing keeps the connection alive between outgoing frames.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Warn().Str("conn", c.id).Err(err).Msg("error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Debug().Str("conn", c.id).Err(err).Msg("error writing ping message")
		return false
	}
	return true
}
