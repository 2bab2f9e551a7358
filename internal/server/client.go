// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/pairchat/internal/relay"
)

const writeWait = 10 * time.Second

var errSendBufferFull = errors.New("send buffer full")

// Client represents a WebSocket client connection in the chat system.
// It is the transport behind a relay.Session: the hub calls its relay.Conn
// methods from the event loop and the pumps move frames on and off the wire.
type Client struct {
	conn           *websocket.Conn
	send           chan outbound
	hub            *Hub
	addr           string
	session        *relay.Session
	maxMessageSize int64
	rateLimiter    *rate.Limiter
	rateLimit      RateLimitConfig
	readWait       time.Duration

	// closed and closing are only touched by the hub goroutine.
	closed  bool
	closing bool
}

var _ relay.Conn = (*Client)(nil)

// NewClient creates a new Client instance with the provided WebSocket connection,
// hub reference, and client address, and attaches a fresh relay session to it.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	c := &Client{
		conn:           conn,
		send:           make(chan outbound, cfg.SendBufferSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		readWait:       2*cfg.PingInterval + writeWait,
	}
	c.session = relay.NewSession(c)
	return c
}

// Session returns the relay session bound to this client.
func (c *Client) Session() *relay.Session {
	return c.session
}

// Send queues a text frame without blocking.
func (c *Client) Send(payload []byte) error {
	return c.enqueue(outbound{kind: frameText, data: payload})
}

// Ping queues a ping control frame without blocking.
func (c *Client) Ping() error {
	return c.enqueue(outbound{kind: framePing})
}

// CloseWith queues a close frame carrying code behind any pending frames.
// Nothing is sent after it.
func (c *Client) CloseWith(code int, reason string) {
	if c.closed || c.closing {
		return
	}
	if err := c.enqueue(outbound{kind: frameClose, code: code, reason: reason}); err != nil {
		c.Terminate()
	}
	c.closing = true
}

// Terminate drops the underlying connection without a close handshake.
func (c *Client) Terminate() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Warn().Err(err).Str("remote_addr", c.addr).Msg("error terminating connection")
	}
}

// RemoteAddr returns the peer address the connection was accepted from.
func (c *Client) RemoteAddr() string {
	return c.addr
}

func (c *Client) enqueue(frame outbound) error {
	if c.closed || c.closing {
		return relay.ErrConnClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

// setupReadConnection configures read deadlines and the pong handler. The
// deadline is a backstop behind the hub's liveness sweep.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readWait)); err != nil {
		log.Warn().Err(err).Str("remote_addr", c.addr).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		c.session.MarkAlive()
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readWait)); err != nil {
			log.Warn().Err(err).Str("remote_addr", c.addr).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs the error at a level matching how expected it is.
func (c *Client) handleReadError(err error) {
	logger := log.With().Str("remote_addr", c.addr).Str("conn_id", c.session.ID()).Logger()

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		logger.Info().Int64("limit", c.maxMessageSize).Msg("frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		logger.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		logger.Debug().Err(err).Msg("connection closed")
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		logger.Warn().Err(err).Msg("unexpected websocket close")
	default:
		logger.Debug().Err(err).Msg("websocket read error")
	}
}

// checkRateLimit reports whether the next inbound frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		log.Debug().
			Str("remote_addr", c.addr).
			Int("burst", c.rateLimit.Burst).
			Dur("interval", c.rateLimit.RefillInterval).
			Msg("rate limit exceeded; discarding frame")
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Warn().Err(err).Str("remote_addr", c.addr).Msg("error closing connection in readPump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		if !c.hub.submit(inboundFrame{client: c, data: raw}) {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.closeConnection()

	for c.processWriteEvent() {
	}
}

// processWriteEvent waits for the next queued frame and returns false when
// the pump should stop.
func (c *Client) processWriteEvent() bool {
	select {
	case frame, ok := <-c.send:
		return c.handleFrame(frame, ok)
	case <-c.hub.ctx.Done():
		return false
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Warn().Err(err).Str("remote_addr", c.addr).Msg("error closing connection in writePump")
	}
}

func (c *Client) handleFrame(frame outbound, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Warn().Err(err).Str("remote_addr", c.addr).Msg("error setting write deadline")
		return false
	}

	if !ok {
		return c.writeClose(websocket.CloseNormalClosure, "")
	}

	switch frame.kind {
	case framePing:
		return c.write(websocket.PingMessage, nil)
	case frameClose:
		return c.writeClose(frame.code, frame.reason)
	default:
		return c.write(websocket.TextMessage, frame.data)
	}
}

func (c *Client) write(messageType int, data []byte) bool {
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		if !isExpectedCloseError(err) {
			log.Debug().Err(err).Str("remote_addr", c.addr).Msg("error writing frame")
		}
		return false
	}
	return true
}

// writeClose sends a close frame; the pump always stops afterwards.
func (c *Client) writeClose(code int, reason string) bool {
	c.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	return false
}
