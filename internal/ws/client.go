package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"chat-presence/internal/models"
	"chat-presence/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

// Router consumes decoded inbound events. chat.Service implements it.
type Router interface {
	Handle(ctx context.Context, connID string, event models.Inbound) error
	Disconnect(ctx context.Context, connID string)
}

// Client is one websocket connection. The hub guards closed and owns the
// lifetime of send.
type Client struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	hub         *Hub
	router      Router
	info        ConnInfo
	ctx         context.Context
	limiter     *rate.Limiter
	defaultRoom string
	closed      bool
	logger      *slog.Logger
}

func newClient(ctx context.Context, conn *websocket.Conn, hub *Hub, router Router, info ConnInfo, opts Options) *Client {
	if conn != nil && opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 && opts.RateBurst > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RateBurst)
	}

	return &Client{
		id:          info.ConnID,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		hub:         hub,
		router:      router,
		info:        info,
		ctx:         ctx,
		limiter:     limiter,
		defaultRoom: opts.DefaultRoom,
		logger:      opts.Logger.With("conn_id", info.ConnID),
	}
}

func (c *Client) readPump() {
	var closeReason string
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("close connection in read pump", "error", err)
		}
		c.router.Disconnect(c.ctx, c.id)
		observability.DecWSActive(wsKind)
		publishWSEvent(c.ctx, wsDisconnect, c.info, closeReason)
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if c.isUnexpectedReadError(err) {
				publishWSEvent(c.ctx, wsError, c.info, closeReason)
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			observability.IncWSEvent(wsKind, "rate_limited")
			c.logger.Debug("rate limit exceeded, dropping frame")
			continue
		}

		c.processMessage(raw)
	}
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("set read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// isUnexpectedReadError logs the read failure and reports whether it is
// worth a ws_error event.
func (c *Client) isUnexpectedReadError(err error) bool {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("frame exceeded maximum size")
		return true
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.logger.Debug("client disconnected", "reason", err)
		return false
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Debug("connection closed", "reason", err)
		return false
	default:
		c.logger.Warn("websocket read error", "error", err)
		return true
	}
}

// processMessage decodes one frame and routes it. Malformed frames and
// rejected events are logged and dropped; the client never sees an error.
func (c *Client) processMessage(raw []byte) {
	event, err := models.DecodeInbound(raw, c.defaultRoom)
	if err != nil {
		observability.IncRoutedEvent("invalid", "rejected")
		c.logger.Debug("dropping malformed frame", "error", err)
		return
	}

	ctx := observability.WithRequestID(c.ctx, c.info.RequestID)
	if err := c.router.Handle(ctx, c.id, event); err != nil {
		c.logger.Debug("event rejected", "event", event.EventName(), "error", err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("close connection in write pump", "error", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeMessage(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeMessage writes one event per frame. A closed send buffer means the
// hub dropped the client.
func (c *Client) writeMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("set write deadline", "error", err)
		return false
	}
	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug("write close message", "error", err)
		}
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Debug("write message", "error", err)
		return false
	}
	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug("write ping", "error", err)
		return false
	}
	return true
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
