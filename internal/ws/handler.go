package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"chat-presence/internal/observability"
)

// Options configures accepted connections.
type Options struct {
	Origins        OriginPolicy
	MaxMessageSize int64
	RateBurst      int
	RatePerSecond  float64
	DefaultRoom    string
	Logger         *slog.Logger
}

// Handler upgrades HTTP requests into hub clients.
type Handler struct {
	hub      *Hub
	router   Router
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, router Router, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		hub:    hub,
		router: router,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.Origins.CheckOrigin,
		},
	}
}

// Handle upgrades the connection and registers the client with the hub.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-presence/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upgrade failed")
		h.opts.Logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		Origin:      c.Request.Header.Get("Origin"),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	span.SetAttributes(attribute.String("chat.conn_id", info.ConnID))

	clientCtx := observability.WithRequestID(context.WithoutCancel(ctx), requestID)
	client := newClient(clientCtx, conn, h.hub, h.router, info, h.opts)
	observability.IncWSActive(wsKind)
	if err := h.hub.Register(client); err != nil {
		observability.DecWSActive(wsKind)
		h.opts.Logger.Warn("rejecting websocket client", "conn_id", info.ConnID, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	publishWSEvent(ctx, wsConnect, info, "")
	h.opts.Logger.Info("websocket connected", "conn_id", info.ConnID, "ip", info.IP)
}
