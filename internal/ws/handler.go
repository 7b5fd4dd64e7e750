package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"messaging-service/internal/auth"
	"messaging-service/internal/bus"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
)

// Subscriber is the part of the delivery bus a connection needs.
type Subscriber interface {
	Subscribe(topic string, handler bus.Handler) *bus.Subscription
}

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	ValidateToken(token string) (int64, error)
}

// PresenceTracker records which users hold live sockets.
type PresenceTracker interface {
	Connect(ctx context.Context, userID int64, connID string) error
	Refresh(ctx context.Context, userID int64) error
	Disconnect(ctx context.Context, userID int64, connID string) error
}

var (
	_ Subscriber      = (*bus.Bus)(nil)
	_ PresenceTracker = (*presence.Tracker)(nil)
)

type noopPresence struct{}

func (noopPresence) Connect(context.Context, int64, string) error    { return nil }
func (noopPresence) Refresh(context.Context, int64) error            { return nil }
func (noopPresence) Disconnect(context.Context, int64, string) error { return nil }

// Handler upgrades authenticated requests into bus-backed websocket clients.
type Handler struct {
	hub       *Hub
	bus       Subscriber
	validator TokenValidator
	presence  PresenceTracker
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

// Option configures a Handler.
type Option func(*Handler)

// WithPresence marks connected users online.
func WithPresence(p PresenceTracker) Option {
	return func(h *Handler) {
		if p != nil {
			h.presence = p
		}
	}
}

// WithAllowedOrigins restricts the Origin header. No origins allows all.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, subscriber Subscriber, validator TokenValidator, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		hub:       hub,
		bus:       subscriber,
		validator: validator,
		presence:  noopPresence{},
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle authenticates the caller, checks the initial ?topics= list and
// upgrades. Browsers cannot set headers on a websocket handshake, so the
// token may also arrive as ?token=.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := observability.Tracer().Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			header = "Bearer " + token
		}
	}
	token, err := auth.ParseBearerToken(header)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	userID, err := h.validator.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	topics := parseTopics(c.Query("topics"))
	for _, topic := range topics {
		if !topicAllowed(topic, userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "topic not allowed: " + topic})
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	info := newConnInfo(c.Request, userID, span.SpanContext().TraceID().String())
	client := newClient(h, conn, info)
	h.hub.add(client)

	pctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := h.presence.Connect(pctx, userID, info.ConnID); err != nil {
		client.logger.Warn("presence connect failed", zap.Error(err))
	}
	cancel()

	for _, topic := range topics {
		_ = client.subscribe(topic)
	}

	go client.writePump()
	go client.readPump()
}
