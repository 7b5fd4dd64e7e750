package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"messaging-service/internal/observability"
	"messaging-service/internal/telemetry"
)

const (
	wsKind       = "messages"
	wsRoutingKey = "ws_events.messages"
)

// Hub tracks live websocket clients per user and reports their lifecycle.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	events  telemetry.Publisher
	logger  *zap.Logger
}

// NewHub creates an empty hub. events may be nil.
func NewHub(events telemetry.Publisher, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		events:  events,
		logger:  logger,
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.info.UserID]; !ok {
		h.clients[c.info.UserID] = make(map[*Client]struct{})
	}
	h.clients[c.info.UserID][c] = struct{}{}
	h.mu.Unlock()

	observability.IncWSActive(wsKind)
	h.publishLifecycle(c.info, "ws_connect", "")
}

func (h *Hub) remove(c *Client, reason string) {
	h.mu.Lock()
	conns, ok := h.clients[c.info.UserID]
	if ok {
		if _, present := conns[c]; !present {
			ok = false
		}
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.info.UserID)
		}
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	observability.DecWSActive(wsKind)
	h.publishLifecycle(c.info, "ws_disconnect", reason)
}

// ConnectedCount returns how many sockets userID holds on this instance.
func (h *Hub) ConnectedCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// CloseAll disconnects every client, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	var all []*Client
	for _, conns := range h.clients {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		c.close()
	}
}

func (h *Hub) reportError(info ConnInfo, err error) {
	h.logger.Warn("websocket error", zap.String("conn_id", info.ConnID), zap.Int64("user_id", info.UserID), zap.Error(err))
	h.publishLifecycle(info, "ws_error", err.Error())
}

func (h *Hub) publishLifecycle(info ConnInfo, event, reason string) {
	observability.IncWSEvent(wsKind, event)
	if h.events == nil {
		return
	}

	duration := int64(0)
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	envelope := observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]any{
			"ws": map[string]any{
				"kind":        wsKind,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]any{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
		Headers: observability.BuildHeaders(info.RequestID, info.TraceID),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.events.Publish(ctx, wsRoutingKey, envelope); err != nil {
		h.logger.Debug("ws lifecycle publish failed", zap.String("event", event), zap.Error(err))
	}
}
