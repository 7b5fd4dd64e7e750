package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"messaging-service/internal/bus"
	"messaging-service/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var errTopicForbidden = errors.New("topic not addressed to this user")

// Client is one websocket connection and the bus subscriptions it holds.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	info     ConnInfo
	bus      Subscriber
	presence PresenceTracker
	logger   *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	subs map[string]*bus.Subscription
}

func newClient(h *Handler, conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		hub:      h.hub,
		conn:     conn,
		info:     info,
		bus:      h.bus,
		presence: h.presence,
		logger:   h.logger.With(zap.String("conn_id", info.ConnID), zap.Int64("user_id", info.UserID)),
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		subs:     make(map[string]*bus.Subscription),
	}
}

func (c *Client) subscribe(topic string) error {
	if !topicAllowed(topic, c.info.UserID) {
		return errTopicForbidden
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[topic]; ok {
		return nil
	}
	c.subs[topic] = c.bus.Subscribe(topic, c.forward)
	return nil
}

func (c *Client) unsubscribe(topic string) {
	c.mu.Lock()
	sub, ok := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()
	if ok {
		sub.Unsubscribe()
	}
}

func (c *Client) unsubscribeAll() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*bus.Subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// forward runs on the subscription's goroutine.
func (c *Client) forward(topic string, payload []byte) {
	c.enqueue(serverFrame{Type: frameEvent, Topic: topic, Event: payload})
}

// enqueue never blocks; a client that cannot keep up loses frames.
func (c *Client) enqueue(frame serverFrame) {
	body, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("encode frame", zap.Error(err))
		return
	}
	select {
	case <-c.done:
	case c.send <- body:
	default:
		observability.IncWSEvent(wsKind, "ws_drop")
		c.logger.Warn("websocket send buffer full, dropping frame", zap.String("topic", frame.Topic))
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) readPump() {
	var reason string
	defer func() {
		c.unsubscribeAll()
		c.close()
		c.hub.remove(c, reason)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.presence.Disconnect(ctx, c.info.UserID, c.info.ConnID); err != nil {
			c.logger.Warn("presence disconnect failed", zap.Error(err))
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.presence.Refresh(ctx, c.info.UserID); err != nil {
			c.logger.Debug("presence refresh failed", zap.Error(err))
		}
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			reason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.reportError(c.info, err)
			}
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.enqueue(serverFrame{Type: frameError, Error: "malformed frame"})
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame clientFrame) {
	switch frame.Action {
	case actionSubscribe:
		if err := c.subscribe(frame.Topic); err != nil {
			c.enqueue(serverFrame{Type: frameError, Topic: frame.Topic, Error: err.Error()})
			return
		}
		c.enqueue(serverFrame{Type: frameSubscribed, Topic: frame.Topic})
	case actionUnsubscribe:
		c.unsubscribe(frame.Topic)
		c.enqueue(serverFrame{Type: frameUnsubscribed, Topic: frame.Topic})
	default:
		c.enqueue(serverFrame{Type: frameError, Error: "unknown action " + frame.Action})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case body := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				c.hub.reportError(c.info, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
