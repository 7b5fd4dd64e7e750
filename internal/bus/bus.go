// Package bus fans published payloads out to in-process topic subscribers.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"messaging-service/internal/observability"
)

const (
	// DefaultQueueSize bounds each subscription's pending payloads.
	DefaultQueueSize = 64
	// DefaultRelayQueueSize bounds payloads waiting to be forwarded to the relay.
	DefaultRelayQueueSize = 256
)

// Handler receives a topic's raw JSON payloads in publish order.
type Handler func(topic string, payload []byte)

// Relay forwards payloads to other instances and feeds theirs back.
type Relay interface {
	Forward(ctx context.Context, topic string, payload []byte) error
	Listen(ctx context.Context, deliver func(topic string, payload []byte)) error
}

// Bus is a topic-keyed publish/subscribe broker. Publish never blocks on a
// slow subscriber; a full queue drops the payload for that subscriber only.
type Bus struct {
	mu        sync.RWMutex
	topics    map[string]map[*Subscription]struct{}
	queueSize int
	relay     Relay
	outbox    chan relayed
	logger    *zap.Logger
}

type relayed struct {
	topic string
	body  []byte
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithRelay attaches a cross-instance relay. Forwarding happens on the
// goroutine started by RunRelay.
func WithRelay(r Relay) Option {
	return func(b *Bus) { b.relay = r }
}

// WithRelayQueueSize overrides DefaultRelayQueueSize.
func WithRelayQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.outbox = make(chan relayed, n)
		}
	}
}

// New constructs a Bus.
func New(logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		topics:    make(map[string]map[*Subscription]struct{}),
		queueSize: DefaultQueueSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.relay != nil && b.outbox == nil {
		b.outbox = make(chan relayed, DefaultRelayQueueSize)
	}
	return b
}

// Subscription is one handler registered on one topic.
type Subscription struct {
	bus     *Bus
	topic   string
	handler Handler
	queue   chan []byte
	done    chan struct{}
	once    sync.Once
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Unsubscribe detaches the subscription. Pending payloads are discarded.
// It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
		observability.AddBusSubscriptions(-1)
	})
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			s.handler(s.topic, payload)
		}
	}
}

// Subscribe registers handler on topic. The handler runs on a goroutine
// owned by the subscription.
func (b *Bus) Subscribe(topic string, handler Handler) *Subscription {
	sub := &Subscription{
		bus:     b,
		topic:   topic,
		handler: handler,
		queue:   make(chan []byte, b.queueSize),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	observability.AddBusSubscriptions(1)
	go sub.run()
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[sub.topic]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
}

// SubscriberCount returns the number of live subscriptions on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Publish encodes payload once and hands it to every current subscriber of
// topic, then queues it for the relay. It never waits on subscribers or on
// the relay; a full relay queue drops the payload for other instances.
func (b *Bus) Publish(_ context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", topic, err)
	}

	b.deliver(topic, body)

	if b.outbox != nil {
		select {
		case b.outbox <- relayed{topic: topic, body: body}:
		default:
			observability.IncBusPublish(observability.BusRelayFailed)
			b.logger.Warn("bus relay queue full, dropping payload", zap.String("topic", topic))
		}
	}
	return nil
}

// deliver performs the local, non-blocking fan-out.
func (b *Bus) deliver(topic string, body []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.topics[topic]
	if len(subs) == 0 {
		observability.IncBusPublish(observability.BusNoSubscriber)
		return
	}
	observability.IncBusPublish(observability.BusDelivered)
	for sub := range subs {
		select {
		case sub.queue <- body:
			observability.IncBusDelivery(observability.BusDelivered)
		default:
			observability.IncBusDelivery(observability.BusDropped)
			b.logger.Debug("bus subscriber queue full, dropping payload", zap.String("topic", topic))
		}
	}
}

// RunRelay forwards queued local payloads to the relay and feeds payloads
// received from other instances into local subscribers until ctx is done.
func (b *Bus) RunRelay(ctx context.Context) error {
	if b.relay == nil {
		<-ctx.Done()
		return nil
	}

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		b.forward(ctx)
	}()
	err := b.relay.Listen(ctx, b.deliver)
	<-forwarded
	return err
}

func (b *Bus) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbox:
			if err := b.relay.Forward(ctx, msg.topic, msg.body); err != nil {
				observability.IncBusPublish(observability.BusRelayFailed)
				b.logger.Warn("bus relay forward failed", zap.String("topic", msg.topic), zap.Error(err))
			}
		}
	}
}
