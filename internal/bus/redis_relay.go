package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRelayChannel is the Redis channel shared by all instances.
const DefaultRelayChannel = "messaging:bus"

type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay mirrors local publishes over Redis pub/sub so subscribers
// connected to other instances receive them.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *zap.Logger
}

// NewRedisRelay constructs a relay. instanceID must be unique per process.
func NewRedisRelay(client *redis.Client, channel, instanceID string, logger *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{client: client, channel: channel, instanceID: instanceID, logger: logger}
}

func (r *RedisRelay) Forward(ctx context.Context, topic string, payload []byte) error {
	body, err := encodeRelay(r.instanceID, topic, payload)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, body).Err()
}

func (r *RedisRelay) Listen(ctx context.Context, deliver func(topic string, payload []byte)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("bus relay listening", zap.String("channel", r.channel), zap.String("instance", r.instanceID))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			topic, payload, ok := decodeRelay(r.instanceID, []byte(msg.Payload))
			if !ok {
				continue
			}
			deliver(topic, payload)
		}
	}
}

func encodeRelay(origin, topic string, payload []byte) ([]byte, error) {
	return json.Marshal(relayEnvelope{Origin: origin, Topic: topic, Payload: payload})
}

// decodeRelay drops malformed envelopes and this instance's own echoes.
func decodeRelay(self string, body []byte) (string, []byte, bool) {
	var env relayEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", nil, false
	}
	if env.Origin == self || env.Topic == "" {
		return "", nil, false
	}
	return env.Topic, env.Payload, true
}
