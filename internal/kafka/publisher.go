package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes events to a single Kafka topic. The routing key becomes
// the message key, so events for one key stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewPublisher builds a synchronous writer requiring acks from all replicas.
func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	logger.Info("kafka publisher configured", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return &Publisher{writer: w, topic: topic, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:     []byte(routingKey),
		Value:   body,
		Time:    time.Now(),
		Headers: []kafkago.Header{{Key: "content-type", Value: []byte("application/json")}},
	})
	if err != nil {
		p.logger.Warn("kafka publish failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
	return err
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
