package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"messaging-service/internal/observability"
)

// Domain event names.
const (
	EventMessageCreated = "message.created"
	EventMessageSeen    = "message.seen"
	EventMessageDeleted = "message.deleted"
	EventMessageUnsent  = "message.unsent"
	EventChatCreated    = "chat.created"
)

// DomainEvent is the envelope published for downstream consumers.
type DomainEvent struct {
	SchemaVersion int    `json:"schema_version"`
	EventName     string `json:"event_name"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	TraceID       string `json:"trace_id,omitempty"`
	Payload       any    `json:"payload"`
}

// EventEmitter publishes domain events best-effort; failures are logged and
// counted, never returned.
type EventEmitter struct {
	publisher Publisher
	logger    *zap.Logger
	broker    string
	prefix    string
	service   string
}

// NewEventEmitter constructs an emitter. Routing keys are prefix + event name.
func NewEventEmitter(publisher Publisher, logger *zap.Logger, broker, prefix, service string) *EventEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventEmitter{publisher: publisher, logger: logger, broker: broker, prefix: prefix, service: service}
}

func (e *EventEmitter) Emit(ctx context.Context, name string, payload any) {
	if e == nil || e.publisher == nil {
		return
	}
	event := DomainEvent{
		SchemaVersion: 1,
		EventName:     name,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		TraceID:       observability.TraceIDFromContext(ctx),
		Payload:       payload,
	}
	if err := e.publisher.Publish(ctx, e.prefix+name, event); err != nil {
		observability.IncBrokerPublishError(e.broker)
		e.logger.Warn("domain event publish failed", zap.String("event", name), zap.Error(err))
	}
}
