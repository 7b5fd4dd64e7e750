package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"messaging-service/internal/observability"
)

// Publisher delivers envelopes to an event broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

const (
	AuditInfo  = "INFO"
	AuditWarn  = "WARN"
	AuditError = "ERROR"
)

// AuditRecord is one auditable action.
type AuditRecord struct {
	Level     string
	Action    string
	Text      string
	RequestID string
	UserID    *int64
	ChatID    int64
}

// AuditEmitter publishes audit records as versioned envelopes. A nil
// emitter drops everything.
type AuditEmitter struct {
	publisher   Publisher
	logger      *zap.Logger
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string `json:"level"`
	Action string `json:"action,omitempty"`
	Text   string `json:"text"`
	ChatID *int64 `json:"chat_id,omitempty"`
}

func NewAuditEmitter(publisher Publisher, logger *zap.Logger, routingKey, service, environment string) *AuditEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditEmitter{
		publisher:   publisher,
		logger:      logger,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}
	if rec.Level == "" {
		rec.Level = AuditInfo
	}

	envelope := AuditEnvelope{
		SchemaVersion: 2,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		TraceID:       observability.TraceIDFromContext(ctx),
		Payload: AuditPayload{
			Level:  rec.Level,
			Action: rec.Action,
			Text:   rec.Text,
		},
	}
	if rec.UserID != nil {
		uid := strconv.FormatInt(*rec.UserID, 10)
		envelope.UserID = &uid
	}
	if rec.ChatID != 0 {
		chatID := rec.ChatID
		envelope.Payload.ChatID = &chatID
	}

	e.logger.Debug("audit emit",
		zap.String("level", rec.Level),
		zap.String("action", rec.Action),
		zap.String("request_id", rec.RequestID),
		zap.Int64p("user_id", rec.UserID),
	)
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.logger.Warn("audit publish failed", zap.String("action", rec.Action), zap.Error(err))
	}
}
