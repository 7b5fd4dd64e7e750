package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	return m.Called(ctx, routingKey, event).Error(0)
}

func (m *publisherMock) Close() error { return nil }

func TestAuditEmitterBuildsEnvelope(t *testing.T) {
	pub := &publisherMock{}
	pub.On("Publish", mock.Anything, "audit.messaging", mock.AnythingOfType("telemetry.AuditEnvelope")).Return(nil)

	userID := int64(42)
	emitter := NewAuditEmitter(pub, nil, "audit.messaging", "messaging-service", "test")
	emitter.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600)) }
	emitter.Emit(context.Background(), AuditRecord{Action: "group.create", Text: "hello", RequestID: "req-1", UserID: &userID, ChatID: 9})

	pub.AssertExpectations(t)
	env := pub.Calls[0].Arguments.Get(2).(AuditEnvelope)
	assert.Equal(t, "audit_log", env.EventType)
	assert.Equal(t, "req-1", env.RequestID)
	require.NotNil(t, env.UserID)
	assert.Equal(t, "42", *env.UserID)
	assert.Equal(t, "hello", env.Payload.Text)
	assert.Equal(t, AuditInfo, env.Payload.Level)
	assert.Equal(t, "group.create", env.Payload.Action)
	require.NotNil(t, env.Payload.ChatID)
	assert.Equal(t, int64(9), *env.Payload.ChatID)
	assert.Equal(t, "2024-05-01T11:00:00Z", env.OccurredAt)
	assert.Empty(t, env.TraceID)
}

func TestAuditEmitterOmitsEmptyIdentity(t *testing.T) {
	pub := &publisherMock{}
	pub.On("Publish", mock.Anything, "audit.messaging", mock.AnythingOfType("telemetry.AuditEnvelope")).Return(errors.New("down"))

	NewAuditEmitter(pub, nil, "audit.messaging", "messaging-service", "test").
		Emit(context.Background(), AuditRecord{Level: AuditWarn, Text: "x"})

	env := pub.Calls[0].Arguments.Get(2).(AuditEnvelope)
	assert.Nil(t, env.UserID)
	assert.Nil(t, env.Payload.ChatID)
	assert.Equal(t, AuditWarn, env.Payload.Level)
}

func TestNilEmittersAreSafe(t *testing.T) {
	var audit *AuditEmitter
	audit.Emit(context.Background(), AuditRecord{Text: "x"})
	var events *EventEmitter
	events.Emit(context.Background(), EventChatCreated, nil)
}

func TestEventEmitterSwallowsPublishErrors(t *testing.T) {
	pub := &publisherMock{}
	pub.On("Publish", mock.Anything, "messaging.message.created", mock.AnythingOfType("telemetry.DomainEvent")).
		Return(errors.New("broker down"))

	NewEventEmitter(pub, nil, "amqp", "messaging.", "messaging-service").
		Emit(context.Background(), EventMessageCreated, map[string]int64{"id": 1})

	pub.AssertExpectations(t)
	event := pub.Calls[0].Arguments.Get(2).(DomainEvent)
	assert.Equal(t, EventMessageCreated, event.EventName)
	assert.Equal(t, 1, event.SchemaVersion)
}
