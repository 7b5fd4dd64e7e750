// Package service orchestrates chats, messages and live delivery.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"messaging-service/internal/apperr"
	"messaging-service/internal/bus"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/pagination"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// Delivery payload messages sent to live subscribers.
const (
	msgMessageSent    = "Message sent successfully"
	msgChatUpdated    = "Updated chat sent successfully"
	msgMessageDeleted = "Message deleted successfully"
	msgMessageUnsent  = "Message unsent successfully"
)

// Publisher is the delivery capability the service publishes through.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// EventEmitter publishes domain events for downstream consumers.
type EventEmitter interface {
	Emit(ctx context.Context, name string, payload any)
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, string, any) {}

// Service implements the request-facing chat and message operations.
type Service struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	users    repositories.UserDirectory
	delivery Publisher
	events   EventEmitter
	logger   *zap.Logger
	tracer   trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithEvents attaches a domain event emitter.
func WithEvents(e EventEmitter) Option {
	return func(s *Service) {
		if e != nil {
			s.events = e
		}
	}
}

// New constructs a Service. delivery is required; it is the only path to
// live subscribers.
func New(chats repositories.ChatRepository, messages repositories.MessageRepository, users repositories.UserDirectory, delivery Publisher, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		chats:    chats,
		messages: messages,
		users:    users,
		delivery: delivery,
		events:   noopEmitter{},
		logger:   logger,
		tracer:   observability.Tracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessageInput carries a send request. Attachments take precedence over Text.
type SendMessageInput struct {
	SenderID    int64
	ReceiverID  int64
	Text        string
	Attachments []Attachment
}

// CreateGroupInput carries a group creation request.
type CreateGroupInput struct {
	AdminID        int64
	Name           string
	ParticipantIDs []int64
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := s.tracer.Start(ctx, "service."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		err := *errp
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.IncServiceOp(op, err)
		span.End()
	}
}

// SendMessage resolves or creates the direct chat between sender and
// receiver, stores the message, moves the chat's last message pointer and
// notifies live subscribers. Nothing is written when validation or chat
// resolution fails; delivery failures never fail the send.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (msg models.Message, err error) {
	ctx, finish := s.start(ctx, "SendMessage",
		attribute.Int64("sender_id", in.SenderID), attribute.Int64("receiver_id", in.ReceiverID))
	defer finish(&err)

	if in.SenderID == 0 || in.ReceiverID == 0 {
		return models.Message{}, fmt.Errorf("sender and receiver are required: %w", apperr.ErrValidation)
	}
	content, err := BuildContent(in.Text, in.Attachments)
	if err != nil {
		return models.Message{}, err
	}

	chat, _, err := s.resolveDirectChat(ctx, in.SenderID, in.ReceiverID)
	if err != nil {
		return models.Message{}, err
	}

	msg, err = s.messages.Append(ctx, models.Message{
		ChatID:     chat.ID,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Content:    content,
	})
	if err != nil {
		return models.Message{}, err
	}

	// The pointer is a display convenience; the message is already durable.
	if err := s.chats.SetLastMessage(ctx, chat.ID, msg.ID); err != nil {
		s.logger.Warn("set last message failed",
			zap.Int64("chat_id", chat.ID), zap.Int64("message_id", msg.ID), zap.Error(err))
	}

	payload := s.messageView(ctx, msg)
	s.publish(ctx, bus.MessageTopic(chat.ID, in.ReceiverID), models.DeliveryEvent{
		Type: models.EventMessageCreated, Message: msgMessageSent, Data: payload,
	})
	s.publish(ctx, bus.ChatTopic(in.SenderID, in.ReceiverID), models.DeliveryEvent{
		Type: models.EventChatUpdated, Message: msgChatUpdated, Data: payload,
	})
	s.events.Emit(ctx, telemetry.EventMessageCreated, msg)

	return msg, nil
}

// resolveDirectChat returns the pair's chat, creating it when absent, and
// reports whether it was created by this call.
func (s *Service) resolveDirectChat(ctx context.Context, userID, counterpartID int64) (models.Chat, bool, error) {
	if userID == counterpartID {
		return models.Chat{}, false, fmt.Errorf("cannot chat with yourself: %w", apperr.ErrValidation)
	}
	chat, ok, err := s.chats.FindDirectChat(ctx, userID, counterpartID)
	if err != nil {
		return models.Chat{}, false, err
	}
	if ok {
		return chat, false, nil
	}

	exists, err := s.users.UserExists(ctx, counterpartID)
	if err != nil {
		return models.Chat{}, false, err
	}
	if !exists {
		return models.Chat{}, false, repositories.ErrUserNotFound
	}

	chat, err = s.chats.CreateDirectChat(ctx, userID, counterpartID)
	if err != nil {
		return models.Chat{}, false, err
	}
	return chat, true, nil
}

func (s *Service) messageView(ctx context.Context, msg models.Message) models.MessageView {
	view := models.MessageView{Message: msg}
	sender, err := s.users.GetUserSummary(ctx, msg.SenderID)
	if err == nil {
		view.Sender = &sender
	}
	return view
}

func (s *Service) publish(ctx context.Context, topic string, event models.DeliveryEvent) {
	if err := s.delivery.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("delivery publish failed", zap.String("topic", topic), zap.String("type", event.Type), zap.Error(err))
	}
}

// MarkMessageSeen records that userID has seen the message.
func (s *Service) MarkMessageSeen(ctx context.Context, messageID, userID int64) (msg models.Message, err error) {
	ctx, finish := s.start(ctx, "MarkMessageSeen", attribute.Int64("message_id", messageID))
	defer finish(&err)

	msg, err = s.messages.MarkSeen(ctx, messageID, userID)
	if err != nil {
		return models.Message{}, err
	}
	s.events.Emit(ctx, telemetry.EventMessageSeen, map[string]int64{"message_id": msg.ID, "chat_id": msg.ChatID, "user_id": userID})
	return msg, nil
}

// MarkMessageDeleted hides the message for userID and tells the receiver.
func (s *Service) MarkMessageDeleted(ctx context.Context, messageID, userID int64) (msg models.Message, err error) {
	ctx, finish := s.start(ctx, "MarkMessageDeleted", attribute.Int64("message_id", messageID))
	defer finish(&err)

	msg, err = s.messages.MarkDeleted(ctx, messageID, userID)
	if err != nil {
		return models.Message{}, err
	}
	s.publish(ctx, bus.MessageTopic(msg.ChatID, msg.ReceiverID), models.DeliveryEvent{
		Type: models.EventMessageUpdated, Message: msgMessageDeleted, Data: msg,
	})
	s.events.Emit(ctx, telemetry.EventMessageDeleted, map[string]int64{"message_id": msg.ID, "chat_id": msg.ChatID, "user_id": userID})
	return msg, nil
}

// MarkMessageUnsent records that userID retracted the message.
func (s *Service) MarkMessageUnsent(ctx context.Context, messageID, userID int64) (msg models.Message, err error) {
	ctx, finish := s.start(ctx, "MarkMessageUnsent", attribute.Int64("message_id", messageID))
	defer finish(&err)

	msg, err = s.messages.MarkUnsent(ctx, messageID, userID)
	if err != nil {
		return models.Message{}, err
	}
	s.publish(ctx, bus.MessageTopic(msg.ChatID, msg.ReceiverID), models.DeliveryEvent{
		Type: models.EventMessageUpdated, Message: msgMessageUnsent, Data: msg,
	})
	s.events.Emit(ctx, telemetry.EventMessageUnsent, map[string]int64{"message_id": msg.ID, "chat_id": msg.ChatID, "user_id": userID})
	return msg, nil
}

// ListChats pages through userID's chats, optionally filtered by name.
func (s *Service) ListChats(ctx context.Context, userID int64, name string, req pagination.Request) (page pagination.Page[models.ChatView], err error) {
	ctx, finish := s.start(ctx, "ListChats", attribute.Int64("user_id", userID))
	defer finish(&err)

	return s.chats.ListChatsForUser(ctx, repositories.ChatFilter{UserID: userID, Name: name}, req)
}

// GetChat returns a chat populated with participant and last message details.
func (s *Service) GetChat(ctx context.Context, chatID int64) (view models.ChatView, err error) {
	ctx, finish := s.start(ctx, "GetChat", attribute.Int64("chat_id", chatID))
	defer finish(&err)

	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.ChatView{}, err
	}
	view = models.ChatView{Chat: chat}

	summaries, err := s.users.BulkSummaries(ctx, chat.Participants)
	if err != nil {
		return models.ChatView{}, err
	}
	view.ParticipantDetails = make([]models.UserSummary, 0, len(chat.Participants))
	for _, id := range chat.Participants {
		if u, ok := summaries[id]; ok {
			view.ParticipantDetails = append(view.ParticipantDetails, u)
		}
	}

	if chat.LastMessageID != nil {
		last, err := s.messages.GetMessage(ctx, *chat.LastMessageID)
		switch {
		case err == nil:
			lv := s.messageView(ctx, last)
			view.LastMessage = &lv
		case !errors.Is(err, apperr.ErrNotFound):
			return models.ChatView{}, err
		}
	}
	return view, nil
}

// CreateDirectChat returns the chat between userID and counterpartID,
// creating it when needed.
func (s *Service) CreateDirectChat(ctx context.Context, userID, counterpartID int64) (chat models.Chat, err error) {
	ctx, finish := s.start(ctx, "CreateDirectChat", attribute.Int64("user_id", userID), attribute.Int64("counterpart_id", counterpartID))
	defer finish(&err)

	if counterpartID == 0 {
		return models.Chat{}, fmt.Errorf("counterpart id is required: %w", apperr.ErrValidation)
	}
	chat, created, err := s.resolveDirectChat(ctx, userID, counterpartID)
	if err != nil {
		return models.Chat{}, err
	}
	if created {
		s.events.Emit(ctx, telemetry.EventChatCreated, chat)
	}
	return chat, nil
}

// CreateGroupChat creates a named group administered by AdminID. Every
// participant must exist and the group needs at least one member besides
// the admin.
func (s *Service) CreateGroupChat(ctx context.Context, in CreateGroupInput) (chat models.Chat, err error) {
	ctx, finish := s.start(ctx, "CreateGroupChat", attribute.Int64("admin_id", in.AdminID))
	defer finish(&err)

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Chat{}, fmt.Errorf("group name is required: %w", apperr.ErrValidation)
	}
	if in.AdminID == 0 {
		return models.Chat{}, fmt.Errorf("admin id is required: %w", apperr.ErrValidation)
	}
	participants := models.UniqueParticipants(in.AdminID, in.ParticipantIDs)
	if len(participants) < 2 {
		return models.Chat{}, fmt.Errorf("group needs at least one other participant: %w", apperr.ErrValidation)
	}

	members := participants[1:]
	summaries, err := s.users.BulkSummaries(ctx, members)
	if err != nil {
		return models.Chat{}, err
	}
	for _, id := range members {
		if _, ok := summaries[id]; !ok {
			return models.Chat{}, fmt.Errorf("participant %d: %w", id, repositories.ErrUserNotFound)
		}
	}

	chat, err = s.chats.CreateGroupChat(ctx, name, members, in.AdminID)
	if err != nil {
		return models.Chat{}, err
	}
	s.events.Emit(ctx, telemetry.EventChatCreated, chat)
	return chat, nil
}

// ListMessages pages through a chat's history.
func (s *Service) ListMessages(ctx context.Context, filter repositories.MessageFilter, req pagination.Request) (page pagination.Page[models.MessageView], err error) {
	ctx, finish := s.start(ctx, "ListMessages", attribute.Int64("chat_id", filter.ChatID))
	defer finish(&err)

	return s.messages.ListMessages(ctx, filter, req)
}

// GetMessage returns a single message.
func (s *Service) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	return s.messages.GetMessage(ctx, messageID)
}

// IsParticipant reports whether userID belongs to chatID.
func (s *Service) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	return s.chats.IsParticipant(ctx, chatID, userID)
}
