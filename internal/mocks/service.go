package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
	"messaging-service/internal/pagination"
	"messaging-service/internal/repositories"
	"messaging-service/internal/service"
)

// ChatServiceMock stands in for the service behind the HTTP handlers.
type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) ListChats(ctx context.Context, userID int64, name string, req pagination.Request) (pagination.Page[models.ChatView], error) {
	args := m.Called(ctx, userID, name, req)
	var page pagination.Page[models.ChatView]
	if val := args.Get(0); val != nil {
		page = val.(pagination.Page[models.ChatView])
	}
	return page, args.Error(1)
}

func (m *ChatServiceMock) GetChat(ctx context.Context, chatID int64) (models.ChatView, error) {
	args := m.Called(ctx, chatID)
	var view models.ChatView
	if val := args.Get(0); val != nil {
		view = val.(models.ChatView)
	}
	return view, args.Error(1)
}

func (m *ChatServiceMock) CreateDirectChat(ctx context.Context, userID, counterpartID int64) (models.Chat, error) {
	args := m.Called(ctx, userID, counterpartID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) CreateGroupChat(ctx context.Context, in service.CreateGroupInput) (models.Chat, error) {
	args := m.Called(ctx, in)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatServiceMock) ListMessages(ctx context.Context, filter repositories.MessageFilter, req pagination.Request) (pagination.Page[models.MessageView], error) {
	args := m.Called(ctx, filter, req)
	var page pagination.Page[models.MessageView]
	if val := args.Get(0); val != nil {
		page = val.(pagination.Page[models.MessageView])
	}
	return page, args.Error(1)
}

func (m *ChatServiceMock) SendMessage(ctx context.Context, in service.SendMessageInput) (models.Message, error) {
	args := m.Called(ctx, in)
	return messageResult(args)
}

func (m *ChatServiceMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	return messageResult(m.Called(ctx, messageID))
}

func (m *ChatServiceMock) MarkMessageSeen(ctx context.Context, messageID, userID int64) (models.Message, error) {
	return messageResult(m.Called(ctx, messageID, userID))
}

func (m *ChatServiceMock) MarkMessageDeleted(ctx context.Context, messageID, userID int64) (models.Message, error) {
	return messageResult(m.Called(ctx, messageID, userID))
}

func (m *ChatServiceMock) MarkMessageUnsent(ctx context.Context, messageID, userID int64) (models.Message, error) {
	return messageResult(m.Called(ctx, messageID, userID))
}

func messageResult(args mock.Arguments) (models.Message, error) {
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}
