package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
	"messaging-service/internal/pagination"
	"messaging-service/internal/repositories"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) ListChatsForUser(ctx context.Context, filter repositories.ChatFilter, req pagination.Request) (pagination.Page[models.ChatView], error) {
	args := m.Called(ctx, filter, req)
	var page pagination.Page[models.ChatView]
	if val := args.Get(0); val != nil {
		page = val.(pagination.Page[models.ChatView])
	}
	return page, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int64) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) FindDirectChat(ctx context.Context, userA, userB int64) (models.Chat, bool, error) {
	args := m.Called(ctx, userA, userB)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Bool(1), args.Error(2)
}

func (m *ChatRepositoryMock) CreateDirectChat(ctx context.Context, userA, userB int64) (models.Chat, error) {
	args := m.Called(ctx, userA, userB)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) CreateGroupChat(ctx context.Context, name string, participantIDs []int64, adminID int64) (models.Chat, error) {
	args := m.Called(ctx, name, participantIDs, adminID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) SetLastMessage(ctx context.Context, chatID, messageID int64) error {
	args := m.Called(ctx, chatID, messageID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, filter repositories.MessageFilter, req pagination.Request) (pagination.Page[models.MessageView], error) {
	args := m.Called(ctx, filter, req)
	var page pagination.Page[models.MessageView]
	if val := args.Get(0); val != nil {
		page = val.(pagination.Page[models.MessageView])
	}
	return page, args.Error(1)
}

func (m *MessageRepositoryMock) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessages(ctx context.Context, ids []int64) (map[int64]models.Message, error) {
	args := m.Called(ctx, ids)
	var out map[int64]models.Message
	if val := args.Get(0); val != nil {
		out = val.(map[int64]models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) MarkSeen(ctx context.Context, messageID, userID int64) (models.Message, error) {
	return m.mark(m.Called(ctx, messageID, userID))
}

func (m *MessageRepositoryMock) MarkDeleted(ctx context.Context, messageID, userID int64) (models.Message, error) {
	return m.mark(m.Called(ctx, messageID, userID))
}

func (m *MessageRepositoryMock) MarkUnsent(ctx context.Context, messageID, userID int64) (models.Message, error) {
	return m.mark(m.Called(ctx, messageID, userID))
}

func (m *MessageRepositoryMock) mark(args mock.Arguments) (models.Message, error) {
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type UserDirectoryMock struct {
	mock.Mock
}

func (m *UserDirectoryMock) UserExists(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *UserDirectoryMock) GetUserSummary(ctx context.Context, userID int64) (models.UserSummary, error) {
	args := m.Called(ctx, userID)
	var user models.UserSummary
	if val := args.Get(0); val != nil {
		user = val.(models.UserSummary)
	}
	return user, args.Error(1)
}

func (m *UserDirectoryMock) BulkSummaries(ctx context.Context, ids []int64) (map[int64]models.UserSummary, error) {
	args := m.Called(ctx, ids)
	var out map[int64]models.UserSummary
	if val := args.Get(0); val != nil {
		out = val.(map[int64]models.UserSummary)
	}
	return out, args.Error(1)
}

var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.UserDirectory = (*UserDirectoryMock)(nil)
