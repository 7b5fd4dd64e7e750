package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/apperr"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/service"
)

type recordingEmitter struct {
	names []string
}

func (r *recordingEmitter) Emit(_ context.Context, name string, _ any) {
	r.names = append(r.names, name)
}

func TestSendMessageSucceedsWhenDeliveryFails(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	messages := &mocks.MessageRepositoryMock{}
	users := &mocks.UserDirectoryMock{}
	delivery := &mocks.DeliveryMock{}
	events := &recordingEmitter{}

	chat := models.Chat{ID: 10, Type: models.ChatTypeDirect, Participants: []int64{1, 2}}
	stored := models.Message{ID: 100, ChatID: 10, SenderID: 1, ReceiverID: 2, Content: models.NewTextContent("hi")}

	chats.On("FindDirectChat", mock.Anything, int64(1), int64(2)).Return(chat, true, nil)
	messages.On("Append", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.ChatID == 10 && m.Content.Text == "hi"
	})).Return(stored, nil)
	chats.On("SetLastMessage", mock.Anything, int64(10), int64(100)).Return(nil)
	users.On("GetUserSummary", mock.Anything, int64(1)).Return(models.UserSummary{ID: 1, DisplayName: "alice"}, nil)
	delivery.On("Publish", mock.Anything, "10::2", mock.Anything).Return(errors.New("bus closed"))
	delivery.On("Publish", mock.Anything, "1::2", mock.Anything).Return(errors.New("bus closed"))

	svc := service.New(chats, messages, users, delivery, nil, service.WithEvents(events))
	msg, err := svc.SendMessage(context.Background(), service.SendMessageInput{SenderID: 1, ReceiverID: 2, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, stored, msg)
	assert.Equal(t, []string{"message.created"}, events.names)

	chats.AssertExpectations(t)
	messages.AssertExpectations(t)
	delivery.AssertExpectations(t)
}

func TestSendMessageToleratesLastMessageFailure(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	messages := &mocks.MessageRepositoryMock{}
	users := &mocks.UserDirectoryMock{}
	delivery := &mocks.DeliveryMock{}

	stored := models.Message{ID: 5, ChatID: 3, SenderID: 1, ReceiverID: 2, Content: models.NewTextContent("hi")}
	chats.On("FindDirectChat", mock.Anything, int64(1), int64(2)).Return(models.Chat{ID: 3}, true, nil)
	messages.On("Append", mock.Anything, mock.Anything).Return(stored, nil)
	chats.On("SetLastMessage", mock.Anything, int64(3), int64(5)).Return(errors.New("db timeout"))
	users.On("GetUserSummary", mock.Anything, int64(1)).Return(nil, repositories.ErrUserNotFound)
	delivery.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := service.New(chats, messages, users, delivery, nil)
	msg, err := svc.SendMessage(context.Background(), service.SendMessageInput{SenderID: 1, ReceiverID: 2, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), msg.ID)
	delivery.AssertNumberOfCalls(t, "Publish", 2)
}

func TestSendMessageAbortsWhenCounterpartMissing(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	messages := &mocks.MessageRepositoryMock{}
	users := &mocks.UserDirectoryMock{}
	delivery := &mocks.DeliveryMock{}

	chats.On("FindDirectChat", mock.Anything, int64(1), int64(9)).Return(nil, false, nil)
	users.On("UserExists", mock.Anything, int64(9)).Return(false, nil)

	svc := service.New(chats, messages, users, delivery, nil)
	_, err := svc.SendMessage(context.Background(), service.SendMessageInput{SenderID: 1, ReceiverID: 9, Text: "hi"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	chats.AssertNotCalled(t, "CreateDirectChat", mock.Anything, mock.Anything, mock.Anything)
	messages.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	delivery.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageSurfacesStoreErrors(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	messages := &mocks.MessageRepositoryMock{}
	users := &mocks.UserDirectoryMock{}
	delivery := &mocks.DeliveryMock{}

	storeErr := errors.New("connection reset")
	chats.On("FindDirectChat", mock.Anything, int64(1), int64(2)).Return(models.Chat{ID: 3}, true, nil)
	messages.On("Append", mock.Anything, mock.Anything).Return(nil, storeErr)

	svc := service.New(chats, messages, users, delivery, nil)
	_, err := svc.SendMessage(context.Background(), service.SendMessageInput{SenderID: 1, ReceiverID: 2, Text: "hi"})
	assert.ErrorIs(t, err, storeErr)
	chats.AssertNotCalled(t, "SetLastMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkMessageSeenPassesThroughNotFound(t *testing.T) {
	messages := &mocks.MessageRepositoryMock{}
	messages.On("MarkSeen", mock.Anything, int64(7), int64(2)).Return(nil, repositories.ErrMessageNotFound)

	svc := service.New(&mocks.ChatRepositoryMock{}, messages, &mocks.UserDirectoryMock{}, &mocks.DeliveryMock{}, nil)
	_, err := svc.MarkMessageSeen(context.Background(), 7, 2)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
}

func TestCreateDirectChatEmitsOnlyWhenCreated(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	users := &mocks.UserDirectoryMock{}
	events := &recordingEmitter{}

	chats.On("FindDirectChat", mock.Anything, int64(1), int64(2)).Return(nil, false, nil).Once()
	users.On("UserExists", mock.Anything, int64(2)).Return(true, nil)
	chats.On("CreateDirectChat", mock.Anything, int64(1), int64(2)).Return(models.Chat{ID: 4}, nil)
	chats.On("FindDirectChat", mock.Anything, int64(1), int64(2)).Return(models.Chat{ID: 4}, true, nil)

	svc := service.New(chats, &mocks.MessageRepositoryMock{}, users, &mocks.DeliveryMock{}, nil, service.WithEvents(events))
	first, err := svc.CreateDirectChat(context.Background(), 1, 2)
	require.NoError(t, err)
	second, err := svc.CreateDirectChat(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"chat.created"}, events.names)
	chats.AssertNumberOfCalls(t, "CreateDirectChat", 1)
}
