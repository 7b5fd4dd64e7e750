package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/pagination"
	"messaging-service/internal/repositories"
	"messaging-service/internal/service"
)

func TestListMessagesChecksMembership(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupRouter(svc)

	svc.On("IsParticipant", mock.Anything, int64(7), int64(1)).Return(false, nil).Once()

	rec := doJSON(t, router, http.MethodGet, "/messages?chat_id=7", nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	svc.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything, mock.Anything)
}

func TestListMessagesHidesDeleted(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupRouter(svc)

	svc.On("IsParticipant", mock.Anything, int64(7), int64(1)).Return(true, nil).Once()
	svc.On("ListMessages", mock.Anything, repositories.MessageFilter{ChatID: 7, HideDeletedFor: 1}, pagination.Request{Limit: 20}).
		Return(pagination.Page[models.MessageView]{
			Results: []models.MessageView{{Message: models.Message{ID: 11, ChatID: 7}}},
			Page:    1, Limit: 20, TotalResults: 1, TotalPages: 1,
		}, nil).Once()

	rec := doJSON(t, router, http.MethodGet, "/messages?chat_id=7&limit=20&hide_deleted=true", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var page pagination.Page[models.MessageView]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Results, 1)
	assert.Equal(t, int64(11), page.Results[0].ID)
	svc.AssertExpectations(t)
}

func TestListMessagesInvalidChatID(t *testing.T) {
	router := setupRouter(new(mocks.ChatServiceMock))

	rec := doJSON(t, router, http.MethodGet, "/messages?chat_id=x", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessage(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupRouter(svc)

	svc.On("SendMessage", mock.Anything, service.SendMessageInput{SenderID: 1, ReceiverID: 2, Text: "hi"}).
		Return(models.Message{ID: 1, ChatID: 3, SenderID: 1, ReceiverID: 2, Content: models.NewTextContent("hi")}, nil).Once()

	rec := doJSON(t, router, http.MethodPost, "/messages", map[string]any{"receiver_id": 2, "text": "hi"})

	require.Equal(t, http.StatusCreated, rec.Code)
	var msg models.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "hi", msg.Content.Text)
	svc.AssertExpectations(t)
}

func TestSendMessageWithAttachment(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupRouter(svc)

	in := service.SendMessageInput{
		SenderID:    1,
		ReceiverID:  2,
		Attachments: []service.Attachment{{MimeType: "image/png", URL: "https://cdn/x.png"}},
	}
	svc.On("SendMessage", mock.Anything, in).
		Return(models.Message{ID: 2, Content: models.NewFileContent(models.MessageTypeImage, "https://cdn/x.png")}, nil).Once()

	rec := doJSON(t, router, http.MethodPost, "/messages", map[string]any{
		"receiver_id": 2,
		"attachments": []map[string]string{{"mime_type": "image/png", "url": "https://cdn/x.png"}},
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	svc.AssertExpectations(t)
}

func TestSendMessageRequiresReceiver(t *testing.T) {
	router := setupRouter(new(mocks.ChatServiceMock))

	rec := doJSON(t, router, http.MethodPost, "/messages", map[string]any{"text": "hi"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkSeen(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupRouter(svc)

	svc.On("GetMessage", mock.Anything, int64(11)).Return(models.Message{ID: 11, ChatID: 7}, nil).Once()
	svc.On("IsParticipant", mock.Anything, int64(7), int64(1)).Return(true, nil).Once()
	svc.On("MarkMessageSeen", mock.Anything, int64(11), int64(1)).
		Return(models.Message{ID: 11, ChatID: 7, SeenBy: []int64{1}}, nil).Once()

	rec := doJSON(t, router, http.MethodPatch, "/messages/11/seen", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestMarkDeletedUnknownMessage(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupRouter(svc)

	svc.On("GetMessage", mock.Anything, int64(99)).Return(nil, repositories.ErrMessageNotFound).Once()

	rec := doJSON(t, router, http.MethodPatch, "/messages/99/deleted", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	svc.AssertNotCalled(t, "MarkMessageDeleted", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkUnsentOutsider(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupRouter(svc)

	svc.On("GetMessage", mock.Anything, int64(11)).Return(models.Message{ID: 11, ChatID: 7}, nil).Once()
	svc.On("IsParticipant", mock.Anything, int64(7), int64(1)).Return(false, nil).Once()

	rec := doJSON(t, router, http.MethodPatch, "/messages/11/unsent", nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	svc.AssertNotCalled(t, "MarkMessageUnsent", mock.Anything, mock.Anything, mock.Anything)
}
