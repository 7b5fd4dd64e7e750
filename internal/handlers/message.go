package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/service"
)

// MessageHandler manages message endpoints.
type MessageHandler struct {
	svc ChatService
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(svc ChatService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// ListMessages returns a page of a chat's history, oldest first by default.
// ?hide_deleted=true drops messages the caller deleted.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	req, err := pageRequestFromQuery(c)
	if err != nil {
		writeError(c, err, "")
		return
	}

	var filter repositories.MessageFilter
	if raw := c.Query("chat_id"); raw != "" {
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || chatID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
			return
		}
		filter.ChatID = chatID
		if !requireParticipant(c, h.svc, chatID) {
			return
		}
	}
	if hide, _ := strconv.ParseBool(c.Query("hide_deleted")); hide {
		filter.HideDeletedFor = currentUserID(c)
	}

	page, err := h.svc.ListMessages(c.Request.Context(), filter, req)
	if err != nil {
		writeError(c, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, page)
}

type sendMessageRequest struct {
	ReceiverID  int64                `json:"receiver_id" binding:"required"`
	Text        string               `json:"text"`
	Attachments []service.Attachment `json:"attachments"`
}

// SendMessage sends a message from the caller to receiver_id.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), service.SendMessageInput{
		SenderID:    currentUserID(c),
		ReceiverID:  req.ReceiverID,
		Text:        req.Text,
		Attachments: req.Attachments,
	})
	if err != nil {
		writeError(c, err, "failed to send message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkSeen records that the caller has seen the message.
func (h *MessageHandler) MarkSeen(c *gin.Context) {
	h.mark(c, h.svc.MarkMessageSeen)
}

// MarkDeleted hides the message for the caller.
func (h *MessageHandler) MarkDeleted(c *gin.Context) {
	h.mark(c, h.svc.MarkMessageDeleted)
}

// MarkUnsent records that the caller retracted the message.
func (h *MessageHandler) MarkUnsent(c *gin.Context) {
	h.mark(c, h.svc.MarkMessageUnsent)
}

type markFunc func(ctx context.Context, messageID, userID int64) (models.Message, error)

// mark resolves the message first so the caller's membership in its chat can
// be checked before the marker set is touched.
func (h *MessageHandler) mark(c *gin.Context, op markFunc) {
	messageID, ok := int64Param(c, "message_id")
	if !ok {
		return
	}

	msg, err := h.svc.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		writeError(c, err, "failed to load message")
		return
	}
	if !requireParticipant(c, h.svc, msg.ChatID) {
		return
	}

	updated, err := op(c.Request.Context(), messageID, currentUserID(c))
	if err != nil {
		writeError(c, err, "failed to update message")
		return
	}
	c.JSON(http.StatusOK, updated)
}
