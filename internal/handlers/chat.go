package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/service"
	"messaging-service/internal/telemetry"
)

// ChatHandler manages chat endpoints.
type ChatHandler struct {
	svc   ChatService
	audit *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler. audit may be nil.
func NewChatHandler(svc ChatService, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{svc: svc, audit: audit}
}

// ListChats returns a page of the caller's chats. ?name= filters by a
// case-insensitive substring.
func (h *ChatHandler) ListChats(c *gin.Context) {
	req, err := pageRequestFromQuery(c)
	if err != nil {
		writeError(c, err, "")
		return
	}

	page, err := h.svc.ListChats(c.Request.Context(), currentUserID(c), c.Query("name"), req)
	if err != nil {
		writeError(c, err, "failed to load chats")
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetChat returns one chat the caller participates in.
func (h *ChatHandler) GetChat(c *gin.Context) {
	chatID, ok := int64Param(c, "chat_id")
	if !ok {
		return
	}
	if !requireParticipant(c, h.svc, chatID) {
		return
	}

	chat, err := h.svc.GetChat(c.Request.Context(), chatID)
	if err != nil {
		writeError(c, err, "failed to load chat")
		return
	}
	c.JSON(http.StatusOK, chat)
}

// CreateDirectChat creates or returns the chat between the caller and user_id.
func (h *ChatHandler) CreateDirectChat(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.svc.CreateDirectChat(c.Request.Context(), currentUserID(c), req.UserID)
	if err != nil {
		writeError(c, err, "could not create chat")
		return
	}
	c.JSON(http.StatusOK, chat)
}

// CreateGroupChat creates a group administered by the caller.
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	var req struct {
		Name         string  `json:"name" binding:"required"`
		Participants []int64 `json:"participants" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.svc.CreateGroupChat(c.Request.Context(), service.CreateGroupInput{
		AdminID:        currentUserID(c),
		Name:           req.Name,
		ParticipantIDs: req.Participants,
	})
	if err != nil {
		writeError(c, err, "could not create group")
		return
	}

	h.emitAudit(c, telemetry.AuditRecord{Action: "chat.group.create", Text: "group chat created", ChatID: chat.ID})
	c.JSON(http.StatusCreated, chat)
}

func (h *ChatHandler) emitAudit(c *gin.Context, rec telemetry.AuditRecord) {
	if h.audit == nil {
		return
	}
	rec.RequestID = requestIDFromContext(c)
	rec.UserID = userIDFromContext(c)
	h.audit.Emit(c.Request.Context(), rec)
}
