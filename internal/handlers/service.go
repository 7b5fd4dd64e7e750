package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/apperr"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/pagination"
	"messaging-service/internal/repositories"
	"messaging-service/internal/service"
)

// ChatService is the request-facing surface the handlers route to.
type ChatService interface {
	ListChats(ctx context.Context, userID int64, name string, req pagination.Request) (pagination.Page[models.ChatView], error)
	GetChat(ctx context.Context, chatID int64) (models.ChatView, error)
	CreateDirectChat(ctx context.Context, userID, counterpartID int64) (models.Chat, error)
	CreateGroupChat(ctx context.Context, in service.CreateGroupInput) (models.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID int64) (bool, error)

	ListMessages(ctx context.Context, filter repositories.MessageFilter, req pagination.Request) (pagination.Page[models.MessageView], error)
	SendMessage(ctx context.Context, in service.SendMessageInput) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	MarkMessageSeen(ctx context.Context, messageID, userID int64) (models.Message, error)
	MarkMessageDeleted(ctx context.Context, messageID, userID int64) (models.Message, error)
	MarkMessageUnsent(ctx context.Context, messageID, userID int64) (models.Message, error)
}

var _ ChatService = (*service.Service)(nil)

// writeError maps the error taxonomy onto HTTP statuses. Internal errors are
// attached to the context for the request logger and replaced by fallback.
func writeError(c *gin.Context, err error, fallback string) {
	switch apperr.Kind(err) {
	case apperr.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.ErrValidation, apperr.ErrInvalidArgument:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.ErrConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case apperr.ErrUnauthorized:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func pageRequestFromQuery(c *gin.Context) (pagination.Request, error) {
	var req pagination.Request
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("invalid page: %w", apperr.ErrInvalidArgument)
		}
		req.Page = page
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("invalid limit: %w", apperr.ErrInvalidArgument)
		}
		req.Limit = limit
	}
	req.SortBy = c.Query("sort_by")
	if raw := c.Query("populate"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				req.Populate = append(req.Populate, p)
			}
		}
	}
	return req, nil
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + strings.ReplaceAll(name, "_", " ")})
		return 0, false
	}
	return id, true
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(middleware.UserIDKey)
}

// requireParticipant writes 403 and returns false unless the caller belongs to chatID.
func requireParticipant(c *gin.Context, svc ChatService, chatID int64) bool {
	member, err := svc.IsParticipant(c.Request.Context(), chatID, currentUserID(c))
	if err != nil {
		writeError(c, err, "failed to verify membership")
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return false
	}
	return true
}
