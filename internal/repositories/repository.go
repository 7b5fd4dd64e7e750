package repositories

import (
	"context"
	"fmt"

	"messaging-service/internal/apperr"
	"messaging-service/internal/models"
	"messaging-service/internal/pagination"
)

var (
	ErrChatNotFound    = fmt.Errorf("chat %w", apperr.ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("message %w", apperr.ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", apperr.ErrNotFound)
)

// ChatFilter selects chats for a listing.
type ChatFilter struct {
	UserID int64
	// Name is matched as a case-insensitive substring when set.
	Name string
}

// MessageFilter selects a chat's history.
type MessageFilter struct {
	ChatID int64
	// HideDeletedFor drops messages the given viewer deleted. Zero disables it.
	HideDeletedFor int64
}

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	ListChatsForUser(ctx context.Context, filter ChatFilter, req pagination.Request) (pagination.Page[models.ChatView], error)
	GetChat(ctx context.Context, chatID int64) (models.Chat, error)
	FindDirectChat(ctx context.Context, userA, userB int64) (models.Chat, bool, error)
	CreateDirectChat(ctx context.Context, userA, userB int64) (models.Chat, error)
	CreateGroupChat(ctx context.Context, name string, participantIDs []int64, adminID int64) (models.Chat, error)
	SetLastMessage(ctx context.Context, chatID, messageID int64) error
	IsParticipant(ctx context.Context, chatID, userID int64) (bool, error)
}

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	ListMessages(ctx context.Context, filter MessageFilter, req pagination.Request) (pagination.Page[models.MessageView], error)
	Append(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	GetMessages(ctx context.Context, ids []int64) (map[int64]models.Message, error)
	MarkSeen(ctx context.Context, messageID, userID int64) (models.Message, error)
	MarkDeleted(ctx context.Context, messageID, userID int64) (models.Message, error)
	MarkUnsent(ctx context.Context, messageID, userID int64) (models.Message, error)
}

// UserDirectory resolves users owned by the profile service.
type UserDirectory interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	GetUserSummary(ctx context.Context, userID int64) (models.UserSummary, error)
	BulkSummaries(ctx context.Context, ids []int64) (map[int64]models.UserSummary, error)
}

// OnlineChecker reports live presence for users.
type OnlineChecker interface {
	AreOnline(ctx context.Context, ids []int64) (map[int64]bool, error)
}

// Sort fields and defaults shared by every backend.
var (
	ChatSortFields    = []string{"lastMessageAt", "createdAt", "updatedAt", "name"}
	MessageSortFields = []string{"createdAt", "id"}
)

const (
	DefaultChatSort    = "lastMessageAt:desc,updatedAt:desc"
	DefaultMessageSort = "createdAt:asc"
	DefaultPageLimit   = 10
	MaxPageLimit       = 100
)

// ValidateMessageFilter enforces that listings are scoped to one chat.
func ValidateMessageFilter(filter MessageFilter) error {
	if filter.ChatID == 0 {
		return fmt.Errorf("chat id is required: %w", apperr.ErrInvalidArgument)
	}
	return nil
}
