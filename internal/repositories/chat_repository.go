package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
	"messaging-service/internal/pagination"
)

const chatColumns = `id, chat_type, name, participants, group_admin, last_message_id, last_message_at, created_at, updated_at`

var chatSortColumns = map[string]string{
	"lastMessageAt": "last_message_at",
	"createdAt":     "created_at",
	"updatedAt":     "updated_at",
	"name":          "LOWER(name)",
}

type chatRow struct {
	ID            int64         `db:"id"`
	Type          string        `db:"chat_type"`
	Name          string        `db:"name"`
	Participants  pq.Int64Array `db:"participants"`
	GroupAdmin    sql.NullInt64 `db:"group_admin"`
	LastMessageID sql.NullInt64 `db:"last_message_id"`
	LastMessageAt sql.NullTime  `db:"last_message_at"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

func (r chatRow) toModel() models.Chat {
	chat := models.Chat{
		ID:           r.ID,
		Type:         models.ChatType(r.Type),
		Name:         r.Name,
		Participants: []int64(r.Participants),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if chat.Participants == nil {
		chat.Participants = []int64{}
	}
	if r.GroupAdmin.Valid {
		admin := r.GroupAdmin.Int64
		chat.GroupAdmin = &admin
	}
	if r.LastMessageID.Valid {
		id := r.LastMessageID.Int64
		chat.LastMessageID = &id
	}
	if r.LastMessageAt.Valid {
		at := r.LastMessageAt.Time
		chat.LastMessageAt = &at
	}
	return chat
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db       *sqlx.DB
	pageOpts pagination.Options[models.ChatView]
}

// NewChatRepo constructs a ChatRepo. users and messages populate listings.
func NewChatRepo(db *sqlx.DB, users UserDirectory, messages MessageLookup) *ChatRepo {
	return &ChatRepo{db: db, pageOpts: ChatPageOptions(users, messages)}
}

// ListChatsForUser returns a page of chats the user participates in.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, filter ChatFilter, req pagination.Request) (pagination.Page[models.ChatView], error) {
	where := []string{"$1 = ANY(participants)"}
	args := []any{filter.UserID}
	if name := strings.TrimSpace(filter.Name); name != "" {
		args = append(args, "%"+escapeLike(name)+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	src := &chatSource{db: r.db, where: strings.Join(where, " AND "), args: args}
	return pagination.Run[models.ChatView](ctx, src, req, r.pageOpts)
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int64) (models.Chat, error) {
	var row chatRow
	err := r.db.GetContext(ctx, &row, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	return row.toModel(), nil
}

// FindDirectChat looks up the direct chat between two users in either order.
func (r *ChatRepo) FindDirectChat(ctx context.Context, userA, userB int64) (models.Chat, bool, error) {
	var row chatRow
	err := r.db.GetContext(ctx, &row, `SELECT `+chatColumns+` FROM chats WHERE direct_key=$1`, models.DirectKey(userA, userB))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, nil
	}
	if err != nil {
		return models.Chat{}, false, err
	}
	return row.toModel(), true, nil
}

// CreateDirectChat returns the existing chat for the pair or creates it. A
// unique violation on direct_key means a concurrent creator won; the winner's
// chat is returned.
func (r *ChatRepo) CreateDirectChat(ctx context.Context, userA, userB int64) (models.Chat, error) {
	if chat, ok, err := r.FindDirectChat(ctx, userA, userB); err != nil || ok {
		return chat, err
	}

	var row chatRow
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chats (chat_type, participants, direct_key) VALUES ($1, $2, $3) RETURNING `+chatColumns,
		string(models.ChatTypeDirect), pq.Array([]int64{userA, userB}), models.DirectKey(userA, userB)).StructScan(&row)
	if isUniqueViolation(err) {
		chat, ok, ferr := r.FindDirectChat(ctx, userA, userB)
		if ferr != nil {
			return models.Chat{}, ferr
		}
		if !ok {
			return models.Chat{}, fmt.Errorf("direct chat vanished after conflict: %w", err)
		}
		return chat, nil
	}
	if err != nil {
		return models.Chat{}, err
	}
	return row.toModel(), nil
}

// CreateGroupChat persists a group with the admin as first participant.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, name string, participantIDs []int64, adminID int64) (models.Chat, error) {
	var row chatRow
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chats (chat_type, name, participants, group_admin) VALUES ($1, $2, $3, $4) RETURNING `+chatColumns,
		string(models.ChatTypeGroup), name, pq.Array(models.UniqueParticipants(adminID, participantIDs)), adminID).StructScan(&row)
	if err != nil {
		return models.Chat{}, err
	}
	return row.toModel(), nil
}

// SetLastMessage points the chat at messageID. Unknown chats are ignored.
func (r *ChatRepo) SetLastMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET last_message_id = m.id, last_message_at = m.created_at, updated_at = NOW()
        FROM messages m WHERE chats.id = $1 AND m.id = $2`, chatID, messageID)
	return err
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1 AND $2 = ANY(participants))`, chatID, userID)
	return exists, err
}

type chatSource struct {
	db    *sqlx.DB
	where string
	args  []any
}

func (s *chatSource) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM chats WHERE `+s.where, s.args...)
	return n, err
}

func (s *chatSource) Fetch(ctx context.Context, w pagination.Window) ([]models.ChatView, error) {
	order, err := pagination.OrderBy(w.Sort, chatSortColumns, "id DESC")
	if err != nil {
		return nil, err
	}
	args := append(append([]any{}, s.args...), w.Limit, w.Offset)
	query := fmt.Sprintf(`SELECT %s FROM chats WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		chatColumns, s.where, order, len(args)-1, len(args))

	var rows []chatRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]models.ChatView, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.ChatView{Chat: row.toModel()})
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
