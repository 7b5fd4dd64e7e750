package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
	"messaging-service/internal/pagination"
)

const messageColumns = `id, chat_id, sender_id, receiver_id, message_type, text, file_url, seen_by, deleted_by, unsent_by, created_at, updated_at`

var messageSortColumns = map[string]string{
	"createdAt": "created_at",
	"id":        "id",
}

type messageRow struct {
	ID          int64         `db:"id"`
	ChatID      int64         `db:"chat_id"`
	SenderID    int64         `db:"sender_id"`
	ReceiverID  int64         `db:"receiver_id"`
	MessageType string        `db:"message_type"`
	Text        string        `db:"text"`
	FileURL     string        `db:"file_url"`
	SeenBy      pq.Int64Array `db:"seen_by"`
	DeletedBy   pq.Int64Array `db:"deleted_by"`
	UnsentBy    pq.Int64Array `db:"unsent_by"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

func (r messageRow) toModel() models.Message {
	return models.Message{
		ID:         r.ID,
		ChatID:     r.ChatID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Content: models.Content{
			Type:    models.MessageType(r.MessageType),
			Text:    r.Text,
			FileURL: r.FileURL,
		},
		SeenBy:    nonNil(r.SeenBy),
		DeletedBy: nonNil(r.DeletedBy),
		UnsentBy:  nonNil(r.UnsentBy),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db       *sqlx.DB
	pageOpts pagination.Options[models.MessageView]
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB, users UserDirectory) *MessageRepo {
	return &MessageRepo{db: db, pageOpts: MessagePageOptions(users)}
}

// ListMessages returns a page of one chat's history.
func (r *MessageRepo) ListMessages(ctx context.Context, filter MessageFilter, req pagination.Request) (pagination.Page[models.MessageView], error) {
	if err := ValidateMessageFilter(filter); err != nil {
		return pagination.Page[models.MessageView]{}, err
	}
	src := &messageSource{db: r.db, where: "chat_id = $1", args: []any{filter.ChatID}}
	if filter.HideDeletedFor != 0 {
		src.where += " AND NOT ($2::bigint = ANY(deleted_by))"
		src.args = append(src.args, filter.HideDeletedFor)
	}
	return pagination.Run[models.MessageView](ctx, src, req, r.pageOpts)
}

// Append stores a new message with empty visibility sets.
func (r *MessageRepo) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}
	var row messageRow
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (chat_id, sender_id, receiver_id, message_type, text, file_url)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+messageColumns,
		msg.ChatID, msg.SenderID, msg.ReceiverID, string(msg.Content.Type), msg.Content.Text, msg.Content.FileURL).StructScan(&row)
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// GetMessages fetches messages by id. Missing ids are absent from the result.
func (r *MessageRepo) GetMessages(ctx context.Context, ids []int64) (map[int64]models.Message, error) {
	out := make(map[int64]models.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.toModel()
	}
	return out, nil
}

// MarkSeen records that userID has seen the message.
func (r *MessageRepo) MarkSeen(ctx context.Context, messageID, userID int64) (models.Message, error) {
	return r.addToSet(ctx, models.SeenBy, messageID, userID)
}

// MarkDeleted hides the message for userID.
func (r *MessageRepo) MarkDeleted(ctx context.Context, messageID, userID int64) (models.Message, error) {
	return r.addToSet(ctx, models.DeletedBy, messageID, userID)
}

// MarkUnsent records that userID retracted the message.
func (r *MessageRepo) MarkUnsent(ctx context.Context, messageID, userID int64) (models.Message, error) {
	return r.addToSet(ctx, models.UnsentBy, messageID, userID)
}

func (r *MessageRepo) addToSet(ctx context.Context, set models.VisibilitySet, messageID, userID int64) (models.Message, error) {
	switch set {
	case models.SeenBy, models.DeletedBy, models.UnsentBy:
	default:
		return models.Message{}, fmt.Errorf("unknown visibility set %q", set)
	}
	// updated_at only moves when the set actually grows.
	query := fmt.Sprintf(`UPDATE messages SET
            %[1]s = CASE WHEN $2::bigint = ANY(%[1]s) THEN %[1]s ELSE array_append(%[1]s, $2::bigint) END,
            updated_at = CASE WHEN $2::bigint = ANY(%[1]s) THEN updated_at ELSE NOW() END
        WHERE id = $1 RETURNING %[2]s`, string(set), messageColumns)

	var row messageRow
	err := r.db.QueryRowxContext(ctx, query, messageID, userID).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

type messageSource struct {
	db    *sqlx.DB
	where string
	args  []any
}

func (s *messageSource) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages WHERE `+s.where, s.args...)
	return n, err
}

func (s *messageSource) Fetch(ctx context.Context, w pagination.Window) ([]models.MessageView, error) {
	order, err := pagination.OrderBy(w.Sort, messageSortColumns, "id ASC")
	if err != nil {
		return nil, err
	}
	args := append(append([]any{}, s.args...), w.Limit, w.Offset)
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		messageColumns, s.where, order, len(args)-1, len(args))

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]models.MessageView, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.MessageView{Message: row.toModel()})
	}
	return out, nil
}
