package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

// UserDirectoryRepo reads user summaries from the users table.
type UserDirectoryRepo struct {
	db     *sqlx.DB
	online OnlineChecker
}

// NewUserDirectory constructs a directory. online may be nil.
func NewUserDirectory(db *sqlx.DB, online OnlineChecker) *UserDirectoryRepo {
	return &UserDirectoryRepo{db: db, online: online}
}

func (r *UserDirectoryRepo) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID)
	return exists, err
}

func (r *UserDirectoryRepo) GetUserSummary(ctx context.Context, userID int64) (models.UserSummary, error) {
	var user models.UserSummary
	err := r.db.GetContext(ctx, &user, `SELECT id, display_name, avatar_url FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserSummary{}, ErrUserNotFound
	}
	if err != nil {
		return models.UserSummary{}, err
	}
	summaries := map[int64]models.UserSummary{user.ID: user}
	// presence is best-effort
	_ = ApplyPresence(ctx, r.online, summaries)
	return summaries[user.ID], nil
}

func (r *UserDirectoryRepo) BulkSummaries(ctx context.Context, ids []int64) (map[int64]models.UserSummary, error) {
	out := make(map[int64]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.UserSummary
	if err := r.db.SelectContext(ctx, &users, `SELECT id, display_name, avatar_url FROM users WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	_ = ApplyPresence(ctx, r.online, out)
	return out, nil
}
