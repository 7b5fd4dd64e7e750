package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect initializes the database connection and runs migrations.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied")

	return db, nil
}

// The users table is owned by the profile service; it is created here only so
// a fresh database can serve reads.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id BIGSERIAL PRIMARY KEY,
        display_name TEXT NOT NULL DEFAULT '',
        avatar_url TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS chats (
        id BIGSERIAL PRIMARY KEY,
        chat_type TEXT NOT NULL CHECK (chat_type IN ('direct', 'group')),
        name TEXT NOT NULL DEFAULT '',
        participants BIGINT[] NOT NULL,
        group_admin BIGINT,
        direct_key TEXT,
        last_message_id BIGINT,
        last_message_at TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS chats_direct_key_idx ON chats (direct_key);`,
	`CREATE INDEX IF NOT EXISTS chats_participants_idx ON chats USING GIN (participants);`,
	`CREATE TABLE IF NOT EXISTS messages (
        id BIGSERIAL PRIMARY KEY,
        chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        sender_id BIGINT NOT NULL,
        receiver_id BIGINT NOT NULL,
        message_type TEXT NOT NULL CHECK (message_type IN ('text', 'image', 'audio', 'video')),
        text TEXT NOT NULL DEFAULT '',
        file_url TEXT NOT NULL DEFAULT '',
        seen_by BIGINT[] NOT NULL DEFAULT '{}',
        deleted_by BIGINT[] NOT NULL DEFAULT '{}',
        unsent_by BIGINT[] NOT NULL DEFAULT '{}',
        created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
    );`,
	`CREATE INDEX IF NOT EXISTS messages_chat_created_idx ON messages (chat_id, created_at, id);`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
