package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGINT PRIMARY KEY,
		is_group BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS direct_pairs (
		conversation_id BIGINT PRIMARY KEY REFERENCES conversations(id) ON DELETE CASCADE,
		user_low BIGINT NOT NULL,
		user_high BIGINT NOT NULL,
		CONSTRAINT unique_direct_pair UNIQUE (user_low, user_high),
		CONSTRAINT ordered_direct_pair CHECK (user_low < user_high)
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (conversation_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_user ON participants(user_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGINT PRIMARY KEY,
		conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id BIGINT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('text', 'audio', 'image')),
		content TEXT NOT NULL DEFAULT '',
		media_ref TEXT NOT NULL DEFAULT '',
		seen BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unseen ON messages(conversation_id) WHERE seen = FALSE`,
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

func Drop(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `DROP TABLE IF EXISTS messages, participants, direct_pairs, conversations`)
	if err != nil {
		return fmt.Errorf("postgres: drop: %w", err)
	}
	return nil
}
