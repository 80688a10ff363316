package scylla

import (
	"fmt"

	"github.com/mahaj/dupahar-messaging/pkg/db"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id bigint PRIMARY KEY,
		is_group boolean,
		user_low bigint,
		user_high bigint,
		created_at timestamp
	)`,
	// One row per unordered pair; written with IF NOT EXISTS.
	`CREATE TABLE IF NOT EXISTS direct_conversations (
		pair_key text PRIMARY KEY,
		conversation_id bigint,
		user_low bigint,
		user_high bigint,
		created_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		conversation_id bigint,
		user_id bigint,
		PRIMARY KEY (conversation_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		conversation_id bigint,
		id bigint,
		sender_id bigint,
		kind text,
		content text,
		media_ref text,
		seen boolean,
		created_at timestamp,
		PRIMARY KEY (conversation_id, id)
	) WITH CLUSTERING ORDER BY (id ASC)`,
	`CREATE TABLE IF NOT EXISTS conversation_counters (
		user_id bigint,
		other_user_id bigint,
		unread_count counter,
		PRIMARY KEY (user_id, other_user_id)
	)`,
}

var tables = []string{"messages", "participants", "direct_conversations", "conversations", "conversation_counters"}

func Migrate(session *db.Session) error {
	for _, stmt := range schema {
		if err := session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("scylla: migrate: %w", err)
		}
	}
	return nil
}

func Drop(session *db.Session) error {
	for _, t := range tables {
		if err := session.Query("DROP TABLE IF EXISTS " + t).Exec(); err != nil {
			return fmt.Errorf("scylla: drop %s: %w", t, err)
		}
	}
	return nil
}
