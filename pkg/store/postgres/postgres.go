package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mahaj/dupahar-messaging/pkg/model"
	"github.com/mahaj/dupahar-messaging/pkg/snowflake"
	"github.com/mahaj/dupahar-messaging/pkg/store"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type Store struct {
	pool *pgxpool.Pool
	ids  *snowflake.Node
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool, ids *snowflake.Node) *Store {
	return &Store{pool: pool, ids: ids}
}

func (s *Store) FindDirect(ctx context.Context, a, b int64) (*model.Conversation, error) {
	low, high := model.CanonicalPair(a, b)
	c := model.Conversation{Participants: [2]int64{low, high}}
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.is_group, c.created_at
		FROM direct_pairs d
		JOIN conversations c ON c.id = d.conversation_id
		WHERE d.user_low = $1 AND d.user_high = $2
	`, low, high).Scan(&c.ID, &c.IsGroup, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateDirect(ctx context.Context, a, b int64) (*model.Conversation, error) {
	if a == b {
		return nil, fmt.Errorf("postgres: conversation needs two distinct users, got %d twice", a)
	}
	low, high := model.CanonicalPair(a, b)
	id := s.ids.Generate()
	c := &model.Conversation{ID: id, CreatedAt: snowflake.Time(id), Participants: [2]int64{low, high}}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO conversations (id, is_group, created_at) VALUES ($1, FALSE, $2)`, c.ID, c.CreatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO direct_pairs (conversation_id, user_low, user_high) VALUES ($1, $2, $3)`, c.ID, low, high,
	); err != nil {
		return nil, mapError(err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2), ($1, $3)`, c.ID, low, high,
	); err != nil {
		return nil, mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

func (s *Store) Append(ctx context.Context, m store.NewMessage) (*model.Message, error) {
	id := s.ids.Generate()
	msg := &model.Message{
		ID:             id,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Kind:           m.Kind,
		Content:        m.Content,
		MediaRef:       m.MediaRef,
		CreatedAt:      snowflake.Time(id),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, kind, content, media_ref, seen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
	`, msg.ID, msg.ConversationID, msg.SenderID, string(msg.Kind), msg.Content, msg.MediaRef, msg.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return msg, nil
}

func (s *Store) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, kind, content, media_ref, seen, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var (
			m    = model.Message{ConversationID: conversationID}
			kind string
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &kind, &m.Content, &m.MediaRef, &m.Seen, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = model.Kind(kind)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Store) MarkSeen(ctx context.Context, conversationID, recipientID int64) (int, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET seen = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND seen = FALSE
	`, conversationID, recipientID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const pairConstraint = "unique_direct_pair"

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			// Only the pair constraint means another writer won; an id
			// collision is a configuration fault and surfaces as is.
			if pgErr.ConstraintName == pairConstraint {
				return store.ErrDuplicateConversation
			}
		case foreignKeyViolation:
			return store.ErrConversationNotFound
		}
	}
	return err
}
