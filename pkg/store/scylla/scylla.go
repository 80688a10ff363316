package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog"

	"github.com/mahaj/dupahar-messaging/pkg/db"
	"github.com/mahaj/dupahar-messaging/pkg/model"
	"github.com/mahaj/dupahar-messaging/pkg/snowflake"
	"github.com/mahaj/dupahar-messaging/pkg/store"
)

// seenBatchSize keeps MarkSeen batches under the batch size warning threshold.
const seenBatchSize = 100

type Store struct {
	session *db.Session
	ids     *snowflake.Node
	log     zerolog.Logger
}

var _ store.Store = (*Store)(nil)

func New(session *db.Session, ids *snowflake.Node, log zerolog.Logger) *Store {
	return &Store{
		session: session,
		ids:     ids,
		log:     log.With().Str("component", "scylla-store").Logger(),
	}
}

func (s *Store) FindDirect(ctx context.Context, a, b int64) (*model.Conversation, error) {
	var (
		c         model.Conversation
		low, high int64
	)
	err := s.session.Query(
		`SELECT conversation_id, user_low, user_high, created_at FROM direct_conversations WHERE pair_key = ?`,
		model.PairKey(a, b),
	).WithContext(ctx).Scan(&c.ID, &low, &high, &c.CreatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, store.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Participants = [2]int64{low, high}
	return &c, nil
}

// CreateDirect writes the conversation and participant rows, then claims the
// pair with a lightweight transaction. The loser of a race removes its rows
// and reports ErrDuplicateConversation.
func (s *Store) CreateDirect(ctx context.Context, a, b int64) (*model.Conversation, error) {
	if a == b {
		return nil, fmt.Errorf("scylla: conversation needs two distinct users, got %d twice", a)
	}
	low, high := model.CanonicalPair(a, b)
	id := s.ids.Generate()
	createdAt := snowflake.Time(id)

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO conversations (id, is_group, user_low, user_high, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, false, low, high, createdAt)
	batch.Query(`INSERT INTO participants (conversation_id, user_id) VALUES (?, ?)`, id, low)
	batch.Query(`INSERT INTO participants (conversation_id, user_id) VALUES (?, ?)`, id, high)
	if err := s.session.ExecuteBatch(batch); err != nil {
		return nil, err
	}

	applied, err := s.session.Query(
		`INSERT INTO direct_conversations (pair_key, conversation_id, user_low, user_high, created_at) VALUES (?, ?, ?, ?, ?) IF NOT EXISTS`,
		model.PairKey(low, high), id, low, high, createdAt,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	if !applied {
		s.discard(id, low, high)
		return nil, store.ErrDuplicateConversation
	}

	return &model.Conversation{ID: id, CreatedAt: createdAt, Participants: [2]int64{low, high}}, nil
}

func (s *Store) discard(id, low, high int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM participants WHERE conversation_id = ? AND user_id IN (?, ?)`, id, low, high)
	batch.Query(`DELETE FROM conversations WHERE id = ?`, id)
	if err := s.session.ExecuteBatch(batch); err != nil {
		s.log.Warn().Err(err).Int64("conversation_id", id).Msg("failed to remove orphaned conversation")
	}
}

func (s *Store) Append(ctx context.Context, m store.NewMessage) (*model.Message, error) {
	var found int64
	err := s.session.Query(`SELECT id FROM conversations WHERE id = ?`, m.ConversationID).
		WithContext(ctx).Scan(&found)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, store.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

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
	err = s.session.Query(
		`INSERT INTO messages (conversation_id, id, sender_id, kind, content, media_ref, seen, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ConversationID, msg.ID, msg.SenderID, string(msg.Kind), msg.Content, msg.MediaRef, false, msg.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Store) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	iter := s.session.Query(
		`SELECT id, sender_id, kind, content, media_ref, seen, created_at FROM messages WHERE conversation_id = ?`,
		conversationID,
	).WithContext(ctx).Iter()

	messages := []model.Message{}
	var (
		m    model.Message
		kind string
	)
	// Clustering order is id ascending, and created_at is derived from id.
	for iter.Scan(&m.ID, &m.SenderID, &kind, &m.Content, &m.MediaRef, &m.Seen, &m.CreatedAt) {
		m.ConversationID = conversationID
		m.Kind = model.Kind(kind)
		messages = append(messages, m)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkSeen flags every unseen message from the other participant in one
// single-partition batch. The count comes from the pre-read, so two readers
// racing on the same rows may both count them; the rows end up seen either way.
func (s *Store) MarkSeen(ctx context.Context, conversationID, recipientID int64) (int, error) {
	iter := s.session.Query(
		`SELECT id, sender_id, seen FROM messages WHERE conversation_id = ?`, conversationID,
	).WithContext(ctx).Iter()

	var (
		pending      []int64
		id, senderID int64
		seen         bool
	)
	for iter.Scan(&id, &senderID, &seen) {
		if !seen && senderID != recipientID {
			pending = append(pending, id)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	n := 0
	for len(pending) > 0 {
		chunk := pending[:min(len(pending), seenBatchSize)]
		pending = pending[len(chunk):]

		batch := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
		for _, id := range chunk {
			batch.Query(`UPDATE messages SET seen = true WHERE conversation_id = ? AND id = ?`, conversationID, id)
		}
		if err := s.session.ExecuteBatch(batch); err != nil {
			return n, err
		}
		n += len(chunk)
	}
	return n, nil
}

func (s *Store) Close() error {
	s.session.Close()
	return nil
}
