package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mahaj/dupahar-messaging/pkg/model"
	"github.com/mahaj/dupahar-messaging/pkg/snowflake"
	"github.com/mahaj/dupahar-messaging/pkg/store"
)

// Store keeps everything in process memory. Used for development and tests.
type Store struct {
	mu            sync.RWMutex
	ids           *snowflake.Node
	conversations map[int64]*model.Conversation
	byPair        map[string]int64
	messages      map[int64][]model.Message
}

var _ store.Store = (*Store)(nil)

func New(ids *snowflake.Node) *Store {
	return &Store{
		ids:           ids,
		conversations: make(map[int64]*model.Conversation),
		byPair:        make(map[string]int64),
		messages:      make(map[int64][]model.Message),
	}
}

func (s *Store) FindDirect(ctx context.Context, a, b int64) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPair[model.PairKey(a, b)]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	c := *s.conversations[id]
	return &c, nil
}

func (s *Store) CreateDirect(ctx context.Context, a, b int64) (*model.Conversation, error) {
	if a == b {
		return nil, fmt.Errorf("memory: conversation needs two distinct users, got %d twice", a)
	}
	low, high := model.CanonicalPair(a, b)
	key := model.PairKey(low, high)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byPair[key]; ok {
		return nil, store.ErrDuplicateConversation
	}
	id := s.ids.Generate()
	c := &model.Conversation{
		ID:           id,
		CreatedAt:    snowflake.Time(id),
		Participants: [2]int64{low, high},
	}
	s.conversations[id] = c
	s.byPair[key] = id

	out := *c
	return &out, nil
}

func (s *Store) Append(ctx context.Context, m store.NewMessage) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[m.ConversationID]; !ok {
		return nil, store.ErrConversationNotFound
	}
	id := s.ids.Generate()
	msg := model.Message{
		ID:             id,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Kind:           m.Kind,
		Content:        m.Content,
		MediaRef:       m.MediaRef,
		CreatedAt:      snowflake.Time(id),
	}
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], msg)
	return &msg, nil
}

func (s *Store) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Ids come from one node under the write lock, so append order is
	// already (timestamp, id) order.
	msgs := s.messages[conversationID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) MarkSeen(ctx context.Context, conversationID, recipientID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	n := 0
	for i := range msgs {
		if msgs[i].SenderID != recipientID && !msgs[i].Seen {
			msgs[i].Seen = true
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }
