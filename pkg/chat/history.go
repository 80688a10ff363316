package chat

import (
	"context"
	"errors"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mahaj/dupahar-messaging/pkg/model"
	"github.com/mahaj/dupahar-messaging/pkg/store"
)

type HistoryView struct {
	ConversationID int64               `json:"conversationId"`
	With           model.Contact       `json:"with"`
	Messages       []model.MessageView `json:"messages"`
}

type FriendView struct {
	model.Contact
	Online bool `json:"online"`
}

type ConversationView struct {
	ConversationID int64               `json:"conversationId"`
	Friend         FriendView          `json:"friend"`
	Messages       []model.MessageView `json:"messages"`
	LastMessage    model.MessageView   `json:"lastMessage"`
}

// History returns the conversation between requester and other, oldest
// message first, viewed from requester's side.
func (s *Service) History(ctx context.Context, requester, other int64) (*HistoryView, error) {
	conv, err := s.resolver.Resolve(ctx, requester, other)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, persistence(err)
	}

	return &HistoryView{
		ConversationID: conv.ID,
		With:           s.contact(ctx, other),
		Messages:       views(msgs, requester),
	}, nil
}

// Conversations lists userID's conversations with friends, skipping friends
// with no messages, most recent first.
func (s *Service) Conversations(ctx context.Context, userID int64) ([]ConversationView, error) {
	friends, err := s.directory.Friends(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]*ConversationView, len(friends))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanout)
	for i, friend := range friends {
		if friend.ID == userID {
			continue
		}
		i, friend := i, friend
		g.Go(func() error {
			conv, err := s.resolver.Find(gctx, userID, friend.ID)
			if errors.Is(err, store.ErrConversationNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			msgs, err := s.store.ListByConversation(gctx, conv.ID)
			if err != nil {
				return persistence(err)
			}
			if len(msgs) == 0 {
				return nil
			}
			vs := views(msgs, userID)
			results[i] = &ConversationView{
				ConversationID: conv.ID,
				Friend:         FriendView{Contact: friend, Online: s.presence.IsOnline(friend.ID)},
				Messages:       vs,
				LastMessage:    vs[len(vs)-1],
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]ConversationView, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessage, out[j].LastMessage
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		return a.ID > b.ID
	})
	return out, nil
}

// contact looks up display data; failures degrade to the bare id.
func (s *Service) contact(ctx context.Context, userID int64) model.Contact {
	c, err := s.directory.Lookup(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("user lookup failed")
		return model.Contact{ID: userID}
	}
	return c
}

func views(msgs []model.Message, reader int64) []model.MessageView {
	out := make([]model.MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = model.View(m, reader)
	}
	return out
}
