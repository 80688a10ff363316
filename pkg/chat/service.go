package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mahaj/dupahar-messaging/pkg/directory"
	"github.com/mahaj/dupahar-messaging/pkg/events"
	"github.com/mahaj/dupahar-messaging/pkg/model"
	"github.com/mahaj/dupahar-messaging/pkg/presence"
	"github.com/mahaj/dupahar-messaging/pkg/store"
)

type Service struct {
	store     store.Store
	resolver  *Resolver
	presence  *presence.Registry
	directory directory.Directory
	events    events.Publisher
	log       zerolog.Logger

	// fanout bounds concurrent per-friend lookups in Conversations.
	fanout int
}

func NewService(st store.Store, reg *presence.Registry, dir directory.Directory, pub events.Publisher, log zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		store:     st,
		resolver:  NewResolver(st),
		presence:  reg,
		directory: dir,
		events:    pub,
		log:       log.With().Str("component", "chat").Logger(),
		fanout:    8,
	}
}

func (s *Service) Resolver() *Resolver { return s.resolver }

type SendInput struct {
	CorrelationID string
	From          int64
	To            int64
	Kind          model.Kind
	Text          string
	MediaRef      string
}

// Send persists one message and reports its status to every handle of the
// sender: failed if nothing was stored, otherwise sent, then delivered when
// at least one recipient handle accepted the push.
func (s *Service) Send(ctx context.Context, in SendInput) (*model.Message, error) {
	log := s.log.With().Str("correlation_id", in.CorrelationID).Int64("from", in.From).Int64("to", in.To).Logger()

	kind, text, mediaRef, err := model.NormalizeContent(in.Kind, in.Text, in.MediaRef)
	if err == nil {
		err = validPair(in.From, in.To)
	}
	if err != nil {
		s.status(in.From, in.CorrelationID, model.StatusFailed, 0)
		return nil, err
	}

	conv, err := s.resolver.Resolve(ctx, in.From, in.To)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve conversation")
		s.status(in.From, in.CorrelationID, model.StatusFailed, 0)
		return nil, err
	}

	msg, err := s.store.Append(ctx, store.NewMessage{
		ConversationID: conv.ID,
		SenderID:       in.From,
		Kind:           kind,
		Content:        text,
		MediaRef:       mediaRef,
	})
	if err != nil {
		log.Error().Err(err).Int64("conversation_id", conv.ID).Msg("failed to store message")
		s.status(in.From, in.CorrelationID, model.StatusFailed, 0)
		return nil, persistence(err)
	}

	s.status(in.From, in.CorrelationID, model.StatusSent, msg.ID)

	frame, err := model.Encode(model.EventPrivateMessage, model.PrivateMessagePush{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		From:           in.From,
		To:             in.To,
		Kind:           msg.Kind,
		Text:           msg.Content,
		MediaRef:       msg.MediaRef,
		Timestamp:      msg.CreatedAt.UnixMilli(),
	})
	if err == nil && s.push(in.To, frame) > 0 {
		s.status(in.From, in.CorrelationID, model.StatusDelivered, msg.ID)
	}

	s.publish(ctx, events.Event{
		Type:           events.MessageCreated,
		ConversationID: msg.ConversationID,
		From:           in.From,
		To:             in.To,
		MessageID:      msg.ID,
		At:             msg.CreatedAt,
	})
	log.Debug().Int64("message_id", msg.ID).Msg("message sent")
	return msg, nil
}

// MarkSeen marks every message from other as seen by reader and notifies
// other's handles. It returns how many messages changed.
func (s *Service) MarkSeen(ctx context.Context, reader, other int64) (int, error) {
	conv, err := s.resolver.Resolve(ctx, reader, other)
	if err != nil {
		return 0, err
	}
	n, err := s.store.MarkSeen(ctx, conv.ID, reader)
	if err != nil {
		return 0, persistence(err)
	}
	if n == 0 {
		return 0, nil
	}

	if frame, err := model.Encode(model.EventMessagesSeen, model.MessagesSeenPush{By: reader, Count: n}); err == nil {
		s.push(other, frame)
	}
	s.publish(ctx, events.Event{
		Type:           events.MessagesSeen,
		ConversationID: conv.ID,
		From:           reader,
		To:             other,
		Count:          n,
		At:             time.Now().UTC(),
	})
	return n, nil
}

// push sends frame to every handle of userID and returns how many accepted it.
func (s *Service) push(userID int64, frame []byte) int {
	accepted := 0
	for _, h := range s.presence.HandlesFor(userID) {
		if err := h.Send(frame); err != nil {
			s.log.Debug().Err(err).Int64("user_id", userID).Str("handle", h.ID()).Msg("dropping push to dead handle")
			continue
		}
		accepted++
	}
	return accepted
}

func (s *Service) status(userID int64, correlationID string, status model.DeliveryStatus, messageID int64) {
	frame, err := model.Encode(model.EventMessageStatus, model.MessageStatusPush{
		CorrelationID: correlationID,
		Status:        status,
		MessageID:     messageID,
	})
	if err != nil {
		return
	}
	s.push(userID, frame)
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("failed to publish event")
	}
}
