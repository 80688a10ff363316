package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/mahaj/dupahar-messaging/pkg/auth"
	"github.com/mahaj/dupahar-messaging/pkg/chat"
	"github.com/mahaj/dupahar-messaging/pkg/config"
	"github.com/mahaj/dupahar-messaging/pkg/model"
	"github.com/mahaj/dupahar-messaging/pkg/presence"
)

type registration struct {
	client *Client
	userID int64
	done   chan struct{}
}

// Hub owns connection lifecycle. Registrations and disconnects are applied
// one at a time by Run so the Redis mirror sees transitions in order.
type Hub struct {
	ctx        context.Context
	registry   *presence.Registry
	mirror     presence.Mirror
	chat       *chat.Service
	signer     *auth.Signer
	cfg        config.Gateway
	requireJWT bool
	log        zerolog.Logger

	register   chan registration
	unregister chan *Client
}

type HubOptions struct {
	Registry    *presence.Registry
	Mirror      presence.Mirror
	Chat        *chat.Service
	Signer      *auth.Signer
	Gateway     config.Gateway
	RequireAuth bool
	Log         zerolog.Logger
}

// NewHub returns a hub whose event handlers run under ctx. ctx outlives
// individual connections, so a disconnect does not abort a pending write.
func NewHub(ctx context.Context, opts HubOptions) *Hub {
	if opts.Mirror == nil {
		opts.Mirror = presence.NopMirror{}
	}
	return &Hub{
		ctx:        ctx,
		registry:   opts.Registry,
		mirror:     opts.Mirror,
		chat:       opts.Chat,
		signer:     opts.Signer,
		cfg:        opts.Gateway,
		requireJWT: opts.RequireAuth,
		log:        opts.Log.With().Str("component", "hub").Logger(),
		register:   make(chan registration),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case reg := <-h.register:
			h.applyRegister(reg.client, reg.userID)
			close(reg.done)

		case client := <-h.unregister:
			userID, changed := h.registry.Unregister(client)
			if userID == 0 {
				continue
			}
			h.log.Info().Int64("user_id", userID).Str("handle", client.ID()).Msg("client unregistered")
			if changed {
				if err := h.mirror.Offline(h.ctx, userID); err != nil {
					h.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to clear presence")
				}
				h.broadcastUserList()
			}

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) applyRegister(c *Client, userID int64) {
	changed := false
	if prev, ok := h.registry.UserOf(c); ok && prev != userID {
		// The connection switched identity; retire the old one first.
		if _, offline := h.registry.Unregister(c); offline {
			changed = true
			if err := h.mirror.Offline(h.ctx, prev); err != nil {
				h.log.Warn().Err(err).Int64("user_id", prev).Msg("failed to clear presence")
			}
		}
	}
	if h.registry.Register(userID, c) {
		changed = true
		if err := h.mirror.Online(h.ctx, userID); err != nil {
			h.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to set presence")
		}
	}
	c.userID.Store(userID)
	h.log.Info().Int64("user_id", userID).Str("handle", c.ID()).Msg("client registered")

	snapshot, err := model.Encode(model.EventUserList, h.registry.Online())
	if err != nil {
		return
	}
	if changed && h.cfg.PresenceBroadcast {
		for _, other := range h.registry.Handles() {
			other.Send(snapshot)
		}
		return
	}
	c.Send(snapshot)
}

func (h *Hub) broadcastUserList() {
	if !h.cfg.PresenceBroadcast {
		return
	}
	snapshot, err := model.Encode(model.EventUserList, h.registry.Online())
	if err != nil {
		return
	}
	for _, c := range h.registry.Handles() {
		c.Send(snapshot)
	}
}

// registerClient blocks until Run has applied the registration, so the
// client's next frame already sees its identity.
func (h *Hub) registerClient(c *Client, userID int64) error {
	reg := registration{client: c, userID: userID, done: make(chan struct{})}
	select {
	case h.register <- reg:
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
	select {
	case <-reg.done:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Error codes carried in error frames.
const (
	codeInvalidPayload = "invalid_payload"
	codeUnknownEvent   = "unknown_event"
	codeNotRegistered  = "not_registered"
	codeForbidden      = "forbidden"
	codePersistence    = "persistence"
)

func (h *Hub) handle(c *Client, req model.Request) {
	switch r := req.(type) {
	case *model.PrivateMessageRequest:
		h.onPrivateMessage(c, r)
	case *model.GetHistoryRequest:
		h.onGetHistory(c, r)
	case *model.MarkAsSeenRequest:
		h.onMarkAsSeen(c, r)
	}
}

// onRegister runs inline on the read loop.
func (h *Hub) onRegister(c *Client, r *model.RegisterRequest) {
	if c.claims != nil && c.claims.UserID != r.UserID {
		c.sendError(codeForbidden, "userId does not match token")
		return
	}
	if err := h.registerClient(c, r.UserID); err != nil {
		h.log.Debug().Err(err).Msg("registration aborted")
	}
}

func (h *Hub) onPrivateMessage(c *Client, r *model.PrivateMessageRequest) {
	uid := c.UserID()
	switch {
	case uid == 0:
		c.sendStatus(r.ClientCorrelationID, model.StatusFailed)
		c.sendError(codeNotRegistered, "register before sending")
		return
	case r.From != uid:
		c.sendStatus(r.ClientCorrelationID, model.StatusFailed)
		c.sendError(codeForbidden, "from does not match registered user")
		return
	}

	_, err := h.chat.Send(h.ctx, chat.SendInput{
		CorrelationID: r.ClientCorrelationID,
		From:          r.From,
		To:            r.To,
		Kind:          r.Kind,
		Text:          r.Text,
		MediaRef:      r.MediaRef,
	})
	switch {
	case err == nil:
	case errors.Is(err, model.ErrInvalidContent), errors.Is(err, chat.ErrInvalidPair):
		c.sendError(codeInvalidPayload, err.Error())
	default:
		h.log.Error().Err(err).Int64("user_id", uid).Msg("send failed")
	}
}

func (h *Hub) onGetHistory(c *Client, r *model.GetHistoryRequest) {
	uid := c.UserID()
	var other int64
	switch uid {
	case 0:
		c.sendError(codeNotRegistered, "register before requesting history")
		return
	case r.UserAID:
		other = r.UserBID
	case r.UserBID:
		other = r.UserAID
	default:
		c.sendError(codeForbidden, "requester is not part of the conversation")
		return
	}

	view, err := h.chat.History(h.ctx, uid, other)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Int64("other", other).Msg("history failed")
		c.sendError(codePersistence, "could not load history")
		return
	}
	c.push(model.EventChatHistory, model.ChatHistoryPush{With: view.With, Messages: view.Messages})
}

func (h *Hub) onMarkAsSeen(c *Client, r *model.MarkAsSeenRequest) {
	uid := c.UserID()
	switch {
	case uid == 0:
		c.sendError(codeNotRegistered, "register before marking messages seen")
		return
	case r.UserID != uid:
		c.sendError(codeForbidden, "userId does not match registered user")
		return
	}
	if _, err := h.chat.MarkSeen(h.ctx, uid, r.FriendID); err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Int64("friend", r.FriendID).Msg("mark seen failed")
		c.sendError(codePersistence, "could not mark messages seen")
	}
}
