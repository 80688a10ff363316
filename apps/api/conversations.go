package main

import (
	"net/http"
	"strconv"

	"github.com/mahaj/dupahar-messaging/pkg/auth"
	"github.com/mahaj/dupahar-messaging/pkg/chat"
)

type Conversation struct {
	chat.ConversationView
	UnreadCount int64 `json:"unreadCount"`
}

func (a *API) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())
	ctx := r.Context()

	views, err := a.chat.Conversations(ctx, claims.UserID)
	if err != nil {
		a.log.Error().Err(err).Int64("user_id", claims.UserID).Msg("failed to list conversations")
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}

	// Both overlays are best effort; the inbox is still useful without them.
	online, err := a.online(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to read presence")
	}
	counts, err := a.counters.All(ctx, claims.UserID)
	if err != nil {
		a.log.Warn().Err(err).Int64("user_id", claims.UserID).Msg("failed to read unread counters")
	}

	conversations := make([]Conversation, len(views))
	for i, v := range views {
		v.Friend.Online = v.Friend.Online || online[v.Friend.ID]
		conversations[i] = Conversation{ConversationView: v, UnreadCount: counts[v.Friend.ID]}
	}
	writeJSON(w, http.StatusOK, conversations)
}

// UnreadHandler returns unread counts keyed by peer id.
func (a *API) UnreadHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())

	counts, err := a.counters.All(r.Context(), claims.UserID)
	if err != nil {
		a.log.Error().Err(err).Int64("user_id", claims.UserID).Msg("failed to read unread counters")
		http.Error(w, "Failed to read unread counts", http.StatusInternalServerError)
		return
	}
	out := make(map[string]int64, len(counts))
	for other, n := range counts {
		out[strconv.FormatInt(other, 10)] = n
	}
	writeJSON(w, http.StatusOK, out)
}
