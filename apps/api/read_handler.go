package main

import (
	"encoding/json"
	"net/http"

	"github.com/mahaj/dupahar-messaging/pkg/auth"
)

type ReadRequest struct {
	OtherUserID int64 `json:"other_user_id"`
}

// ReadHandler resets the caller's unread counter for one peer. Message seen
// flags are owned by the gateway's markAsSeen.
func (a *API) ReadHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())

	var req ReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OtherUserID <= 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := a.counters.Reset(r.Context(), claims.UserID, req.OtherUserID); err != nil {
		a.log.Error().Err(err).Int64("user_id", claims.UserID).Msg("failed to reset unread count")
		http.Error(w, "Failed to reset unread count", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
