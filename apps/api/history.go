package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mahaj/dupahar-messaging/pkg/auth"
	"github.com/mahaj/dupahar-messaging/pkg/chat"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HistoryHandler serves GET /history?with=<userId> for the caller.
func (a *API) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())

	with, err := strconv.ParseInt(r.URL.Query().Get("with"), 10, 64)
	if err != nil {
		http.Error(w, "with must be a user id", http.StatusBadRequest)
		return
	}

	view, err := a.chat.History(r.Context(), claims.UserID, with)
	switch {
	case errors.Is(err, chat.ErrInvalidPair):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		a.log.Error().Err(err).Int64("user_id", claims.UserID).Int64("with", with).Msg("failed to load history")
		http.Error(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type LoginRequest struct {
	UserID int64 `json:"user_id"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// LoginHandler issues a token for any positive user id. Account checks are
// the user service's job; this exists for local development.
func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.UserID <= 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	token, err := a.signer.GenerateToken(req.UserID)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}
