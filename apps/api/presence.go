package main

import (
	"net/http"
	"sort"
)

// PresenceHandler lists online user ids in ascending order.
func (a *API) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	online, err := a.online(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("failed to fetch presence")
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}

	users := make([]int64, 0, len(online))
	for id := range online {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	writeJSON(w, http.StatusOK, users)
}
