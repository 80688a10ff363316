// Package presence tracks which users have live connections on this node.
package presence

import (
	"sort"
	"sync"
)

// Handle is one live connection. Send must not block.
type Handle interface {
	ID() string
	Send(frame []byte) error
}

// Registry maps users to their live handles. A user is online while at least
// one handle is registered.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[int64]map[string]Handle
	byHandle map[string]int64
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[int64]map[string]Handle),
		byHandle: make(map[string]int64),
	}
}

// Register adds h under userID. changed reports whether the online set moved,
// either because userID came online or because h was taken from another user
// who went offline as a result.
func (r *Registry) Register(userID int64, h Handle) (changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byHandle[h.ID()]; ok {
		if prev == userID {
			return false
		}
		if r.removeLocked(prev, h.ID()) {
			changed = true
		}
	}

	handles, ok := r.byUser[userID]
	if !ok {
		handles = make(map[string]Handle)
		r.byUser[userID] = handles
		changed = true
	}
	handles[h.ID()] = h
	r.byHandle[h.ID()] = userID
	return changed
}

// Unregister removes h. It returns the user h belonged to and whether that
// user went offline. Unknown handles are ignored.
func (r *Registry) Unregister(h Handle) (userID int64, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byHandle[h.ID()]
	if !ok {
		return 0, false
	}
	return userID, r.removeLocked(userID, h.ID())
}

func (r *Registry) removeLocked(userID int64, handleID string) (wentOffline bool) {
	delete(r.byHandle, handleID)
	handles := r.byUser[userID]
	delete(handles, handleID)
	if len(handles) == 0 {
		delete(r.byUser, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// UserOf returns the user h is registered under.
func (r *Registry) UserOf(h Handle) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHandle[h.ID()]
	return id, ok
}

// HandlesFor returns a snapshot of userID's handles.
func (r *Registry) HandlesFor(userID int64) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := r.byUser[userID]
	out := make([]Handle, 0, len(handles))
	for _, h := range handles {
		out = append(out, h)
	}
	return out
}

// Online returns the ids of online users in ascending order.
func (r *Registry) Online() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Handles returns every registered handle.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.byHandle))
	for _, handles := range r.byUser {
		for _, h := range handles {
			out = append(out, h)
		}
	}
	return out
}
