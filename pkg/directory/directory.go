// Package directory reads users and friendships owned by the user service.
package directory

import (
	"context"
	"sync"

	"github.com/mahaj/dupahar-messaging/pkg/model"
)

type FriendGraph interface {
	Friends(ctx context.Context, userID int64) ([]model.Contact, error)
}

type Users interface {
	// Lookup returns the display contact for userID. Unknown users come back
	// with only the id set.
	Lookup(ctx context.Context, userID int64) (model.Contact, error)
}

type Directory interface {
	FriendGraph
	Users
}

// Static is an in-memory directory for development and tests.
type Static struct {
	mu      sync.RWMutex
	users   map[int64]model.Contact
	friends map[int64]map[int64]bool
}

var _ Directory = (*Static)(nil)

func NewStatic() *Static {
	return &Static{
		users:   make(map[int64]model.Contact),
		friends: make(map[int64]map[int64]bool),
	}
}

func (s *Static) AddUser(c model.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[c.ID] = c
}

// Befriend records a mutual friendship.
func (s *Static) Befriend(a, b int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range [][2]int64{{a, b}, {b, a}} {
		if s.friends[p[0]] == nil {
			s.friends[p[0]] = make(map[int64]bool)
		}
		s.friends[p[0]][p[1]] = true
	}
}

func (s *Static) Friends(ctx context.Context, userID int64) ([]model.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Contact, 0, len(s.friends[userID]))
	for id := range s.friends[userID] {
		out = append(out, s.lookupLocked(id))
	}
	return out, nil
}

func (s *Static) Lookup(ctx context.Context, userID int64) (model.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(userID), nil
}

func (s *Static) lookupLocked(id int64) model.Contact {
	if c, ok := s.users[id]; ok {
		return c
	}
	return model.Contact{ID: id}
}
