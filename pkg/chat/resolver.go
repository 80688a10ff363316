// Package chat implements direct messaging: conversation resolution,
// delivery, history and read receipts.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/mahaj/dupahar-messaging/pkg/model"
	"github.com/mahaj/dupahar-messaging/pkg/store"
)

var (
	// ErrPersistence wraps every store failure surfaced by this package.
	ErrPersistence = errors.New("chat: persistence failure")
	ErrInvalidPair = errors.New("chat: invalid user pair")
)

func persistence(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

func validPair(a, b int64) error {
	if a <= 0 || b <= 0 || a == b {
		return fmt.Errorf("%w: (%d, %d)", ErrInvalidPair, a, b)
	}
	return nil
}

// Resolver finds or lazily creates the single direct conversation for a pair.
type Resolver struct {
	store store.Store
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns the conversation between a and b, creating it on first use.
// Concurrent callers for the same pair all receive the same conversation.
func (r *Resolver) Resolve(ctx context.Context, a, b int64) (*model.Conversation, error) {
	if err := validPair(a, b); err != nil {
		return nil, err
	}

	c, err := r.store.FindDirect(ctx, a, b)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrConversationNotFound) {
		return nil, persistence(err)
	}

	c, err = r.store.CreateDirect(ctx, a, b)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrDuplicateConversation) {
		return nil, persistence(err)
	}

	// Lost the race; the winner's row is now visible.
	c, err = r.store.FindDirect(ctx, a, b)
	if err != nil {
		return nil, persistence(err)
	}
	return c, nil
}

// Find is Resolve without creation. It returns store.ErrConversationNotFound
// when the pair never talked.
func (r *Resolver) Find(ctx context.Context, a, b int64) (*model.Conversation, error) {
	if err := validPair(a, b); err != nil {
		return nil, err
	}
	c, err := r.store.FindDirect(ctx, a, b)
	if errors.Is(err, store.ErrConversationNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, persistence(err)
	}
	return c, nil
}
