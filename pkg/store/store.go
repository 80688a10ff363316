// Package store defines the persistence contract for conversations and
// messages. Backends live in the subpackages.
package store

import (
	"context"
	"errors"

	"github.com/mahaj/dupahar-messaging/pkg/model"
)

var (
	ErrConversationNotFound = errors.New("store: conversation not found")
	// ErrDuplicateConversation is returned by CreateDirect when another
	// writer created the same pair first.
	ErrDuplicateConversation = errors.New("store: duplicate conversation")
)

type NewMessage struct {
	ConversationID int64
	SenderID       int64
	Kind           model.Kind
	Content        string
	MediaRef       string
}

type Store interface {
	// FindDirect returns the direct conversation between a and b in either order.
	FindDirect(ctx context.Context, a, b int64) (*model.Conversation, error)
	// CreateDirect creates the conversation and both participant rows.
	CreateDirect(ctx context.Context, a, b int64) (*model.Conversation, error)
	// Append assigns id and timestamp and stores the message with seen=false.
	Append(ctx context.Context, m NewMessage) (*model.Message, error)
	// ListByConversation returns messages by ascending timestamp, id breaking
	// ties. An unknown conversation yields an empty list.
	ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error)
	// MarkSeen flips seen on every message in the conversation not sent by
	// recipientID and returns how many changed.
	MarkSeen(ctx context.Context, conversationID, recipientID int64) (int, error)
	Close() error
}
