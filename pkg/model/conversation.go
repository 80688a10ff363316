package model

import (
	"fmt"
	"time"
)

// Conversation is a two-party thread. Group conversations are not created by
// this service; IsGroup is kept so the schema can grow into them.
type Conversation struct {
	ID        int64     `json:"id"`
	IsGroup   bool      `json:"isGroup"`
	CreatedAt time.Time `json:"createdAt"`
	// Participants is filled for direct conversations, lowest id first.
	Participants [2]int64 `json:"participants"`
}

type Participant struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID int64) int64 {
	if c.Participants[0] == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// CanonicalPair orders two user ids so that {a, b} and {b, a} share one key.
func CanonicalPair(a, b int64) (low, high int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// PairKey is the uniqueness key of a direct conversation.
func PairKey(a, b int64) string {
	low, high := CanonicalPair(a, b)
	return fmt.Sprintf("%d:%d", low, high)
}
