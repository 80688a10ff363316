package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// DeliveryStatus is reported to the sender only; it is never stored.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

var ErrInvalidContent = errors.New("model: invalid message content")

type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	Kind           Kind      `json:"kind"`
	Content        string    `json:"content"`
	MediaRef       string    `json:"mediaRef,omitempty"`
	Seen           bool      `json:"seen"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindAudio, KindImage:
		return true
	}
	return false
}

// NormalizeContent applies the kind/content rules shared by every entry point:
// an empty kind means text, text needs a non-blank body and no media,
// audio and image need a media reference.
func NormalizeContent(kind Kind, content, mediaRef string) (Kind, string, string, error) {
	if kind == "" {
		kind = KindText
	}
	if !kind.Valid() {
		return "", "", "", fmt.Errorf("%w: unknown kind %q", ErrInvalidContent, kind)
	}
	mediaRef = strings.TrimSpace(mediaRef)

	switch kind {
	case KindText:
		// Blank bodies are rejected; the stored text keeps its whitespace.
		if strings.TrimSpace(content) == "" {
			return "", "", "", fmt.Errorf("%w: text message is empty", ErrInvalidContent)
		}
		if mediaRef != "" {
			return "", "", "", fmt.Errorf("%w: text message cannot carry media", ErrInvalidContent)
		}
	default:
		if mediaRef == "" {
			return "", "", "", fmt.Errorf("%w: %s message requires a media reference", ErrInvalidContent, kind)
		}
	}
	return kind, content, mediaRef, nil
}
