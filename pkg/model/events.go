package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Event names on the live connection.
const (
	EventRegister       = "register"
	EventPrivateMessage = "privateMessage"
	EventGetHistory     = "getHistory"
	EventMarkAsSeen     = "markAsSeen"

	EventUserList      = "userList"
	EventMessageStatus = "messageStatus"
	EventChatHistory   = "chatHistory"
	EventMessagesSeen  = "messagesSeen"
	EventError         = "error"
)

var (
	ErrUnknownEvent   = errors.New("model: unknown event")
	ErrInvalidPayload = errors.New("model: invalid payload")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Request is one decoded client event. The concrete types below are the only
// implementations.
type Request interface {
	EventName() string
}

type RegisterRequest struct {
	UserID int64 `json:"userId" validate:"gt=0"`
}

// UnmarshalJSON accepts both {"userId": 7} and a bare 7.
func (r *RegisterRequest) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '{' {
		return json.Unmarshal(b, &r.UserID)
	}
	type plain RegisterRequest
	return json.Unmarshal(b, (*plain)(r))
}

type PrivateMessageRequest struct {
	ClientCorrelationID string `json:"clientCorrelationId" validate:"required,max=128"`
	From                int64  `json:"from" validate:"gt=0"`
	To                  int64  `json:"to" validate:"gt=0,nefield=From"`
	Text                string `json:"text" validate:"max=8000"`
	Kind                Kind   `json:"kind,omitempty" validate:"omitempty,oneof=text audio image"`
	MediaRef            string `json:"mediaRef,omitempty" validate:"omitempty,max=2048"`
}

func (r *PrivateMessageRequest) UnmarshalJSON(b []byte) error {
	type plain PrivateMessageRequest
	var aux struct {
		plain
		ClientID string `json:"clientId"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = PrivateMessageRequest(aux.plain)
	if r.ClientCorrelationID == "" {
		r.ClientCorrelationID = aux.ClientID
	}
	return nil
}

type GetHistoryRequest struct {
	UserAID int64 `json:"userAId" validate:"gt=0"`
	UserBID int64 `json:"userBId" validate:"gt=0,nefield=UserAID"`
}

type MarkAsSeenRequest struct {
	UserID   int64 `json:"userId" validate:"gt=0"`
	FriendID int64 `json:"friendId" validate:"gt=0,nefield=UserID"`
}

func (RegisterRequest) EventName() string       { return EventRegister }
func (PrivateMessageRequest) EventName() string { return EventPrivateMessage }
func (GetHistoryRequest) EventName() string     { return EventGetHistory }
func (MarkAsSeenRequest) EventName() string     { return EventMarkAsSeen }

// DecodeRequest parses and validates one inbound frame.
func DecodeRequest(frame []byte) (Request, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var req Request
	switch env.Event {
	case EventRegister:
		req = &RegisterRequest{}
	case EventPrivateMessage:
		req = &PrivateMessageRequest{}
	case EventGetHistory:
		req = &GetHistoryRequest{}
	case EventMarkAsSeen:
		req = &MarkAsSeenRequest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %s has no data", ErrInvalidPayload, env.Event)
	}
	if err := json.Unmarshal(env.Data, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return req, nil
}

// Contact is the display view of an external user.
type Contact struct {
	ID     int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Server → client payloads.

type PrivateMessagePush struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversationId"`
	From           int64  `json:"from"`
	To             int64  `json:"to"`
	Kind           Kind   `json:"kind"`
	Text           string `json:"text"`
	MediaRef       string `json:"mediaRef,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

type MessageStatusPush struct {
	CorrelationID string         `json:"correlationId"`
	Status        DeliveryStatus `json:"status"`
	MessageID     int64          `json:"messageId,omitempty"`
}

// MessageView is a message as seen by one of the participants.
type MessageView struct {
	ID        int64  `json:"id"`
	FromMe    bool   `json:"fromMe"`
	SenderID  int64  `json:"senderId"`
	Kind      Kind   `json:"kind"`
	Text      string `json:"text"`
	MediaRef  string `json:"mediaRef,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Seen      bool   `json:"seen"`
}

type ChatHistoryPush struct {
	With     Contact       `json:"with"`
	Messages []MessageView `json:"messages"`
}

type MessagesSeenPush struct {
	By    int64 `json:"by"`
	Count int   `json:"count"`
}

type ErrorPush struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Encode builds an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// View maps a stored message for the given reader.
func View(m Message, reader int64) MessageView {
	return MessageView{
		ID:        m.ID,
		FromMe:    m.SenderID == reader,
		SenderID:  m.SenderID,
		Kind:      m.Kind,
		Text:      m.Content,
		MediaRef:  m.MediaRef,
		Timestamp: m.CreatedAt.UnixMilli(),
		Seen:      m.Seen,
	}
}
