package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDecodeRegisterAcceptsObjectAndBareID(t *testing.T) {
	for _, frame := range []string{
		`{"event":"register","data":{"userId":7}}`,
		`{"event":"register","data":7}`,
	} {
		req, err := DecodeRequest([]byte(frame))
		if err != nil {
			t.Fatalf("decode %s: %v", frame, err)
		}
		reg, ok := req.(*RegisterRequest)
		if !ok {
			t.Fatalf("expected *RegisterRequest, got %T", req)
		}
		if reg.UserID != 7 {
			t.Fatalf("expected user 7, got %d", reg.UserID)
		}
	}
}

func TestDecodePrivateMessage(t *testing.T) {
	frame := `{"event":"privateMessage","data":{"clientCorrelationId":"c-1","from":1,"to":2,"text":"Hello"}}`
	req, err := DecodeRequest([]byte(frame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	pm := req.(*PrivateMessageRequest)
	if pm.ClientCorrelationID != "c-1" || pm.From != 1 || pm.To != 2 || pm.Text != "Hello" {
		t.Fatalf("unexpected request: %+v", pm)
	}
	if pm.EventName() != EventPrivateMessage {
		t.Fatalf("unexpected event name %q", pm.EventName())
	}
}

func TestDecodePrivateMessageClientIDAlias(t *testing.T) {
	frame := `{"event":"privateMessage","data":{"clientId":"legacy","from":1,"to":2,"text":"hi"}}`
	req, err := DecodeRequest([]byte(frame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := req.(*PrivateMessageRequest).ClientCorrelationID; got != "legacy" {
		t.Fatalf("expected alias to fill correlation id, got %q", got)
	}
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	cases := map[string]struct {
		frame string
		want  error
	}{
		"not json":          {`nope`, ErrInvalidPayload},
		"unknown event":     {`{"event":"typing","data":{}}`, ErrUnknownEvent},
		"missing data":      {`{"event":"getHistory"}`, ErrInvalidPayload},
		"zero user":         {`{"event":"register","data":{"userId":0}}`, ErrInvalidPayload},
		"self message":      {`{"event":"privateMessage","data":{"clientCorrelationId":"x","from":1,"to":1,"text":"a"}}`, ErrInvalidPayload},
		"no correlation id": {`{"event":"privateMessage","data":{"from":1,"to":2,"text":"a"}}`, ErrInvalidPayload},
		"bad kind":          {`{"event":"privateMessage","data":{"clientCorrelationId":"x","from":1,"to":2,"kind":"video"}}`, ErrInvalidPayload},
		"same pair":         {`{"event":"getHistory","data":{"userAId":3,"userBId":3}}`, ErrInvalidPayload},
		"seen missing":      {`{"event":"markAsSeen","data":{"userId":3}}`, ErrInvalidPayload},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(tc.frame))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNormalizeContent(t *testing.T) {
	kind, text, media, err := NormalizeContent("", "  Hello ", "")
	if err != nil || kind != KindText || text != "  Hello " || media != "" {
		t.Fatalf("text must be kept as sent: %q %q %q %v", kind, text, media, err)
	}

	if _, _, _, err := NormalizeContent(KindText, "   ", ""); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("expected blank text to fail, got %v", err)
	}
	if _, _, _, err := NormalizeContent(KindText, "hi", "/uploads/a.png"); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("expected text with media to fail, got %v", err)
	}
	if _, _, _, err := NormalizeContent(KindAudio, "", ""); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("expected audio without media to fail, got %v", err)
	}
	if kind, _, media, err := NormalizeContent(KindImage, "", "/uploads/cat.jpg"); err != nil || kind != KindImage || media != "/uploads/cat.jpg" {
		t.Fatalf("expected image to pass, got %q %q %v", kind, media, err)
	}
}

func TestEncodeAndView(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	m := Message{ID: 9, SenderID: 1, Kind: KindText, Content: "Hello", CreatedAt: at}

	if v := View(m, 2); v.FromMe || v.Timestamp != at.UnixMilli() || v.Text != "Hello" {
		t.Fatalf("unexpected view for recipient: %+v", v)
	}
	if v := View(m, 1); !v.FromMe {
		t.Fatalf("expected fromMe for sender")
	}

	frame, err := Encode(EventMessagesSeen, MessagesSeenPush{By: 2, Count: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Event != EventMessagesSeen || string(env.Data) != `{"by":2,"count":1}` {
		t.Fatalf("unexpected frame %s", frame)
	}
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	if PairKey(5, 2) != PairKey(2, 5) || PairKey(2, 5) != "2:5" {
		t.Fatalf("pair key must be canonical, got %q / %q", PairKey(5, 2), PairKey(2, 5))
	}
	c := Conversation{Participants: [2]int64{2, 5}}
	if c.Other(2) != 5 || c.Other(5) != 2 {
		t.Fatalf("Other returned the wrong participant")
	}
}
