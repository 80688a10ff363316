package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mahaj/dupahar-messaging/pkg/auth"
	"github.com/mahaj/dupahar-messaging/pkg/chat"
	"github.com/mahaj/dupahar-messaging/pkg/config"
	"github.com/mahaj/dupahar-messaging/pkg/directory"
	"github.com/mahaj/dupahar-messaging/pkg/events"
	"github.com/mahaj/dupahar-messaging/pkg/model"
	"github.com/mahaj/dupahar-messaging/pkg/presence"
	"github.com/mahaj/dupahar-messaging/pkg/snowflake"
	"github.com/mahaj/dupahar-messaging/pkg/store/memory"
)

type testGateway struct {
	srv    *httptest.Server
	hub    *Hub
	signer *auth.Signer
}

func newTestGateway(t *testing.T, requireAuth bool) *testGateway {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	registry := presence.NewRegistry()
	dir := directory.NewStatic()
	dir.AddUser(model.Contact{ID: 1, Name: "Asha"})

	gw := config.Default().Gateway
	gw.PresenceBroadcast = true
	signer := auth.NewSigner("test-secret")

	hub := NewHub(ctx, HubOptions{
		Registry:    registry,
		Chat:        chat.NewService(memory.New(node), registry, dir, events.Nop{}, zerolog.Nop()),
		Signer:      signer,
		Gateway:     gw,
		RequireAuth: requireAuth,
		Log:         zerolog.Nop(),
	})
	go hub.Run()

	srv := httptest.NewServer(newRouter(hub))
	t.Cleanup(srv.Close)
	return &testGateway{srv: srv, hub: hub, signer: signer}
}

func (g *testGateway) wsURL(token string) string {
	u := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (g *testGateway) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(g.wsURL(token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := model.Encode(event, data)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// expect reads frames until one with the given event arrives, skipping others.
func expect(t *testing.T, conn *websocket.Conn, event string, dst any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		var env model.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("bad frame %s: %v", frame, err)
		}
		if env.Event != event {
			continue
		}
		if dst != nil {
			if err := json.Unmarshal(env.Data, dst); err != nil {
				t.Fatalf("decode %s: %v", event, err)
			}
		}
		return
	}
}

// drain collects frames until the connection is quiet for d. The connection
// is unusable for reads afterwards.
func drain(conn *websocket.Conn, d time.Duration) []model.Envelope {
	var out []model.Envelope
	for {
		conn.SetReadDeadline(time.Now().Add(d))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return out
		}
		var env model.Envelope
		if json.Unmarshal(frame, &env) == nil {
			out = append(out, env)
		}
	}
}

func register(t *testing.T, conn *websocket.Conn, userID int64) {
	t.Helper()
	send(t, conn, model.EventRegister, model.RegisterRequest{UserID: userID})
	expect(t, conn, model.EventUserList, nil)
}

func TestOfflineRecipientCatchesUpFromHistory(t *testing.T) {
	g := newTestGateway(t, false)
	alice := g.dial(t, "")
	register(t, alice, 1)

	send(t, alice, model.EventPrivateMessage, model.PrivateMessageRequest{
		ClientCorrelationID: "c-1", From: 1, To: 2, Text: "Hello",
	})
	var status model.MessageStatusPush
	expect(t, alice, model.EventMessageStatus, &status)
	if status.CorrelationID != "c-1" || status.Status != model.StatusSent || status.MessageID == 0 {
		t.Fatalf("unexpected status %+v", status)
	}

	bob := g.dial(t, "")
	register(t, bob, 2)
	send(t, bob, model.EventGetHistory, model.GetHistoryRequest{UserAID: 1, UserBID: 2})
	var history model.ChatHistoryPush
	expect(t, bob, model.EventChatHistory, &history)
	if history.With.ID != 1 || history.With.Name != "Asha" {
		t.Fatalf("unexpected contact %+v", history.With)
	}
	if len(history.Messages) != 1 || history.Messages[0].FromMe || history.Messages[0].Text != "Hello" || history.Messages[0].Seen {
		t.Fatalf("unexpected history %+v", history.Messages)
	}

	for _, env := range drain(alice, 200*time.Millisecond) {
		if env.Event == model.EventMessageStatus {
			t.Fatalf("offline send must stop at sent, got extra status %s", env.Data)
		}
	}
}

func TestLiveDeliveryAndSeenReceipt(t *testing.T) {
	g := newTestGateway(t, false)
	alice := g.dial(t, "")
	bob := g.dial(t, "")
	register(t, alice, 1)
	register(t, bob, 2)

	send(t, alice, model.EventPrivateMessage, model.PrivateMessageRequest{
		ClientCorrelationID: "c-1", From: 1, To: 2, Text: "hi bob",
	})

	var status model.MessageStatusPush
	expect(t, alice, model.EventMessageStatus, &status)
	if status.Status != model.StatusSent {
		t.Fatalf("first status should be sent, got %s", status.Status)
	}
	expect(t, alice, model.EventMessageStatus, &status)
	if status.Status != model.StatusDelivered {
		t.Fatalf("second status should be delivered, got %s", status.Status)
	}

	var incoming model.PrivateMessagePush
	expect(t, bob, model.EventPrivateMessage, &incoming)
	if incoming.From != 1 || incoming.Text != "hi bob" || incoming.Kind != model.KindText {
		t.Fatalf("unexpected push %+v", incoming)
	}

	send(t, bob, model.EventMarkAsSeen, model.MarkAsSeenRequest{UserID: 2, FriendID: 1})
	var seen model.MessagesSeenPush
	expect(t, alice, model.EventMessagesSeen, &seen)
	if seen.By != 2 || seen.Count != 1 {
		t.Fatalf("unexpected seen push %+v", seen)
	}

	send(t, alice, model.EventGetHistory, model.GetHistoryRequest{UserAID: 1, UserBID: 2})
	var history model.ChatHistoryPush
	expect(t, alice, model.EventChatHistory, &history)
	if len(history.Messages) != 1 || !history.Messages[0].Seen || !history.Messages[0].FromMe {
		t.Fatalf("expected one seen message from me, got %+v", history.Messages)
	}
}

func TestRejectsUnregisteredAndForgedSenders(t *testing.T) {
	g := newTestGateway(t, false)
	conn := g.dial(t, "")

	send(t, conn, model.EventPrivateMessage, model.PrivateMessageRequest{ClientCorrelationID: "c-0", From: 1, To: 2, Text: "x"})
	var e model.ErrorPush
	expect(t, conn, model.EventError, &e)
	if e.Code != codeNotRegistered {
		t.Fatalf("expected %s, got %+v", codeNotRegistered, e)
	}

	register(t, conn, 1)
	send(t, conn, model.EventPrivateMessage, model.PrivateMessageRequest{ClientCorrelationID: "c-1", From: 2, To: 3, Text: "x"})
	var status model.MessageStatusPush
	expect(t, conn, model.EventMessageStatus, &status)
	if status.CorrelationID != "c-1" || status.Status != model.StatusFailed {
		t.Fatalf("expected failed status, got %+v", status)
	}
	expect(t, conn, model.EventError, &e)
	if e.Code != codeForbidden {
		t.Fatalf("expected %s, got %+v", codeForbidden, e)
	}

	send(t, conn, model.EventGetHistory, model.GetHistoryRequest{UserAID: 2, UserBID: 3})
	expect(t, conn, model.EventError, &e)
	if e.Code != codeForbidden {
		t.Fatalf("history for a foreign pair should be forbidden, got %+v", e)
	}
}

func TestInvalidFramesGetErrors(t *testing.T) {
	g := newTestGateway(t, false)
	conn := g.dial(t, "")
	register(t, conn, 1)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing","data":{}}`))
	var e model.ErrorPush
	expect(t, conn, model.EventError, &e)
	if e.Code != codeUnknownEvent {
		t.Fatalf("expected %s, got %+v", codeUnknownEvent, e)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"privateMessage","data":{"clientCorrelationId":"c-9","from":1,"to":1,"text":"me"}}`))
	var status model.MessageStatusPush
	expect(t, conn, model.EventMessageStatus, &status)
	if status.CorrelationID != "c-9" || status.Status != model.StatusFailed {
		t.Fatalf("invalid send should report failed, got %+v", status)
	}
	expect(t, conn, model.EventError, &e)
	if e.Code != codeInvalidPayload {
		t.Fatalf("expected %s, got %+v", codeInvalidPayload, e)
	}
}

func TestTokenPinsIdentity(t *testing.T) {
	g := newTestGateway(t, true)

	if _, resp, err := websocket.DefaultDialer.Dial(g.wsURL(""), nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got err=%v", err)
	}

	token, _ := g.signer.GenerateToken(5)
	conn := g.dial(t, token)
	send(t, conn, model.EventRegister, model.RegisterRequest{UserID: 6})
	var e model.ErrorPush
	expect(t, conn, model.EventError, &e)
	if e.Code != codeForbidden {
		t.Fatalf("expected %s, got %+v", codeForbidden, e)
	}
	register(t, conn, 5)
	if !g.hub.registry.IsOnline(5) {
		t.Fatal("user 5 should be online")
	}
}

func TestDisconnectRemovesPresence(t *testing.T) {
	g := newTestGateway(t, false)
	first := g.dial(t, "")
	second := g.dial(t, "")
	register(t, first, 1)
	register(t, second, 1)

	first.Close()
	time.Sleep(100 * time.Millisecond)
	if !g.hub.registry.IsOnline(1) {
		t.Fatal("user 1 still has a live connection")
	}

	second.Close()
	deadline := time.Now().Add(2 * time.Second)
	for g.hub.registry.IsOnline(1) {
		if time.Now().After(deadline) {
			t.Fatal("user 1 should go offline after the last connection closes")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	g := newTestGateway(t, false)
	resp, err := http.Get(g.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
