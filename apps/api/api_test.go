package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mahaj/dupahar-messaging/pkg/auth"
	"github.com/mahaj/dupahar-messaging/pkg/chat"
	"github.com/mahaj/dupahar-messaging/pkg/directory"
	"github.com/mahaj/dupahar-messaging/pkg/events"
	"github.com/mahaj/dupahar-messaging/pkg/model"
	"github.com/mahaj/dupahar-messaging/pkg/presence"
	"github.com/mahaj/dupahar-messaging/pkg/snowflake"
	"github.com/mahaj/dupahar-messaging/pkg/store/memory"
	"github.com/mahaj/dupahar-messaging/pkg/unread"
)

func newTestAPI(t *testing.T) (*API, http.Handler) {
	t.Helper()
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatal(err)
	}
	dir := directory.NewStatic()
	dir.AddUser(model.Contact{ID: 2, Name: "Bo"})
	dir.Befriend(1, 2)
	dir.Befriend(1, 3)

	a := &API{
		chat:     chat.NewService(memory.New(node), presence.NewRegistry(), dir, events.Nop{}, zerolog.Nop()),
		signer:   auth.NewSigner("test-secret"),
		counters: unread.NewMemory(),
		online: func(context.Context) (map[int64]bool, error) {
			return map[int64]bool{3: true, 2: true}, nil
		},
		log: zerolog.Nop(),
	}
	return a, a.Router()
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, userID int64) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/login", "", LoginRequest{UserID: userID})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body)
	}
	var resp LoginResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	return resp.Token
}

func TestLoginRejectsMissingUser(t *testing.T) {
	_, h := newTestAPI(t)
	if rec := do(t, h, http.MethodPost, "/login", "", map[string]int{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHistoryRequiresTokenAndReturnsView(t *testing.T) {
	a, h := newTestAPI(t)
	if rec := do(t, h, http.MethodGet, "/history?with=2", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	a.chat.Send(context.Background(), chat.SendInput{CorrelationID: "c", From: 2, To: 1, Text: "Hello"})

	token := login(t, h, 1)
	rec := do(t, h, http.MethodGet, "/history?with=2", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body)
	}
	var view chat.HistoryView
	json.NewDecoder(rec.Body).Decode(&view)
	if view.With.Name != "Bo" || len(view.Messages) != 1 || view.Messages[0].FromMe {
		t.Fatalf("unexpected history %+v", view)
	}

	if rec := do(t, h, http.MethodGet, "/history?with=1", token, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("history with self should be 400, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/history?with=abc", token, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric peer should be 400, got %d", rec.Code)
	}
}

func TestConversationsOverlayPresenceAndUnread(t *testing.T) {
	a, h := newTestAPI(t)
	ctx := context.Background()
	a.chat.Send(ctx, chat.SendInput{CorrelationID: "c", From: 2, To: 1, Text: "ping"})
	a.counters.Increment(ctx, 1, 2, 1)

	rec := do(t, h, http.MethodGet, "/conversations", login(t, h, 1), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("conversations: %d %s", rec.Code, rec.Body)
	}
	var convs []Conversation
	json.NewDecoder(rec.Body).Decode(&convs)
	if len(convs) != 1 {
		t.Fatalf("friend 3 has no messages and must be omitted, got %d conversations", len(convs))
	}
	c := convs[0]
	if c.Friend.ID != 2 || !c.Friend.Online || c.UnreadCount != 1 || c.LastMessage.Text != "ping" {
		t.Fatalf("unexpected conversation %+v", c)
	}
}

func TestUnreadAndReadReset(t *testing.T) {
	a, h := newTestAPI(t)
	ctx := context.Background()
	a.counters.Increment(ctx, 1, 2, 3)
	token := login(t, h, 1)

	rec := do(t, h, http.MethodGet, "/conversations/unread", token, nil)
	var counts map[string]int64
	json.NewDecoder(rec.Body).Decode(&counts)
	if counts["2"] != 3 {
		t.Fatalf("unexpected counts %v", counts)
	}

	if rec := do(t, h, http.MethodPost, "/conversations/read", token, ReadRequest{OtherUserID: 2}); rec.Code != http.StatusOK {
		t.Fatalf("read: %d", rec.Code)
	}
	if all, _ := a.counters.All(ctx, 1); len(all) != 0 {
		t.Fatalf("counter should be reset, got %v", all)
	}
	if rec := do(t, h, http.MethodPost, "/conversations/read", token, ReadRequest{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing peer should be 400, got %d", rec.Code)
	}
}

func TestPresenceAndPreflight(t *testing.T) {
	_, h := newTestAPI(t)

	rec := do(t, h, http.MethodGet, "/presence", "", nil)
	var users []int64
	json.NewDecoder(rec.Body).Decode(&users)
	if len(users) != 2 || users[0] != 2 || users[1] != 3 {
		t.Fatalf("unexpected presence %v", users)
	}

	rec = do(t, h, http.MethodOptions, "/conversations", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight should pass without a token, got %d", rec.Code)
	}
}
