// Package storetest runs the Store contract against any backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mahaj/dupahar-messaging/pkg/model"
	"github.com/mahaj/dupahar-messaging/pkg/store"
)

// nextUser hands out user ids unique to this run, so suites against a shared
// database do not see each other's pairs.
var nextUser atomic.Int64

func init() {
	nextUser.Store(time.Now().UnixNano() % 1e12 * 1000)
}

func users() (int64, int64) {
	return nextUser.Add(1), nextUser.Add(1)
}

// Run checks s against the Store contract.
func Run(t *testing.T, s store.Store) {
	t.Run("CreateDirectIsUniquePerPair", func(t *testing.T) { testCreateDirect(t, s) })
	t.Run("ConcurrentCreateHasOneWinner", func(t *testing.T) { testConcurrentCreate(t, s) })
	t.Run("AppendRequiresConversation", func(t *testing.T) { testAppendUnknown(t, s) })
	t.Run("ListOrderAndMarkSeenIdempotent", func(t *testing.T) { testListAndSeen(t, s) })
	t.Run("ContentKeptAsSent", func(t *testing.T) { testContentKept(t, s) })
	t.Run("ListUnknownConversationIsEmpty", func(t *testing.T) { testListUnknown(t, s) })
}

func testCreateDirect(t *testing.T, s store.Store) {
	ctx := context.Background()
	low, high := users()

	c, err := s.CreateDirect(ctx, high, low)
	if err != nil {
		t.Fatalf("CreateDirect: %v", err)
	}
	if c.Participants != [2]int64{low, high} {
		t.Fatalf("participants not canonical: %v", c.Participants)
	}
	if _, err := s.CreateDirect(ctx, low, high); !errors.Is(err, store.ErrDuplicateConversation) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	found, err := s.FindDirect(ctx, high, low)
	if err != nil || found.ID != c.ID {
		t.Fatalf("FindDirect: %v %+v", err, found)
	}
	other, _ := users()
	if _, err := s.FindDirect(ctx, low, other); !errors.Is(err, store.ErrConversationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := users()

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []int64
		failures []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a, b
			if i%2 == 1 {
				x, y = b, a
			}
			c, err := s.CreateDirect(ctx, x, y)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, c.ID)
			case !errors.Is(err, store.ErrDuplicateConversation):
				failures = append(failures, err)
			}
		}(i)
	}
	wg.Wait()

	if len(failures) > 0 {
		t.Fatalf("unexpected errors: %v", failures)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one created conversation, got %d", len(winners))
	}
	found, err := s.FindDirect(ctx, a, b)
	if err != nil || found.ID != winners[0] {
		t.Fatalf("FindDirect should return the winner %d, got %+v %v", winners[0], found, err)
	}
}

func testAppendUnknown(t *testing.T, s store.Store) {
	_, err := s.Append(context.Background(), store.NewMessage{ConversationID: 123, SenderID: 1, Kind: model.KindText, Content: "x"})
	if !errors.Is(err, store.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func testListAndSeen(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := users()
	c, err := s.CreateDirect(ctx, a, b)
	if err != nil {
		t.Fatalf("CreateDirect: %v", err)
	}

	var appended []int64
	for _, m := range []store.NewMessage{
		{ConversationID: c.ID, SenderID: a, Kind: model.KindText, Content: "a"},
		{ConversationID: c.ID, SenderID: b, Kind: model.KindText, Content: "b"},
		{ConversationID: c.ID, SenderID: a, Kind: model.KindImage, MediaRef: "/uploads/c.png"},
	} {
		msg, err := s.Append(ctx, m)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		appended = append(appended, msg.ID)
	}

	msgs, err := s.ListByConversation(ctx, c.ID)
	if err != nil || len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d (%v)", len(msgs), err)
	}
	for i, m := range msgs {
		if m.ID != appended[i] {
			t.Fatalf("message %d: got id %d, want %d in append order", i, m.ID, appended[i])
		}
		if i > 0 && m.CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("timestamps out of order at %d", i)
		}
	}

	if n, err := s.MarkSeen(ctx, c.ID, b); err != nil || n != 2 {
		t.Fatalf("expected 2 messages marked for the recipient, got %d (%v)", n, err)
	}
	if n, err := s.MarkSeen(ctx, c.ID, b); err != nil || n != 0 {
		t.Fatalf("second MarkSeen should be a no-op, got %d (%v)", n, err)
	}

	msgs, _ = s.ListByConversation(ctx, c.ID)
	if !msgs[0].Seen || msgs[1].Seen || !msgs[2].Seen {
		t.Fatalf("unexpected seen flags: %v %v %v", msgs[0].Seen, msgs[1].Seen, msgs[2].Seen)
	}
}

func testContentKept(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, b := users()
	c, err := s.CreateDirect(ctx, a, b)
	if err != nil {
		t.Fatalf("CreateDirect: %v", err)
	}
	if _, err := s.Append(ctx, store.NewMessage{ConversationID: c.ID, SenderID: a, Kind: model.KindText, Content: "Hello "}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	msgs, _ := s.ListByConversation(ctx, c.ID)
	if len(msgs) != 1 || msgs[0].Content != "Hello " {
		t.Fatalf("content changed in storage: %+v", msgs)
	}
}

func testListUnknown(t *testing.T, s store.Store) {
	msgs, err := s.ListByConversation(context.Background(), 77)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("expected empty list, got %v %v", msgs, err)
	}
}
