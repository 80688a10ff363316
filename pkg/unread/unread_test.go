package unread

import (
	"context"
	"testing"
)

func TestMemoryCounters(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	c.Increment(ctx, 2, 1, 1)
	c.Increment(ctx, 2, 1, 1)
	c.Increment(ctx, 2, 3, 1)

	all, _ := c.All(ctx, 2)
	if all[1] != 2 || all[3] != 1 || len(all) != 2 {
		t.Fatalf("unexpected counters %v", all)
	}

	c.Reset(ctx, 2, 1)
	all, _ = c.All(ctx, 2)
	if _, ok := all[1]; ok || all[3] != 1 {
		t.Fatalf("reset should drop only peer 1, got %v", all)
	}

	if all, _ := c.All(ctx, 99); len(all) != 0 {
		t.Fatalf("unknown user should have no counters, got %v", all)
	}
}
