package presence

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

// redisForTest connects to REDIS_ADDR and skips when it is unset.
func redisForTest(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestMirrorKeepsUsersOnlineAcrossGateways(t *testing.T) {
	ctx := context.Background()
	rdb := redisForTest(t)

	a := NewRedisMirror(rdb, 1001)
	b := NewRedisMirror(rdb, 1002)
	t.Cleanup(func() {
		a.Reset(ctx)
		b.Reset(ctx)
		rdb.SRem(ctx, GatewaysKey, 1001, 1002)
	})

	const user = 900000001
	if err := a.Online(ctx, user); err != nil {
		t.Fatal(err)
	}
	if err := b.Online(ctx, user); err != nil {
		t.Fatal(err)
	}

	// The user's last handle on gateway a went away; gateway b still has one.
	if err := a.Offline(ctx, user); err != nil {
		t.Fatal(err)
	}
	online, err := OnlineUsers(ctx, rdb)
	if err != nil {
		t.Fatal(err)
	}
	if !online[user] {
		t.Fatal("user connected to another gateway must stay online")
	}

	// A restarting gateway only clears its own set.
	a.Online(ctx, user+1)
	if err := b.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	online, _ = OnlineUsers(ctx, rdb)
	if online[user] || !online[user+1] {
		t.Fatalf("reset of one gateway should keep the other's users, got %v", online)
	}
}
