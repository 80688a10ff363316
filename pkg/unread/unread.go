// Package unread keeps per-peer unread message counters for the inbox.
package unread

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/dupahar-messaging/pkg/db"
)

// Counters tracks, for each user, how many messages each peer sent that the
// user has not read yet.
type Counters interface {
	Increment(ctx context.Context, userID, otherID int64, n int64) error
	Reset(ctx context.Context, userID, otherID int64) error
	All(ctx context.Context, userID int64) (map[int64]int64, error)
}

// Redis stores one hash per user: unread:<user> field <other>.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func redisKey(userID int64) string {
	return fmt.Sprintf("unread:%d", userID)
}

func (r *Redis) Increment(ctx context.Context, userID, otherID int64, n int64) error {
	return r.rdb.HIncrBy(ctx, redisKey(userID), strconv.FormatInt(otherID, 10), n).Err()
}

func (r *Redis) Reset(ctx context.Context, userID, otherID int64) error {
	return r.rdb.HDel(ctx, redisKey(userID), strconv.FormatInt(otherID, 10)).Err()
}

func (r *Redis) All(ctx context.Context, userID int64) (map[int64]int64, error) {
	fields, err := r.rdb.HGetAll(ctx, redisKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int64, len(fields))
	for k, v := range fields {
		other, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			out[other] = n
		}
	}
	return out, nil
}

// Scylla uses the conversation_counters counter table.
type Scylla struct {
	session *db.Session
}

func NewScylla(session *db.Session) *Scylla {
	return &Scylla{session: session}
}

func (s *Scylla) Increment(ctx context.Context, userID, otherID int64, n int64) error {
	return s.session.Query(
		`UPDATE conversation_counters SET unread_count = unread_count + ? WHERE user_id = ? AND other_user_id = ?`,
		n, userID, otherID,
	).WithContext(ctx).Exec()
}

// Reset deletes the row; deletion is the only way to zero a counter column.
func (s *Scylla) Reset(ctx context.Context, userID, otherID int64) error {
	return s.session.Query(
		`DELETE FROM conversation_counters WHERE user_id = ? AND other_user_id = ?`,
		userID, otherID,
	).WithContext(ctx).Exec()
}

func (s *Scylla) All(ctx context.Context, userID int64) (map[int64]int64, error) {
	iter := s.session.Query(
		`SELECT other_user_id, unread_count FROM conversation_counters WHERE user_id = ?`, userID,
	).WithContext(ctx).Iter()

	out := make(map[int64]int64)
	var other, n int64
	for iter.Scan(&other, &n) {
		if n > 0 {
			out[other] = n
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

type Memory struct {
	mu     sync.Mutex
	counts map[int64]map[int64]int64
}

func NewMemory() *Memory {
	return &Memory{counts: make(map[int64]map[int64]int64)}
}

func (m *Memory) Increment(_ context.Context, userID, otherID int64, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts[userID] == nil {
		m.counts[userID] = make(map[int64]int64)
	}
	m.counts[userID][otherID] += n
	return nil
}

func (m *Memory) Reset(_ context.Context, userID, otherID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counts[userID], otherID)
	return nil
}

func (m *Memory) All(_ context.Context, userID int64) (map[int64]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]int64, len(m.counts[userID]))
	for k, v := range m.counts[userID] {
		if v > 0 {
			out[k] = v
		}
	}
	return out, nil
}
