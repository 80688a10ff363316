package presence

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// GatewaysKey lists the node ids of every gateway that has mirrored presence.
// Each gateway owns one set, presence:online:<node>; readers union them.
const GatewaysKey = "presence:gateways"

func onlineKey(node int64) string {
	return "presence:online:" + strconv.FormatInt(node, 10)
}

// Mirror publishes online transitions so other processes can read presence.
type Mirror interface {
	Online(ctx context.Context, userID int64) error
	Offline(ctx context.Context, userID int64) error
}

// RedisMirror keeps the users connected to one gateway in that gateway's set.
type RedisMirror struct {
	rdb  *redis.Client
	node int64
}

func NewRedisMirror(rdb *redis.Client, node int64) *RedisMirror {
	return &RedisMirror{rdb: rdb, node: node}
}

func (m *RedisMirror) Online(ctx context.Context, userID int64) error {
	_, err := m.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, onlineKey(m.node), userID)
		p.SAdd(ctx, GatewaysKey, m.node)
		return nil
	})
	return err
}

// Offline removes userID from this gateway's set only. The user stays online
// while another gateway still lists them.
func (m *RedisMirror) Offline(ctx context.Context, userID int64) error {
	return m.rdb.SRem(ctx, onlineKey(m.node), userID).Err()
}

// Reset clears this gateway's set, for a gateway starting with no connections.
func (m *RedisMirror) Reset(ctx context.Context) error {
	return m.rdb.Del(ctx, onlineKey(m.node)).Err()
}

// OnlineUsers reads the union of every gateway's set.
func OnlineUsers(ctx context.Context, rdb *redis.Client) (map[int64]bool, error) {
	nodes, err := rdb.SMembers(ctx, GatewaysKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool)
	if len(nodes) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if id, err := strconv.ParseInt(n, 10, 64); err == nil {
			keys = append(keys, onlineKey(id))
		}
	}
	members, err := rdb.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if id, err := strconv.ParseInt(m, 10, 64); err == nil {
			out[id] = true
		}
	}
	return out, nil
}

type NopMirror struct{}

func (NopMirror) Online(context.Context, int64) error  { return nil }
func (NopMirror) Offline(context.Context, int64) error { return nil }
