package unread

import (
	"context"
	"fmt"
	"io"

	"github.com/mahaj/dupahar-messaging/pkg/config"
	"github.com/mahaj/dupahar-messaging/pkg/db"
	"github.com/mahaj/dupahar-messaging/pkg/store/scylla"
)

// Open returns the counters named by cfg.Store.Counters and a closer for the
// connection it opened.
func Open(ctx context.Context, cfg config.Config) (Counters, io.Closer, error) {
	switch cfg.Store.Counters {
	case "memory":
		return NewMemory(), io.NopCloser(nil), nil
	case "redis":
		rdb, err := db.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return nil, nil, err
		}
		return NewRedis(rdb), rdb, nil
	case "scylla":
		if err := db.EnsureKeyspace(cfg.Store.ScyllaHosts, cfg.Store.Keyspace); err != nil {
			return nil, nil, err
		}
		session, err := db.NewSession(cfg.Store.ScyllaHosts, cfg.Store.Keyspace)
		if err != nil {
			return nil, nil, err
		}
		if err := scylla.Migrate(session); err != nil {
			session.Close()
			return nil, nil, err
		}
		return NewScylla(session), closerFunc(session.Close), nil
	}
	return nil, nil, fmt.Errorf("unread: unknown backend %q", cfg.Store.Counters)
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
