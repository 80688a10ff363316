// Package storage opens the message store selected by configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mahaj/dupahar-messaging/pkg/config"
	"github.com/mahaj/dupahar-messaging/pkg/db"
	"github.com/mahaj/dupahar-messaging/pkg/snowflake"
	"github.com/mahaj/dupahar-messaging/pkg/store"
	"github.com/mahaj/dupahar-messaging/pkg/store/memory"
	"github.com/mahaj/dupahar-messaging/pkg/store/postgres"
	"github.com/mahaj/dupahar-messaging/pkg/store/scylla"
)

// Open connects to the configured backend and creates its schema if needed.
func Open(ctx context.Context, cfg config.Store, ids *snowflake.Node, log zerolog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return memory.New(ids), nil

	case "scylla":
		if err := db.EnsureKeyspace(cfg.ScyllaHosts, cfg.Keyspace); err != nil {
			return nil, err
		}
		session, err := db.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
		if err != nil {
			return nil, err
		}
		if err := scylla.Migrate(session); err != nil {
			session.Close()
			return nil, err
		}
		log.Info().Strs("hosts", cfg.ScyllaHosts).Str("keyspace", cfg.Keyspace).Msg("connected to ScyllaDB")
		return scylla.New(session, ids, log), nil

	case "postgres":
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().Msg("connected to Postgres")
		return postgres.New(pool, ids), nil
	}
	return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
}

// Drop removes the messaging tables of the configured backend.
func Drop(ctx context.Context, cfg config.Store) error {
	switch cfg.Driver {
	case "memory":
		return nil
	case "scylla":
		session, err := db.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
		if err != nil {
			return err
		}
		defer session.Close()
		return scylla.Drop(session)
	case "postgres":
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		return postgres.Drop(ctx, pool)
	}
	return fmt.Errorf("storage: unknown driver %q", cfg.Driver)
}
