package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mahaj/dupahar-messaging/pkg/auth"
	"github.com/mahaj/dupahar-messaging/pkg/chat"
	"github.com/mahaj/dupahar-messaging/pkg/config"
	"github.com/mahaj/dupahar-messaging/pkg/db"
	"github.com/mahaj/dupahar-messaging/pkg/directory"
	"github.com/mahaj/dupahar-messaging/pkg/events"
	"github.com/mahaj/dupahar-messaging/pkg/logging"
	"github.com/mahaj/dupahar-messaging/pkg/presence"
	"github.com/mahaj/dupahar-messaging/pkg/snowflake"
	"github.com/mahaj/dupahar-messaging/pkg/storage"
)

func newRouter(hub *Hub) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Log.File == "" {
		cfg.Log.File = "gateway.log"
	}
	log, closer, err := logging.New(cfg.Log, "gateway")
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to open log file")
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node, err := snowflake.NewNode(cfg.NodeIDs.Gateway)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize snowflake node")
	}

	st, err := storage.Open(ctx, cfg.Store, node, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open message store")
	}
	defer st.Close()

	var (
		mirror presence.Mirror = presence.NopMirror{}
		dir    directory.Directory
	)
	if cfg.Directory.BaseURL != "" {
		dir = directory.NewHTTPClient(cfg.Directory.BaseURL)
	} else {
		log.Warn().Msg("no directory URL configured; using empty static directory")
		dir = directory.NewStatic()
	}
	if cfg.Redis.Addr != "" {
		rdb, err := db.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()

		m := presence.NewRedisMirror(rdb, cfg.NodeIDs.Gateway)
		if err := m.Reset(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to reset presence set")
		}
		mirror = m
		dir = directory.NewCached(dir, rdb, cfg.Directory.CacheTTL, log)
	}

	var pub events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	}
	defer pub.Close()

	registry := presence.NewRegistry()
	hub := NewHub(ctx, HubOptions{
		Registry:    registry,
		Mirror:      mirror,
		Chat:        chat.NewService(st, registry, dir, pub, log),
		Signer:      auth.NewSigner(cfg.Auth.Secret),
		Gateway:     cfg.Gateway,
		RequireAuth: cfg.Auth.Required,
		Log:         log,
	})
	go hub.Run()

	srv := &http.Server{
		Addr:              cfg.Gateway.Addr,
		Handler:           newRouter(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Gateway.Addr).Str("store", cfg.Store.Driver).Msg("gateway service starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("gateway server failed")
	}
}
