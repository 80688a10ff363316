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
	"github.com/mahaj/dupahar-messaging/pkg/unread"
)

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// onlineFunc returns the users currently online anywhere in the cluster.
type onlineFunc func(ctx context.Context) (map[int64]bool, error)

func noneOnline(context.Context) (map[int64]bool, error) {
	return map[int64]bool{}, nil
}

type API struct {
	chat     *chat.Service
	signer   *auth.Signer
	counters unread.Counters
	online   onlineFunc
	log      zerolog.Logger
}

func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(CORSMiddleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/login", a.LoginHandler).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/presence", a.PresenceHandler).Methods(http.MethodGet, http.MethodOptions)

	protected := r.NewRoute().Subrouter()
	protected.Use(a.signer.Middleware)
	protected.HandleFunc("/history", a.HistoryHandler).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/conversations", a.ConversationsHandler).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/conversations/unread", a.UnreadHandler).Methods(http.MethodGet, http.MethodOptions)
	protected.HandleFunc("/conversations/read", a.ReadHandler).Methods(http.MethodPost, http.MethodOptions)
	return r
}

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	log, closer, err := logging.New(cfg.Log, "api")
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to open log file")
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node, err := snowflake.NewNode(cfg.NodeIDs.API)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize snowflake node")
	}
	st, err := storage.Open(ctx, cfg.Store, node, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open message store")
	}
	defer st.Close()

	counters, countersCloser, err := unread.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open unread counters")
	}
	defer countersCloser.Close()

	var dir directory.Directory = directory.NewStatic()
	if cfg.Directory.BaseURL != "" {
		dir = directory.NewHTTPClient(cfg.Directory.BaseURL)
	}
	online := onlineFunc(noneOnline)
	if cfg.Redis.Addr != "" {
		rdb, err := db.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
		dir = directory.NewCached(dir, rdb, cfg.Directory.CacheTTL, log)
		online = func(ctx context.Context) (map[int64]bool, error) {
			return presence.OnlineUsers(ctx, rdb)
		}
	}

	// Live connections belong to the gateway; this registry stays empty and
	// online flags come from the Redis mirror instead.
	svc := chat.NewService(st, presence.NewRegistry(), dir, events.Nop{}, log)
	api := &API{
		chat:     svc,
		signer:   auth.NewSigner(cfg.Auth.Secret),
		counters: counters,
		online:   online,
		log:      log.With().Str("component", "api").Logger(),
	}

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.API.Addr).Msg("API service starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("API server failed")
	}
}
