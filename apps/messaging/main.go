package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/mahaj/dupahar-messaging/pkg/config"
	"github.com/mahaj/dupahar-messaging/pkg/logging"
	"github.com/mahaj/dupahar-messaging/pkg/unread"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	log, closer, err := logging.New(cfg.Log, "messaging")
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to open log file")
	}
	defer closer.Close()

	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal().Msg("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counters, countersCloser, err := unread.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open unread counters")
	}
	defer countersCloser.Close()

	consumer := NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, counters, log)
	defer consumer.Close()

	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Str("counters", cfg.Store.Counters).Msg("starting Kafka consumer")
	consumer.Consume(ctx)
	log.Info().Msg("consumer stopped")
}
