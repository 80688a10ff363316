package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/mahaj/dupahar-messaging/pkg/events"
	"github.com/mahaj/dupahar-messaging/pkg/unread"
)

// Consumer folds domain events into unread counters.
type Consumer struct {
	reader   *kafka.Reader
	counters unread.Counters
	log      zerolog.Logger
}

func NewConsumer(brokers []string, topic string, groupID string, counters unread.Counters, log zerolog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})

	return &Consumer{reader: r, counters: counters, log: log.With().Str("component", "consumer").Logger()}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			c.log.Error().Err(err).Msg("error reading message, retrying in 1s")
			time.Sleep(1 * time.Second)
			continue
		}

		ev, err := events.Decode(m.Value)
		if err != nil {
			c.log.Warn().Err(err).Int64("offset", m.Offset).Msg("skipping undecodable event")
		} else {
			// Committing a later offset would skip this one, so retry in place.
			for {
				err := c.apply(ctx, ev)
				if err == nil {
					break
				}
				c.log.Error().Err(err).Str("type", string(ev.Type)).Int64("conversation_id", ev.ConversationID).Msg("failed to apply event, retrying in 1s")
				select {
				case <-ctx.Done():
					return
				case <-time.After(1 * time.Second):
				}
			}
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Warn().Err(err).Int64("offset", m.Offset).Msg("failed to commit offset")
		}
	}
}

func (c *Consumer) apply(ctx context.Context, ev events.Event) error {
	switch ev.Type {
	case events.MessageCreated:
		// The recipient now has one more unread message from the sender.
		return c.counters.Increment(ctx, ev.To, ev.From, 1)
	case events.MessagesSeen:
		return c.counters.Reset(ctx, ev.From, ev.To)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
