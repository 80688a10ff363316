// Package events carries domain events from the gateway to background
// workers over Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Type string

const (
	MessageCreated Type = "message.created"
	MessagesSeen   Type = "messages.seen"
)

// Event is one domain fact. For MessageCreated, From sent a message to To.
// For MessagesSeen, From read Count messages sent by To.
type Event struct {
	Type           Type      `json:"type"`
	ConversationID int64     `json:"conversation_id"`
	From           int64     `json:"from"`
	To             int64     `json:"to"`
	MessageID      int64     `json:"message_id,omitempty"`
	Count          int       `json:"count,omitempty"`
	At             time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// KafkaPublisher writes events keyed by conversation so each conversation
// stays on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) *KafkaPublisher {
	log = log.With().Str("component", "kafka-publisher").Logger()
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			Async:                  true,
			AllowAutoTopicCreation: true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Error().Err(err).Int("count", len(messages)).Msg("failed to write events to Kafka")
				}
			},
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.ConversationID, 10)),
		Value: value,
		Time:  ev.At,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func Decode(value []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return Event{}, fmt.Errorf("events: decode: %w", err)
	}
	switch ev.Type {
	case MessageCreated, MessagesSeen:
	default:
		return Event{}, fmt.Errorf("events: unknown type %q", ev.Type)
	}
	return ev, nil
}
