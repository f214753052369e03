package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes bet lifecycle events keyed by bet id, so all
// events of one bet land on one partition in order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger zerolog.Logger
}

// KafkaPublisherConfig holds Kafka producer configuration
type KafkaPublisherConfig struct {
	Brokers      []string
	Topic        string // e.g., "bet_events"
	WriteTimeout time.Duration
}

// NewKafkaPublisher creates a new bet event publisher
func NewKafkaPublisher(config KafkaPublisherConfig, logger zerolog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           config.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(writer, config.Topic, logger)
}

func newKafkaPublisher(writer messageWriter, topic string, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger.With().Str("component", "kafka_publisher").Logger(),
	}
}

// Publish writes one event
func (p *KafkaPublisher) Publish(ctx context.Context, event models.BetEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.BetID),
		Value: data,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to %s: %w", p.topic, err)
	}

	p.logger.Debug().
		Str("bet_id", event.BetID).
		Str("type", string(event.Type)).
		Msg("published bet event")

	return nil
}

// Close flushes and closes the Kafka writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
