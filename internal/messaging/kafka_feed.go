package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/cypherlabdev/bet-engine-service/internal/feed"
	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

// messageReader is the subset of *kafka.Reader the feed uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
	Close() error
}

// KafkaFeed is a feed.Feed over a topic of supplier market updates. Each
// message is normalized into price updates; its offset is committed once all
// of them have been handed out, so a crash replays rather than loses prices.
type KafkaFeed struct {
	reader  messageReader
	pending []models.PriceUpdate
	current *kafka.Message
	logger  zerolog.Logger
}

// KafkaFeedConfig holds Kafka consumer configuration
type KafkaFeedConfig struct {
	Brokers []string // e.g., ["localhost:9092"]
	Topic   string   // e.g., "odds_updates"
	GroupID string   // e.g., "bet-engine"
}

// NewKafkaFeed creates a new Kafka odds feed
func NewKafkaFeed(config KafkaFeedConfig, logger zerolog.Logger) *KafkaFeed {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.GroupID,
		MinBytes:       1e3,  // 1KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})
	return newKafkaFeed(reader, logger)
}

func newKafkaFeed(reader messageReader, logger zerolog.Logger) *KafkaFeed {
	l := logger.With().Str("component", "kafka_feed").Logger()
	l.Info().
		Str("topic", reader.Config().Topic).
		Str("group_id", reader.Config().GroupID).
		Msg("created Kafka odds feed")

	return &KafkaFeed{reader: reader, logger: l}
}

// Next returns the next price update, fetching from Kafka when the buffer
// is empty. Malformed messages are logged, committed and skipped.
// Next must not be called concurrently.
func (f *KafkaFeed) Next(ctx context.Context) (models.PriceUpdate, error) {
	for {
		if len(f.pending) > 0 {
			u := f.pending[0]
			f.pending = f.pending[1:]
			return u, nil
		}

		if f.current != nil {
			if err := f.reader.CommitMessages(ctx, *f.current); err != nil {
				f.logger.Error().Err(err).Int64("offset", f.current.Offset).Msg("failed to commit message")
			}
			f.current = nil
		}

		msg, err := f.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return models.PriceUpdate{}, ctx.Err()
			}
			return models.PriceUpdate{}, fmt.Errorf("failed to fetch message: %w", err)
		}

		updates, err := decodeMarketUpdate(msg.Value)
		if err != nil {
			f.logger.Error().
				Err(err).
				Int64("offset", msg.Offset).
				Str("key", string(msg.Key)).
				Msg("skipping malformed market update")
		}

		f.pending = updates
		f.current = &msg
	}
}

func decodeMarketUpdate(data []byte) ([]models.PriceUpdate, error) {
	var mu models.MarketUpdate
	if err := json.Unmarshal(data, &mu); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return feed.Normalize(mu), nil
}

// Close closes the Kafka reader
func (f *KafkaFeed) Close() error {
	return f.reader.Close()
}
