package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cypherlabdev/bet-engine-service/internal/slip"
)

const slipUpdateRetries = 10

// ErrSlipContention is returned when a slip kept changing under an update.
var ErrSlipContention = errors.New("slip modified concurrently")

// SlipStore keeps slips in Redis so sessions survive a restart and can be
// served by any instance. Updates use optimistic WATCH/MULTI transactions.
type SlipStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// SlipStoreConfig holds Redis slip store configuration
type SlipStoreConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // idle sessions expire after this
}

// NewSlipStore creates a new Redis slip store
func NewSlipStore(config SlipStoreConfig, logger zerolog.Logger) *SlipStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &SlipStore{
		client: client,
		ttl:    config.TTL,
		logger: logger.With().Str("component", "slip_store").Logger(),
	}
}

func slipKey(sessionID string) string {
	return "slip:" + sessionID
}

// Get returns the session's slip, empty if none exists
func (s *SlipStore) Get(ctx context.Context, sessionID string) (slip.Slip, error) {
	return load(ctx, s.client, slipKey(sessionID))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, key string) (slip.Slip, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return slip.Slip{}, nil
	} else if err != nil {
		return slip.Slip{}, fmt.Errorf("failed to get from Redis: %w", err)
	}

	var sl slip.Slip
	if err := sl.UnmarshalJSON(data); err != nil {
		return slip.Slip{}, fmt.Errorf("failed to unmarshal slip: %w", err)
	}
	return sl, nil
}

// Update replaces the session's slip with fn's result. fn may run more than
// once when another writer races the same session.
func (s *SlipStore) Update(ctx context.Context, sessionID string, fn func(slip.Slip) (slip.Slip, error)) (slip.Slip, error) {
	key := slipKey(sessionID)

	var result slip.Slip
	txf := func(tx *redis.Tx) error {
		current, err := load(ctx, tx, key)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			result = current
			return err
		}

		data, err := next.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to marshal slip: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next.IsEmpty() {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, data, s.ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for i := 0; i < slipUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug().Str("session_id", sessionID).Int("attempt", i+1).Msg("slip update conflict, retrying")
			continue
		}
		return result, err
	}
	return result, fmt.Errorf("session %s: %w", sessionID, ErrSlipContention)
}

// Delete discards the session's slip
func (s *SlipStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, slipKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete slip: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *SlipStore) Close() error {
	return s.client.Close()
}
