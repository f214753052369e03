package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

// QuoteCache mirrors live quotes into Redis so that other processes can read
// them. It is a write-behind copy of the in-process quote book; nothing in the
// betting path reads from it.
type QuoteCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// QuoteCacheConfig holds Redis quote cache configuration
type QuoteCacheConfig struct {
	Addr     string // e.g., "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration // e.g., 5 * time.Minute
}

// NewQuoteCache creates a new Redis quote cache
func NewQuoteCache(config QuoteCacheConfig, logger zerolog.Logger) *QuoteCache {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &QuoteCache{
		client: client,
		ttl:    config.TTL,
		logger: logger.With().Str("component", "quote_cache").Logger(),
	}
}

// quote:{market_id}:{selection_id}
func quoteKey(marketID, selectionID string) string {
	return fmt.Sprintf("quote:%s:%s", marketID, selectionID)
}

// Set caches a quote
func (c *QuoteCache) Set(ctx context.Context, q models.MarketQuote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}

	key := quoteKey(q.MarketID, q.SelectionID)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in Redis: %w", err)
	}

	c.logger.Debug().
		Str("key", key).
		Dur("ttl", c.ttl).
		Msg("cached quote")

	return nil
}

// Get returns a cached quote or models.ErrNotQuotable
func (c *QuoteCache) Get(ctx context.Context, marketID, selectionID string) (models.MarketQuote, error) {
	data, err := c.client.Get(ctx, quoteKey(marketID, selectionID)).Bytes()
	if err == redis.Nil {
		return models.MarketQuote{}, fmt.Errorf("%w: %s", models.ErrNotQuotable, selectionID)
	} else if err != nil {
		return models.MarketQuote{}, fmt.Errorf("failed to get from Redis: %w", err)
	}

	var q models.MarketQuote
	if err := json.Unmarshal(data, &q); err != nil {
		return models.MarketQuote{}, fmt.Errorf("failed to unmarshal quote: %w", err)
	}
	return q, nil
}

// SetBatch caches multiple quotes in one pipeline
func (c *QuoteCache) SetBatch(ctx context.Context, quotes []models.MarketQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			c.logger.Error().Err(err).Str("selection_id", q.SelectionID).Msg("failed to marshal quote")
			continue
		}
		pipe.Set(ctx, quoteKey(q.MarketID, q.SelectionID), data, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute pipeline: %w", err)
	}
	return nil
}

// Apply mirrors a batch of price updates: live prices are written and
// suspended selections are removed.
func (c *QuoteCache) Apply(ctx context.Context, updates []models.PriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, u := range updates {
		key := quoteKey(u.MarketID, u.SelectionID)
		if u.Suspended {
			pipe.Del(ctx, key)
			continue
		}
		data, err := json.Marshal(u.Quote())
		if err != nil {
			c.logger.Error().Err(err).Str("selection_id", u.SelectionID).Msg("failed to marshal quote")
			continue
		}
		pipe.Set(ctx, key, data, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute pipeline: %w", err)
	}

	c.logger.Debug().
		Int("count", len(updates)).
		Msg("mirrored price updates")

	return nil
}

// GetByMarket returns every cached quote of a market sorted by selection id
func (c *QuoteCache) GetByMarket(ctx context.Context, marketID string) ([]models.MarketQuote, error) {
	pattern := fmt.Sprintf("quote:%s:*", marketID)

	var cursor uint64
	var keys []string
	for {
		var scanKeys []string
		var err error
		scanKeys, cursor, err = c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		keys = append(keys, scanKeys...)
		if cursor == 0 {
			break
		}
	}

	quotes := make([]models.MarketQuote, 0, len(keys))
	for _, key := range keys {
		data, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			// expired between scan and get
			c.logger.Warn().Err(err).Str("key", key).Msg("failed to get key")
			continue
		}

		var q models.MarketQuote
		if err := json.Unmarshal(data, &q); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("failed to unmarshal quote")
			continue
		}
		quotes = append(quotes, q)
	}

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].SelectionID < quotes[j].SelectionID })
	return quotes, nil
}

// Ping checks Redis connection
func (c *QuoteCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *QuoteCache) Close() error {
	return c.client.Close()
}
