package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

// ErrExhausted is returned by finite feeds once every update has been read.
var ErrExhausted = errors.New("feed exhausted")

// Feed is a lazy sequence of price updates. Quotes are current state, not a
// log, so a feed cannot be replayed from a past point.
type Feed interface {
	Next(ctx context.Context) (models.PriceUpdate, error)
}

// SliceFeed replays a fixed sequence of updates, for deterministic tests.
type SliceFeed struct {
	mu      sync.Mutex
	updates []models.PriceUpdate
	pos     int
}

// NewSliceFeed creates a feed over updates.
func NewSliceFeed(updates ...models.PriceUpdate) *SliceFeed {
	return &SliceFeed{updates: updates}
}

// Next returns the next update or ErrExhausted.
func (f *SliceFeed) Next(ctx context.Context) (models.PriceUpdate, error) {
	if err := ctx.Err(); err != nil {
		return models.PriceUpdate{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos >= len(f.updates) {
		return models.PriceUpdate{}, ErrExhausted
	}
	u := f.updates[f.pos]
	f.pos++
	return u, nil
}

// ChanFeed adapts a channel of updates. A closed channel exhausts the feed.
type ChanFeed struct {
	ch <-chan models.PriceUpdate
}

// NewChanFeed wraps ch.
func NewChanFeed(ch <-chan models.PriceUpdate) *ChanFeed {
	return &ChanFeed{ch: ch}
}

// Next blocks until an update arrives, the channel closes or ctx is done.
func (f *ChanFeed) Next(ctx context.Context) (models.PriceUpdate, error) {
	select {
	case <-ctx.Done():
		return models.PriceUpdate{}, ctx.Err()
	case u, ok := <-f.ch:
		if !ok {
			return models.PriceUpdate{}, ErrExhausted
		}
		return u, nil
	}
}
