package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

// QuoteBook holds the last-known quote of every selection. Reads are served
// under a read lock, so a reader sees either the quote before a change or
// after it, never a mix.
type QuoteBook struct {
	mu        sync.RWMutex
	quotes    map[string]models.MarketQuote
	suspended map[string]time.Time
	markets   map[string]map[string]struct{}
	halted    map[string]bool
}

// NewQuoteBook creates an empty quote book.
func NewQuoteBook() *QuoteBook {
	return &QuoteBook{
		quotes:    make(map[string]models.MarketQuote),
		suspended: make(map[string]time.Time),
		markets:   make(map[string]map[string]struct{}),
		halted:    make(map[string]bool),
	}
}

// Apply records an update. Updates older than the selection's current state
// and updates for halted markets are ignored; it reports whether u was applied.
func (b *QuoteBook) Apply(u models.PriceUpdate) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.halted[u.MarketID] {
		return false
	}
	if q, ok := b.quotes[u.SelectionID]; ok && u.Timestamp.Before(q.AsOf) {
		return false
	}
	if at, ok := b.suspended[u.SelectionID]; ok && u.Timestamp.Before(at) {
		return false
	}

	if b.markets[u.MarketID] == nil {
		b.markets[u.MarketID] = make(map[string]struct{})
	}
	b.markets[u.MarketID][u.SelectionID] = struct{}{}

	if u.Suspended {
		delete(b.quotes, u.SelectionID)
		b.suspended[u.SelectionID] = u.Timestamp
		return true
	}
	delete(b.suspended, u.SelectionID)
	b.quotes[u.SelectionID] = u.Quote()
	return true
}

// Quote returns the live quote for a selection or ErrNotQuotable.
func (b *QuoteBook) Quote(_ context.Context, selectionID string) (models.MarketQuote, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	q, ok := b.quotes[selectionID]
	if !ok || b.halted[q.MarketID] {
		return models.MarketQuote{}, fmt.Errorf("%w: %s", models.ErrNotQuotable, selectionID)
	}
	return q, nil
}

// MarketQuotes returns the live quotes of a market sorted by selection id.
func (b *QuoteBook) MarketQuotes(marketID string) []models.MarketQuote {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.halted[marketID] {
		return nil
	}
	out := make([]models.MarketQuote, 0, len(b.markets[marketID]))
	for id := range b.markets[marketID] {
		if q, ok := b.quotes[id]; ok {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SelectionID < out[j].SelectionID })
	return out
}

// HaltMarket makes every selection of a market unquotable and ignores
// further updates for it until ResumeMarket. It returns the affected
// selection ids.
func (b *QuoteBook) HaltMarket(marketID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.halted[marketID] = true
	ids := make([]string, 0, len(b.markets[marketID]))
	for id := range b.markets[marketID] {
		delete(b.quotes, id)
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResumeMarket accepts updates for a halted market again.
func (b *QuoteBook) ResumeMarket(marketID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.halted, marketID)
}

// Halted reports whether a market is halted.
func (b *QuoteBook) Halted(marketID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.halted[marketID]
}
