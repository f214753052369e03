package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Selection is a point-in-time snapshot of a marketable outcome.
type Selection struct {
	ID       string          `json:"id"`
	MarketID string          `json:"market_id"`
	EventID  string          `json:"event_id"`
	Name     string          `json:"name"`
	Odds     decimal.Decimal `json:"odds"`
}

// SlipEntry is a selection held in a slip, with the odds shown when it was added.
type SlipEntry struct {
	SelectionID  string          `json:"selection_id"`
	MarketID     string          `json:"market_id"`
	EventID      string          `json:"event_id"`
	Name         string          `json:"name"`
	SnapshotOdds decimal.Decimal `json:"snapshot_odds"`
}

// MarketQuote is the feed's current price for one selection.
type MarketQuote struct {
	SelectionID string          `json:"selection_id"`
	MarketID    string          `json:"market_id"`
	EventID     string          `json:"event_id"`
	Name        string          `json:"name"`
	Odds        decimal.Decimal `json:"odds"`
	AsOf        time.Time       `json:"as_of"`
}

// PriceUpdate is a normalized feed update. Suspended updates carry no odds and
// make the selection unquotable until a later live update arrives.
type PriceUpdate struct {
	SelectionID string          `json:"selection_id"`
	MarketID    string          `json:"market_id"`
	EventID     string          `json:"event_id"`
	Name        string          `json:"name"`
	Odds        decimal.Decimal `json:"odds"`
	Timestamp   time.Time       `json:"timestamp"`
	Suspended   bool            `json:"suspended"`
}

// Quote converts a live update into a market quote.
func (u PriceUpdate) Quote() MarketQuote {
	return MarketQuote{
		SelectionID: u.SelectionID,
		MarketID:    u.MarketID,
		EventID:     u.EventID,
		Name:        u.Name,
		Odds:        u.Odds,
		AsOf:        u.Timestamp,
	}
}

// Selection converts a quote into a selection snapshot.
func (q MarketQuote) Selection() Selection {
	return Selection{
		ID:       q.SelectionID,
		MarketID: q.MarketID,
		EventID:  q.EventID,
		Name:     q.Name,
		Odds:     q.Odds,
	}
}

// MarketStatus mirrors the status an upstream supplier reports for a market.
type MarketStatus string

const (
	MarketUpcoming  MarketStatus = "UPCOMING"
	MarketLive      MarketStatus = "LIVE"
	MarketSuspended MarketStatus = "SUSPENDED"
	MarketFinished  MarketStatus = "FINISHED"
)

// MarketUpdate is the raw upstream message carried on the odds topic.
type MarketUpdate struct {
	EventID    string            `json:"event_id"`
	MarketID   string            `json:"market_id"`
	Status     MarketStatus      `json:"status"`
	Selections []SelectionUpdate `json:"selections"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Source     string            `json:"source"`
	Version    int               `json:"version"`
}

// SelectionUpdate is one priced outcome inside a MarketUpdate.
type SelectionUpdate struct {
	SelectionID string          `json:"selection_id"`
	Name        string          `json:"name"`
	Odds        decimal.Decimal `json:"odds"`
}
