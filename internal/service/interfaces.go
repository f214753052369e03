package service

//go:generate mockgen -destination=../mocks/mock_quote_source.go -package=mocks github.com/cypherlabdev/bet-engine-service/internal/service QuoteSource
//go:generate mockgen -destination=../mocks/mock_event_publisher.go -package=mocks github.com/cypherlabdev/bet-engine-service/internal/service EventPublisher

import (
	"context"

	"github.com/cypherlabdev/bet-engine-service/internal/ledger"
	"github.com/cypherlabdev/bet-engine-service/internal/models"
	"github.com/cypherlabdev/bet-engine-service/internal/slip"
)

// QuoteSource returns the last known quote for a selection, or
// models.ErrNotQuotable when the selection is suspended or unknown.
type QuoteSource interface {
	Quote(ctx context.Context, selectionID string) (models.MarketQuote, error)
}

// EventPublisher delivers bet lifecycle events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event models.BetEvent) error
}

// BetStore persists bets. Implementations copy values in and out.
type BetStore interface {
	Create(ctx context.Context, bet models.Bet) error
	Get(ctx context.Context, betID string) (models.Bet, error)
	Update(ctx context.Context, bet models.Bet) error
	ListByAccount(ctx context.Context, accountID string) ([]models.Bet, error)
	ListPending(ctx context.Context) ([]models.Bet, error)
}

// Ledger is the transaction boundary for all balance mutations of an account.
// View sees a committed transaction's OnCommit effects together with its
// balance change, never one without the other.
type Ledger interface {
	Update(ctx context.Context, accountID string, fn func(tx *ledger.Tx) error) error
	View(ctx context.Context, accountID string, fn func(acct models.WalletAccount) error) error
}

// SlipStore keeps one slip per session.
type SlipStore interface {
	Get(ctx context.Context, sessionID string) (slip.Slip, error)
	Update(ctx context.Context, sessionID string, fn func(slip.Slip) (slip.Slip, error)) (slip.Slip, error)
	Delete(ctx context.Context, sessionID string) error
}

// Recorder receives business metrics.
type Recorder interface {
	BetPlaced()
	CashedOut(value float64)
	Settled(outcome string)
	Rejected(reason string)
}

type nopRecorder struct{}

func (nopRecorder) BetPlaced()        {}
func (nopRecorder) CashedOut(float64) {}
func (nopRecorder) Settled(string)    {}
func (nopRecorder) Rejected(string)   {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.BetEvent) error { return nil }
