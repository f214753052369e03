package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
	"github.com/cypherlabdev/bet-engine-service/internal/slip"
)

// SlipService manages per-session slips and commits them as bets.
type SlipService struct {
	builder *slip.Builder
	store   SlipStore
	quotes  QuoteSource
	bets    *BetService
	logger  zerolog.Logger
}

// NewSlipService creates a new slip service
func NewSlipService(builder *slip.Builder, store SlipStore, quotes QuoteSource, bets *BetService, logger zerolog.Logger) *SlipService {
	return &SlipService{
		builder: builder,
		store:   store,
		quotes:  quotes,
		bets:    bets,
		logger:  logger.With().Str("component", "slip_service").Logger(),
	}
}

// Get returns the session's slip, empty if none exists
func (s *SlipService) Get(ctx context.Context, sessionID string) (slip.Slip, error) {
	return s.store.Get(ctx, sessionID)
}

// Toggle adds the selection at its current quote, or removes it if the slip
// already holds it. Removal never needs a quote.
func (s *SlipService) Toggle(ctx context.Context, sessionID, selectionID string) (slip.Slip, error) {
	return s.store.Update(ctx, sessionID, func(current slip.Slip) (slip.Slip, error) {
		if current.Contains(selectionID) {
			return slip.Remove(current, selectionID), nil
		}

		q, err := s.quotes.Quote(ctx, selectionID)
		if err != nil {
			return current, fmt.Errorf("quote selection %s: %w", selectionID, err)
		}
		return s.builder.Toggle(current, q.Selection())
	})
}

// Remove drops a selection from the session's slip
func (s *SlipService) Remove(ctx context.Context, sessionID, selectionID string) (slip.Slip, error) {
	return s.store.Update(ctx, sessionID, func(current slip.Slip) (slip.Slip, error) {
		return slip.Remove(current, selectionID), nil
	})
}

// Clear discards the session's slip
func (s *SlipService) Clear(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}

// Commit places the session's slip as a bet. The slip is claimed first, so
// concurrent commits of one session place at most one bet; the others see an
// empty slip. A rejected bet puts the claimed selections back.
func (s *SlipService) Commit(ctx context.Context, sessionID, accountID string, stake decimal.Decimal) (models.Bet, error) {
	var claimed slip.Slip
	_, err := s.store.Update(ctx, sessionID, func(current slip.Slip) (slip.Slip, error) {
		if current.IsEmpty() {
			return current, models.ErrEmptySlip
		}
		claimed = current
		return slip.Clear(current), nil
	})
	if errors.Is(err, models.ErrEmptySlip) {
		return s.bets.PlaceBet(ctx, accountID, slip.Slip{}, stake)
	}
	if err != nil {
		return models.Bet{}, err
	}

	bet, err := s.bets.PlaceBet(ctx, accountID, claimed, stake)
	if err != nil {
		s.restore(ctx, sessionID, claimed)
		return models.Bet{}, err
	}
	return bet, nil
}

// restore merges a claimed slip back ahead of anything added since the claim.
func (s *SlipService) restore(ctx context.Context, sessionID string, claimed slip.Slip) {
	_, err := s.store.Update(ctx, sessionID, func(current slip.Slip) (slip.Slip, error) {
		return slip.New(append(claimed.Entries(), current.Entries()...)...), nil
	})
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("session_id", sessionID).
			Int("legs", claimed.Len()).
			Msg("failed to restore slip after rejected bet")
	}
}
