package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/bet-engine-service/internal/ledger"
	"github.com/cypherlabdev/bet-engine-service/internal/models"
	"github.com/cypherlabdev/bet-engine-service/internal/slip"
	"github.com/cypherlabdev/bet-engine-service/pkg/pricing"
)

// OddsPolicy decides which odds a bet is accepted at.
type OddsPolicy string

const (
	// PolicySnapshot locks the odds the bettor saw when building the slip.
	PolicySnapshot OddsPolicy = "snapshot"
	// PolicyTolerance rejects a bet whose live odds drifted beyond a tolerance.
	PolicyTolerance OddsPolicy = "tolerance"
)

// Valid reports whether p is a known policy
func (p OddsPolicy) Valid() bool {
	return p == PolicySnapshot || p == PolicyTolerance
}

// BetServiceConfig holds odds acceptance settings
type BetServiceConfig struct {
	OddsPolicy    OddsPolicy
	OddsTolerance decimal.Decimal
}

// Option customises a BetService
type Option func(*BetService)

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *BetService) { s.recorder = r }
}

// WithPublisher sets the lifecycle event publisher
func WithPublisher(p EventPublisher) Option {
	return func(s *BetService) { s.publisher = p }
}

// WithClock overrides the clock used for event timestamps
func WithClock(now func() time.Time) Option {
	return func(s *BetService) { s.now = now }
}

// WithIDGenerator overrides bet id generation
func WithIDGenerator(fn func() string) Option {
	return func(s *BetService) { s.newID = fn }
}

// AccountSnapshot is a consistent view of a balance and the bets behind it.
type AccountSnapshot struct {
	AccountID   string           `json:"account_id"`
	Balance     decimal.Decimal  `json:"balance"`
	KYCStatus   models.KYCStatus `json:"kyc_status"`
	PendingBets []models.Bet     `json:"pending_bets"`
	OpenStake   decimal.Decimal  `json:"open_stake"`
}

// BetService owns the bet lifecycle: placement, cash-out and settlement.
// Every state transition is written to the store from an OnCommit hook of
// the owning account's ledger transaction, so the transition and its balance
// effect become visible together.
type BetService struct {
	config    BetServiceConfig
	engine    *pricing.Engine
	ledger    Ledger
	store     BetStore
	quotes    QuoteSource
	publisher EventPublisher
	recorder  Recorder
	now       func() time.Time
	newID     func() string
	logger    zerolog.Logger
}

// NewBetService creates a new bet service
func NewBetService(
	config BetServiceConfig,
	engine *pricing.Engine,
	ledger Ledger,
	store BetStore,
	quotes QuoteSource,
	logger zerolog.Logger,
	opts ...Option,
) *BetService {
	if !config.OddsPolicy.Valid() {
		config.OddsPolicy = PolicySnapshot
	}

	s := &BetService{
		config:    config,
		engine:    engine,
		ledger:    ledger,
		store:     store,
		quotes:    quotes,
		publisher: nopPublisher{},
		recorder:  nopRecorder{},
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    logger.With().Str("component", "bet_service").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBet prices the slip, debits the stake and records a pending bet as
// one unit. The slip itself is left to the caller.
func (s *BetService) PlaceBet(ctx context.Context, accountID string, sl slip.Slip, stake decimal.Decimal) (models.Bet, error) {
	bet, err := s.placeBet(ctx, accountID, sl, stake)
	if err != nil {
		s.reject(err)
		s.logger.Info().
			Err(err).
			Str("account_id", accountID).
			Str("stake", stake.String()).
			Int("legs", sl.Len()).
			Msg("bet rejected")
		return models.Bet{}, err
	}

	s.recorder.BetPlaced()
	s.logger.Info().
		Str("bet_id", bet.ID).
		Str("account_id", accountID).
		Str("stake", bet.Stake.String()).
		Str("combined_odds", bet.CombinedOdds.String()).
		Str("potential_payout", bet.PotentialPayout.String()).
		Msg("bet placed")

	s.publish(ctx, models.EventBetPlaced, bet, &bet.Stake)
	return bet, nil
}

func (s *BetService) placeBet(ctx context.Context, accountID string, sl slip.Slip, stake decimal.Decimal) (models.Bet, error) {
	precision := s.engine.Params().Precision
	if !stake.IsPositive() || !stake.Equal(stake.Round(precision)) {
		return models.Bet{}, models.ErrInvalidStake
	}
	if sl.IsEmpty() {
		return models.Bet{}, models.ErrEmptySlip
	}

	entries := sl.Entries()
	if s.config.OddsPolicy == PolicyTolerance {
		if err := s.checkDrift(ctx, entries); err != nil {
			return models.Bet{}, err
		}
	}

	combined, err := pricing.EntryOdds(entries)
	if err != nil {
		return models.Bet{}, err
	}

	legs := make([]models.BetLeg, len(entries))
	for i, e := range entries {
		legs[i] = models.BetLeg{
			SelectionID: e.SelectionID,
			MarketID:    e.MarketID,
			EventID:     e.EventID,
			Name:        e.Name,
			LockedOdds:  e.SnapshotOdds,
		}
	}

	bet := models.Bet{
		ID:              s.newID(),
		AccountID:       accountID,
		Legs:            legs,
		Stake:           stake,
		CombinedOdds:    combined,
		PotentialPayout: s.engine.PotentialPayout(stake, combined),
		Status:          models.BetPending,
	}

	err = s.ledger.Update(ctx, accountID, func(tx *ledger.Tx) error {
		if err := tx.Debit(stake, models.CauseBetPlaced, bet.ID); err != nil {
			return err
		}
		bet.PlacedAt = tx.Now()
		tx.OnCommit(func() error {
			if err := s.store.Create(ctx, bet); err != nil {
				return fmt.Errorf("store bet: %w", err)
			}
			return nil
		})
		return nil
	})
	if err != nil {
		return models.Bet{}, err
	}
	return bet, nil
}

// checkDrift enforces the tolerance policy against live quotes.
func (s *BetService) checkDrift(ctx context.Context, entries []models.SlipEntry) error {
	for _, e := range entries {
		q, err := s.quotes.Quote(ctx, e.SelectionID)
		if err != nil {
			return fmt.Errorf("%w: selection %s: %v", models.ErrOddsChanged, e.SelectionID, err)
		}
		if !pricing.WithinTolerance(e.SnapshotOdds, q.Odds, s.config.OddsTolerance) {
			return fmt.Errorf("%w: selection %s quoted %s, live %s",
				models.ErrOddsChanged, e.SelectionID, e.SnapshotOdds.String(), q.Odds.String())
		}
	}
	return nil
}

// QuoteCashOut returns the current cash-out value of a pending bet without
// changing anything.
func (s *BetService) QuoteCashOut(ctx context.Context, betID string) (decimal.Decimal, error) {
	bet, err := s.GetBet(ctx, betID)
	if err != nil {
		return decimal.Zero, err
	}
	if bet.Status != models.BetPending {
		return decimal.Zero, fmt.Errorf("bet %s is %s: %w", betID, bet.Status, models.ErrInvalidTransition)
	}
	return s.engine.BetCashOutValue(bet, s.quoteFunc(ctx))
}

// CashOut settles a pending bet early at its current cash-out value.
func (s *BetService) CashOut(ctx context.Context, betID string) (models.Bet, error) {
	bet, err := s.store.Get(ctx, betID)
	if err != nil {
		return models.Bet{}, err
	}

	var out models.Bet
	err = s.ledger.Update(ctx, bet.AccountID, func(tx *ledger.Tx) error {
		current, err := s.store.Get(ctx, betID)
		if err != nil {
			return err
		}
		if current.Status != models.BetPending {
			return fmt.Errorf("bet %s is %s: %w", betID, current.Status, models.ErrInvalidTransition)
		}

		value, err := s.engine.BetCashOutValue(current, s.quoteFunc(ctx))
		if err != nil {
			return err
		}

		now := tx.Now()
		current.Status = models.BetCashedOut
		current.SettledAt = &now
		current.CashOutValue = &value

		// a zero floor can price a hopeless bet at nothing
		if value.IsPositive() {
			if err := tx.Credit(value, models.CauseCashOut, betID); err != nil {
				return err
			}
		}
		tx.OnCommit(func() error {
			if err := s.store.Update(ctx, current); err != nil {
				return fmt.Errorf("store bet: %w", err)
			}
			return nil
		})
		out = current
		return nil
	})
	if err != nil {
		s.reject(err)
		s.logger.Info().Err(err).Str("bet_id", betID).Msg("cash out rejected")
		return models.Bet{}, err
	}

	value, _ := out.CashOutValue.Float64()
	s.recorder.CashedOut(value)
	s.logger.Info().
		Str("bet_id", out.ID).
		Str("account_id", out.AccountID).
		Str("value", out.CashOutValue.String()).
		Msg("bet cashed out")

	s.publish(ctx, models.EventBetCashedOut, out, out.CashOutValue)
	return out, nil
}

// Settle applies a final outcome from the settlement authority.
func (s *BetService) Settle(ctx context.Context, betID string, outcome models.Outcome) (models.Bet, error) {
	if !outcome.Valid() {
		return models.Bet{}, fmt.Errorf("outcome %q: %w", outcome, models.ErrInvalidOutcome)
	}

	bet, err := s.store.Get(ctx, betID)
	if err != nil {
		return models.Bet{}, err
	}

	var out models.Bet
	var paid *decimal.Decimal
	err = s.ledger.Update(ctx, bet.AccountID, func(tx *ledger.Tx) error {
		current, err := s.store.Get(ctx, betID)
		if err != nil {
			return err
		}
		if current.Status != models.BetPending {
			return fmt.Errorf("bet %s is %s: %w", betID, current.Status, models.ErrInvalidTransition)
		}

		now := tx.Now()
		current.SettledAt = &now
		switch outcome {
		case models.OutcomeWon:
			current.Status = models.BetWon
			if err := tx.Credit(current.PotentialPayout, models.CauseBetWon, betID); err != nil {
				return err
			}
			payout := current.PotentialPayout
			paid = &payout
		case models.OutcomeLost:
			current.Status = models.BetLost
		}

		tx.OnCommit(func() error {
			if err := s.store.Update(ctx, current); err != nil {
				return fmt.Errorf("store bet: %w", err)
			}
			return nil
		})
		out = current
		return nil
	})
	if err != nil {
		s.reject(err)
		s.logger.Info().Err(err).Str("bet_id", betID).Str("outcome", string(outcome)).Msg("settlement rejected")
		return models.Bet{}, err
	}

	s.recorder.Settled(string(outcome))
	s.logger.Info().
		Str("bet_id", out.ID).
		Str("account_id", out.AccountID).
		Str("status", string(out.Status)).
		Msg("bet settled")

	s.publish(ctx, models.EventBetSettled, out, paid)
	return out, nil
}

// GetBet returns a bet by id. The bet is read under its account's ledger
// view, so a bet whose transaction is still committing is returned only
// once its balance effect is visible too.
func (s *BetService) GetBet(ctx context.Context, betID string) (models.Bet, error) {
	bet, err := s.store.Get(ctx, betID)
	if err != nil {
		return models.Bet{}, err
	}

	err = s.ledger.View(ctx, bet.AccountID, func(models.WalletAccount) error {
		bet, err = s.store.Get(ctx, betID)
		return err
	})
	if err != nil {
		return models.Bet{}, err
	}
	return bet, nil
}

// ListBets returns every bet of an account in placement order
func (s *BetService) ListBets(ctx context.Context, accountID string) ([]models.Bet, error) {
	var bets []models.Bet
	err := s.ledger.View(ctx, accountID, func(models.WalletAccount) error {
		var err error
		bets, err = s.store.ListByAccount(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bets, nil
}

// OpenCashOutOffers quotes every pending bet of an account. Bets that cannot
// be priced right now are returned flagged unavailable.
func (s *BetService) OpenCashOutOffers(ctx context.Context, accountID string) ([]models.CashOutOffer, error) {
	bets, err := s.ListBets(ctx, accountID)
	if err != nil {
		return nil, err
	}

	quote := s.quoteFunc(ctx)
	offers := make([]models.CashOutOffer, 0, len(bets))
	for _, bet := range bets {
		if bet.Status != models.BetPending {
			continue
		}
		value, err := s.engine.BetCashOutValue(bet, quote)
		if err != nil {
			offers = append(offers, models.CashOutOffer{BetID: bet.ID, Reason: models.Code(err)})
			continue
		}
		offers = append(offers, models.CashOutOffer{BetID: bet.ID, Value: &value, Available: true})
	}
	return offers, nil
}

// MarketExposure sums stake and liability of pending bets with a leg in the
// market. Liability is what the book pays out net of stake if every such bet
// wins. Each account's bets are read under its ledger view.
func (s *BetService) MarketExposure(ctx context.Context, marketID string) (models.MarketExposure, error) {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return models.MarketExposure{}, err
	}

	seen := make(map[string]bool)
	var accounts []string
	for _, bet := range pending {
		if !seen[bet.AccountID] {
			seen[bet.AccountID] = true
			accounts = append(accounts, bet.AccountID)
		}
	}
	sort.Strings(accounts)

	exp := models.MarketExposure{MarketID: marketID, TotalStake: decimal.Zero, Liability: decimal.Zero}
	for _, accountID := range accounts {
		bets, err := s.ListBets(ctx, accountID)
		if err != nil {
			return models.MarketExposure{}, err
		}
		for _, bet := range bets {
			if bet.Status != models.BetPending || !bet.TouchesMarket(marketID) {
				continue
			}
			exp.OpenBets++
			exp.TotalStake = exp.TotalStake.Add(bet.Stake)
			exp.Liability = exp.Liability.Add(bet.PotentialPayout.Sub(bet.Stake))
		}
	}
	return exp, nil
}

// Snapshot reads an account's balance and pending bets under its ledger
// view, so no placement or settlement can land between the two reads.
func (s *BetService) Snapshot(ctx context.Context, accountID string) (AccountSnapshot, error) {
	var snap AccountSnapshot
	err := s.ledger.View(ctx, accountID, func(acct models.WalletAccount) error {
		bets, err := s.store.ListByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		snap = AccountSnapshot{
			AccountID:   accountID,
			Balance:     acct.Balance,
			KYCStatus:   acct.KYCStatus,
			PendingBets: []models.Bet{},
			OpenStake:   decimal.Zero,
		}
		for _, bet := range bets {
			if bet.Status == models.BetPending {
				snap.PendingBets = append(snap.PendingBets, bet)
				snap.OpenStake = snap.OpenStake.Add(bet.Stake)
			}
		}
		return nil
	})
	if err != nil {
		return AccountSnapshot{}, err
	}
	return snap, nil
}

func (s *BetService) quoteFunc(ctx context.Context) pricing.QuoteFunc {
	return func(selectionID string) (decimal.Decimal, error) {
		q, err := s.quotes.Quote(ctx, selectionID)
		if err != nil {
			return decimal.Zero, err
		}
		return q.Odds, nil
	}
}

// publish never fails the caller: the transition is already committed.
func (s *BetService) publish(ctx context.Context, t models.BetEventType, bet models.Bet, amount *decimal.Decimal) {
	event := models.NewBetEvent(t, bet, amount, s.now())
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().
			Err(err).
			Str("bet_id", bet.ID).
			Str("event", string(t)).
			Msg("failed to publish bet event")
	}
}

func (s *BetService) reject(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.recorder.Rejected("CANCELED")
		return
	}
	s.recorder.Rejected(models.Code(err))
}
