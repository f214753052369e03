package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cypherlabdev/bet-engine-service/internal/feed"
	"github.com/cypherlabdev/bet-engine-service/internal/ledger"
	"github.com/cypherlabdev/bet-engine-service/internal/mocks"
	"github.com/cypherlabdev/bet-engine-service/internal/models"
	"github.com/cypherlabdev/bet-engine-service/internal/slip"
	"github.com/cypherlabdev/bet-engine-service/pkg/pricing"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var feedTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// testBetServiceSetup holds the service under test and its collaborators
type testBetServiceSetup struct {
	service   *BetService
	ledger    *ledger.Ledger
	store     *MemoryBetStore
	book      *feed.QuoteBook
	publisher *mocks.MockEventPublisher
	recorder  *countingRecorder
	ctrl      *gomock.Controller
	ctx       context.Context
}

type countingRecorder struct {
	mu       sync.Mutex
	placed   int
	cashouts []float64
	settled  map[string]int
	rejected map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{settled: map[string]int{}, rejected: map[string]int{}}
}

func (r *countingRecorder) BetPlaced() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placed++
}

func (r *countingRecorder) CashedOut(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cashouts = append(r.cashouts, v)
}

func (r *countingRecorder) Settled(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled[outcome]++
}

func (r *countingRecorder) Rejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected[reason]++
}

func (r *countingRecorder) rejections(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rejected[reason]
}

// setupTestBetService funds acct-1 with 25000 and quotes s1 1.65 (m1),
// s2 2.10 (m2). Published events are accepted and ignored.
func setupTestBetService(t *testing.T, config BetServiceConfig, quotes QuoteSource) *testBetServiceSetup {
	ts := newTestBetService(t, config, quotes)
	ts.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	return ts
}

func newTestBetService(t *testing.T, config BetServiceConfig, quotes QuoteSource) *testBetServiceSetup {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockEventPublisher(ctrl)
	ctx := context.Background()

	engine, err := pricing.NewEngine(pricing.DefaultParams())
	require.NoError(t, err)

	l := ledger.NewLedger(ledger.Config{LockTimeout: time.Second, Precision: 2}, zerolog.Nop())
	_, err = l.OpenAccount(ctx, "acct-1")
	require.NoError(t, err)
	_, err = l.Deposit(ctx, "acct-1", d("25000"), "seed")
	require.NoError(t, err)

	book := feed.NewQuoteBook()
	setQuote(book, "s1", "m1", "1.65")
	setQuote(book, "s2", "m2", "2.10")
	if quotes == nil {
		quotes = book
	}

	store := NewMemoryBetStore()
	recorder := newCountingRecorder()
	svc := NewBetService(config, engine, l, store, quotes, zerolog.Nop(),
		WithPublisher(publisher),
		WithRecorder(recorder),
		WithClock(func() time.Time { return feedTime }),
	)

	return &testBetServiceSetup{
		service:   svc,
		ledger:    l,
		store:     store,
		book:      book,
		publisher: publisher,
		recorder:  recorder,
		ctrl:      ctrl,
		ctx:       ctx,
	}
}

func setQuote(book *feed.QuoteBook, selectionID, marketID, odds string) {
	book.Apply(models.PriceUpdate{
		SelectionID: selectionID,
		MarketID:    marketID,
		EventID:     "e1",
		Odds:        d(odds),
		Timestamp:   feedTime,
	})
}

func accumulator() slip.Slip {
	return slip.New(
		models.SlipEntry{SelectionID: "s1", MarketID: "m1", EventID: "e1", SnapshotOdds: d("1.65")},
		models.SlipEntry{SelectionID: "s2", MarketID: "m2", EventID: "e1", SnapshotOdds: d("2.10")},
	)
}

func (ts *testBetServiceSetup) balance(t *testing.T) decimal.Decimal {
	b, err := ts.ledger.Balance(ts.ctx, "acct-1")
	require.NoError(t, err)
	return b
}

func (ts *testBetServiceSetup) assertConserved(t *testing.T) {
	entries, err := ts.ledger.Entries(ts.ctx, "acct-1")
	require.NoError(t, err)

	sum := decimal.Zero
	for _, e := range entries {
		if e.Kind == models.EntryCredit {
			sum = sum.Add(e.Amount)
		} else {
			sum = sum.Sub(e.Amount)
		}
	}
	assert.True(t, sum.Equal(ts.balance(t)), "credits - debits %s != balance %s", sum, ts.balance(t))
}

func TestBetService_PlaceBet(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)

	bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
	require.NoError(t, err)

	assert.NotEmpty(t, bet.ID)
	assert.Equal(t, models.BetPending, bet.Status)
	assert.Equal(t, "3.465", bet.CombinedOdds.String())
	assert.Equal(t, "3465.00", bet.PotentialPayout.StringFixed(2))
	assert.Len(t, bet.Legs, 2)
	assert.True(t, ts.balance(t).Equal(d("24000")))

	stored, err := ts.service.GetBet(ts.ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, bet.ID, stored.ID)

	entries, err := ts.ledger.Entries(ts.ctx, "acct-1")
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, models.EntryDebit, last.Kind)
	assert.Equal(t, models.CauseBetPlaced, last.Cause)
	assert.Equal(t, bet.ID, last.Reference)
	assert.Equal(t, 1, ts.recorder.placed)
	ts.assertConserved(t)
}

func TestBetService_PlaceBet_InsufficientFunds(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)

	_, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("30000"))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	assert.True(t, ts.balance(t).Equal(d("25000")))
	bets, err := ts.service.ListBets(ts.ctx, "acct-1")
	require.NoError(t, err)
	assert.Empty(t, bets)
	assert.Equal(t, 1, ts.recorder.rejections("INSUFFICIENT_FUNDS"))
}

func TestBetService_PlaceBet_InvalidInput(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)

	tests := []struct {
		name  string
		slip  slip.Slip
		stake string
		want  error
	}{
		{"empty slip", slip.Slip{}, "10", models.ErrEmptySlip},
		{"zero stake", accumulator(), "0", models.ErrInvalidStake},
		{"negative stake", accumulator(), "-5", models.ErrInvalidStake},
		{"sub-cent stake", accumulator(), "10.001", models.ErrInvalidStake},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.service.PlaceBet(ts.ctx, "acct-1", tt.slip, d(tt.stake))
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.True(t, ts.balance(t).Equal(d("25000")))
}

func TestBetService_PlaceBet_UnknownAccount(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)

	_, err := ts.service.PlaceBet(ts.ctx, "nobody", accumulator(), d("10"))
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

// failingStore refuses to persist new bets.
type failingStore struct {
	*MemoryBetStore
}

func (f failingStore) Create(context.Context, models.Bet) error {
	return errors.New("disk full")
}

func TestBetService_PlaceBet_StoreFailureRollsBackDebit(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)
	engine, err := pricing.NewEngine(pricing.DefaultParams())
	require.NoError(t, err)
	svc := NewBetService(BetServiceConfig{}, engine, ts.ledger, failingStore{NewMemoryBetStore()}, ts.book, zerolog.Nop())

	_, err = svc.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
	require.Error(t, err)

	assert.True(t, ts.balance(t).Equal(d("25000")))
	entries, err := ts.ledger.Entries(ts.ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// observingStore runs onWrite after each successful bet write, while the
// owning ledger transaction is still committing.
type observingStore struct {
	*MemoryBetStore
	onWrite func(bet models.Bet)
}

func (o *observingStore) Create(ctx context.Context, bet models.Bet) error {
	if err := o.MemoryBetStore.Create(ctx, bet); err != nil {
		return err
	}
	o.onWrite(bet)
	return nil
}

func (o *observingStore) Update(ctx context.Context, bet models.Bet) error {
	if err := o.MemoryBetStore.Update(ctx, bet); err != nil {
		return err
	}
	o.onWrite(bet)
	return nil
}

type betObservation struct {
	bet     models.Bet
	balance decimal.Decimal
	err     error
}

// observeDuringCommit starts a reader of bet and the acct-1 balance from
// inside the store write and reports whether it finished before the write
// returned. Readers must block until the ledger commit completes.
func observeDuringCommit(ts *testBetServiceSetup) (<-chan betObservation, *bool) {
	observed := make(chan betObservation, 1)
	early := new(bool)
	ts.service.store = &observingStore{MemoryBetStore: ts.store, onWrite: func(bet models.Bet) {
		go func() {
			got, err := ts.service.GetBet(ts.ctx, bet.ID)
			var balance decimal.Decimal
			if err == nil {
				balance, err = ts.ledger.Balance(ts.ctx, "acct-1")
			}
			observed <- betObservation{bet: got, balance: balance, err: err}
		}()
		select {
		case obs := <-observed:
			*early = true
			observed <- obs
		case <-time.After(50 * time.Millisecond):
		}
	}}
	return observed, early
}

func TestBetService_PlaceBet_ReadersWaitForCommit(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)
	observed, early := observeDuringCommit(ts)

	bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
	require.NoError(t, err)
	assert.False(t, *early, "bet was readable before its stake was debited")

	obs := <-observed
	require.NoError(t, obs.err)
	assert.Equal(t, bet.ID, obs.bet.ID)
	assert.Equal(t, models.BetPending, obs.bet.Status)
	assert.True(t, obs.balance.Equal(d("24000")), obs.balance.String())
}

func TestBetService_Settle_ReadersWaitForCommit(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)
	bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
	require.NoError(t, err)
	observed, early := observeDuringCommit(ts)

	_, err = ts.service.Settle(ts.ctx, bet.ID, models.OutcomeWon)
	require.NoError(t, err)
	assert.False(t, *early, "won bet was readable before its payout was credited")

	obs := <-observed
	require.NoError(t, obs.err)
	assert.Equal(t, models.BetWon, obs.bet.Status)
	// 24000 + 3465
	assert.True(t, obs.balance.Equal(d("27465")), obs.balance.String())
}

func TestBetService_CashOut_StoreFailureRollsBackCredit(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)
	bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
	require.NoError(t, err)
	ts.service.store = updateFailingStore{ts.store}

	_, err = ts.service.CashOut(ts.ctx, bet.ID)
	require.Error(t, err)

	assert.True(t, ts.balance(t).Equal(d("24000")))
	got, err := ts.service.GetBet(ts.ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetPending, got.Status)
	ts.assertConserved(t)
}

// updateFailingStore refuses to persist bet transitions.
type updateFailingStore struct {
	*MemoryBetStore
}

func (f updateFailingStore) Update(context.Context, models.Bet) error {
	return errors.New("disk full")
}

func TestBetService_PlaceBet_SnapshotPolicyIgnoresDrift(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{OddsPolicy: PolicySnapshot}, nil)
	setQuote(ts.book, "s1", "m1", "1.20")

	bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("100"))
	require.NoError(t, err)
	assert.Equal(t, "1.65", bet.Legs[0].LockedOdds.String())
}

func TestBetService_PlaceBet_TolerancePolicy(t *testing.T) {
	ctrl := gomock.NewController(t)
	quotes := mocks.NewMockQuoteSource(ctrl)
	ts := setupTestBetService(t, BetServiceConfig{OddsPolicy: PolicyTolerance, OddsTolerance: d("0.05")}, quotes)

	quote := func(id, odds string) models.MarketQuote {
		return models.MarketQuote{SelectionID: id, Odds: d(odds)}
	}

	t.Run("within tolerance", func(t *testing.T) {
		quotes.EXPECT().Quote(gomock.Any(), "s1").Return(quote("s1", "1.70"), nil)
		quotes.EXPECT().Quote(gomock.Any(), "s2").Return(quote("s2", "2.10"), nil)

		bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("100"))
		require.NoError(t, err)
		assert.Equal(t, "3.465", bet.CombinedOdds.String())
	})

	t.Run("drifted", func(t *testing.T) {
		quotes.EXPECT().Quote(gomock.Any(), "s1").Return(quote("s1", "1.40"), nil)

		_, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("100"))
		assert.ErrorIs(t, err, models.ErrOddsChanged)
	})

	t.Run("suspended", func(t *testing.T) {
		quotes.EXPECT().Quote(gomock.Any(), "s1").Return(quote("s1", "1.65"), nil)
		quotes.EXPECT().Quote(gomock.Any(), "s2").Return(models.MarketQuote{}, models.ErrNotQuotable)

		_, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("100"))
		assert.ErrorIs(t, err, models.ErrOddsChanged)
	})

	assert.True(t, ts.balance(t).Equal(d("24900")))
}

func TestBetService_PlaceBet_PublishesEvent(t *testing.T) {
	ts := newTestBetService(t, BetServiceConfig{}, nil)

	ts.publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e models.BetEvent) error {
			assert.Equal(t, models.EventBetPlaced, e.Type)
			assert.Equal(t, "acct-1", e.AccountID)
			assert.True(t, e.Amount.Equal(d("1000")))
			assert.Equal(t, feedTime, e.Timestamp)
			return nil
		})

	_, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
	require.NoError(t, err)
}

func TestBetService_PublishFailureKeepsCommittedState(t *testing.T) {
	ts := newTestBetService(t, BetServiceConfig{}, nil)
	ts.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
	require.NoError(t, err)

	_, err = ts.service.GetBet(ts.ctx, bet.ID)
	assert.NoError(t, err)
	assert.True(t, ts.balance(t).Equal(d("24000")))
}

func TestBetService_QuoteCashOut(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)
	bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
	require.NoError(t, err)

	setQuote(ts.book, "s1", "m1", "2.00")
	setQuote(ts.book, "s2", "m2", "2.00")

	value, err := ts.service.QuoteCashOut(ts.ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, "796.95", value.StringFixed(2))

	// Quoting changes nothing.
	assert.True(t, ts.balance(t).Equal(d("24000")))
	stored, err := ts.service.GetBet(ts.ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetPending, stored.Status)
}

func TestBetService_CashOut(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)
	bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
	require.NoError(t, err)

	setQuote(ts.book, "s1", "m1", "2.00")
	setQuote(ts.book, "s2", "m2", "2.00")

	out, err := ts.service.CashOut(ts.ctx, bet.ID)
	require.NoError(t, err)

	assert.Equal(t, models.BetCashedOut, out.Status)
	require.NotNil(t, out.CashOutValue)
	assert.Equal(t, "796.95", out.CashOutValue.StringFixed(2))
	require.NotNil(t, out.SettledAt)
	assert.True(t, ts.balance(t).Equal(d("24796.95")))
	assert.Equal(t, []float64{796.95}, ts.recorder.cashouts)
	ts.assertConserved(t)
}

func TestBetService_CashOut_Unavailable(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)
	bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
	require.NoError(t, err)

	ts.book.HaltMarket("m2")

	_, err = ts.service.CashOut(ts.ctx, bet.ID)
	assert.ErrorIs(t, err, models.ErrCashOutUnavailable)

	_, err = ts.service.QuoteCashOut(ts.ctx, bet.ID)
	assert.ErrorIs(t, err, models.ErrCashOutUnavailable)

	stored, err := ts.service.GetBet(ts.ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BetPending, stored.Status)
	assert.True(t, ts.balance(t).Equal(d("24000")))
}

func TestBetService_TerminalStatesAreFinal(t *testing.T) {
	tests := []struct {
		name  string
		first func(ts *testBetServiceSetup, id string) error
	}{
		{"cashed out", func(ts *testBetServiceSetup, id string) error {
			_, err := ts.service.CashOut(ts.ctx, id)
			return err
		}},
		{"won", func(ts *testBetServiceSetup, id string) error {
			_, err := ts.service.Settle(ts.ctx, id, models.OutcomeWon)
			return err
		}},
		{"lost", func(ts *testBetServiceSetup, id string) error {
			_, err := ts.service.Settle(ts.ctx, id, models.OutcomeLost)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestBetService(t, BetServiceConfig{}, nil)
			bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
			require.NoError(t, err)
			require.NoError(t, tt.first(ts, bet.ID))

			balance := ts.balance(t)
			entries, err := ts.ledger.Entries(ts.ctx, "acct-1")
			require.NoError(t, err)

			_, err = ts.service.CashOut(ts.ctx, bet.ID)
			assert.ErrorIs(t, err, models.ErrInvalidTransition)
			_, err = ts.service.Settle(ts.ctx, bet.ID, models.OutcomeWon)
			assert.ErrorIs(t, err, models.ErrInvalidTransition)
			_, err = ts.service.Settle(ts.ctx, bet.ID, models.OutcomeLost)
			assert.ErrorIs(t, err, models.ErrInvalidTransition)
			_, err = ts.service.QuoteCashOut(ts.ctx, bet.ID)
			assert.ErrorIs(t, err, models.ErrInvalidTransition)

			after, err := ts.ledger.Entries(ts.ctx, "acct-1")
			require.NoError(t, err)
			assert.True(t, ts.balance(t).Equal(balance))
			assert.Len(t, after, len(entries))
		})
	}
}

func TestBetService_Settle(t *testing.T) {
	t.Run("won credits potential payout", func(t *testing.T) {
		ts := setupTestBetService(t, BetServiceConfig{}, nil)
		bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
		require.NoError(t, err)

		out, err := ts.service.Settle(ts.ctx, bet.ID, models.OutcomeWon)
		require.NoError(t, err)

		assert.Equal(t, models.BetWon, out.Status)
		assert.NotNil(t, out.SettledAt)
		assert.True(t, ts.balance(t).Equal(d("27465")))
		assert.Equal(t, 1, ts.recorder.settled["WON"])
		ts.assertConserved(t)
	})

	t.Run("lost leaves ledger alone", func(t *testing.T) {
		ts := setupTestBetService(t, BetServiceConfig{}, nil)
		bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
		require.NoError(t, err)

		out, err := ts.service.Settle(ts.ctx, bet.ID, models.OutcomeLost)
		require.NoError(t, err)

		assert.Equal(t, models.BetLost, out.Status)
		assert.True(t, ts.balance(t).Equal(d("24000")))
	})

	t.Run("works while market suspended", func(t *testing.T) {
		ts := setupTestBetService(t, BetServiceConfig{}, nil)
		bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
		require.NoError(t, err)
		ts.book.HaltMarket("m1")

		_, err = ts.service.Settle(ts.ctx, bet.ID, models.OutcomeWon)
		assert.NoError(t, err)
	})

	t.Run("unknown outcome", func(t *testing.T) {
		ts := setupTestBetService(t, BetServiceConfig{}, nil)
		bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
		require.NoError(t, err)

		_, err = ts.service.Settle(ts.ctx, bet.ID, models.Outcome("VOID"))
		assert.ErrorIs(t, err, models.ErrInvalidOutcome)
		assert.Equal(t, "INVALID_OUTCOME", models.Code(err))

		got, err := ts.service.GetBet(ts.ctx, bet.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BetPending, got.Status)
	})

	t.Run("unknown bet", func(t *testing.T) {
		ts := setupTestBetService(t, BetServiceConfig{}, nil)

		_, err := ts.service.Settle(ts.ctx, "missing", models.OutcomeWon)
		assert.ErrorIs(t, err, models.ErrBetNotFound)
	})
}

func TestBetService_OpenCashOutOffers(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)
	setQuote(ts.book, "s3", "m3", "3.00")

	first, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
	require.NoError(t, err)
	single := slip.New(models.SlipEntry{SelectionID: "s3", MarketID: "m3", SnapshotOdds: d("3.00")})
	second, err := ts.service.PlaceBet(ts.ctx, "acct-1", single, d("100"))
	require.NoError(t, err)
	settled, err := ts.service.PlaceBet(ts.ctx, "acct-1", single, d("50"))
	require.NoError(t, err)
	_, err = ts.service.Settle(ts.ctx, settled.ID, models.OutcomeLost)
	require.NoError(t, err)

	ts.book.HaltMarket("m3")

	offers, err := ts.service.OpenCashOutOffers(ts.ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, offers, 2)

	assert.Equal(t, first.ID, offers[0].BetID)
	assert.True(t, offers[0].Available)
	require.NotNil(t, offers[0].Value)

	assert.Equal(t, second.ID, offers[1].BetID)
	assert.False(t, offers[1].Available)
	assert.Nil(t, offers[1].Value)
	assert.Equal(t, "CASH_OUT_UNAVAILABLE", offers[1].Reason)
}

func TestBetService_MarketExposure(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)

	_, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
	require.NoError(t, err)
	single := slip.New(models.SlipEntry{SelectionID: "s1", MarketID: "m1", SnapshotOdds: d("1.65")})
	_, err = ts.service.PlaceBet(ts.ctx, "acct-1", single, d("100"))
	require.NoError(t, err)

	exp, err := ts.service.MarketExposure(ts.ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, exp.OpenBets)
	assert.True(t, exp.TotalStake.Equal(d("1100")))
	// (3465 - 1000) + (165 - 100)
	assert.True(t, exp.Liability.Equal(d("2530")), exp.Liability.String())

	exp, err = ts.service.MarketExposure(ts.ctx, "m9")
	require.NoError(t, err)
	assert.Zero(t, exp.OpenBets)
}

func TestBetService_Snapshot(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)
	_, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("1000"))
	require.NoError(t, err)

	snap, err := ts.service.Snapshot(ts.ctx, "acct-1")
	require.NoError(t, err)

	assert.True(t, snap.Balance.Equal(d("24000")))
	assert.True(t, snap.OpenStake.Equal(d("1000")))
	assert.Len(t, snap.PendingBets, 1)
	assert.Equal(t, models.KYCNotStarted, snap.KYCStatus)
}

func TestBetService_ConcurrentLifecycleConservesMoney(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)

	const n = 40
	ids := make([]string, n)
	for i := range ids {
		bet, err := ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("100"))
		require.NoError(t, err)
		ids[i] = bet.ID
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = ts.service.CashOut(ts.ctx, id)
		}()
		go func() {
			defer wg.Done()
			outcome := models.OutcomeLost
			if i%2 == 0 {
				outcome = models.OutcomeWon
			}
			_, _ = ts.service.Settle(ts.ctx, id, outcome)
		}()
		go func() {
			defer wg.Done()
			_, _ = ts.service.PlaceBet(ts.ctx, "acct-1", accumulator(), d("10"))
		}()
	}
	wg.Wait()

	ts.assertConserved(t)

	// Each bet reached exactly one terminal state with the matching credit.
	entries, err := ts.ledger.Entries(ts.ctx, "acct-1")
	require.NoError(t, err)
	credits := map[string]int{}
	for _, e := range entries {
		if e.Kind == models.EntryCredit && e.Cause != models.CauseDeposit {
			credits[e.Reference]++
		}
	}
	for _, id := range ids {
		bet, err := ts.service.GetBet(ts.ctx, id)
		require.NoError(t, err)
		require.True(t, bet.Status.Terminal(), fmt.Sprintf("bet %s is %s", id, bet.Status))
		if bet.Status == models.BetLost {
			assert.Zero(t, credits[id])
		} else {
			assert.Equal(t, 1, credits[id])
		}
	}
}

func TestBetService_BusyAccount(t *testing.T) {
	ts := setupTestBetService(t, BetServiceConfig{}, nil)
	engine, err := pricing.NewEngine(pricing.DefaultParams())
	require.NoError(t, err)
	l := ledger.NewLedger(ledger.Config{LockTimeout: 20 * time.Millisecond, Precision: 2}, zerolog.Nop())
	_, err = l.OpenAccount(ts.ctx, "acct-1")
	require.NoError(t, err)
	_, err = l.Deposit(ts.ctx, "acct-1", d("100"), "seed")
	require.NoError(t, err)
	svc := NewBetService(BetServiceConfig{}, engine, l, NewMemoryBetStore(), ts.book, zerolog.Nop())

	hold := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = l.Update(ts.ctx, "acct-1", func(*ledger.Tx) error {
			close(held)
			<-hold
			return nil
		})
	}()
	<-held

	_, err = svc.PlaceBet(ts.ctx, "acct-1", accumulator(), d("10"))
	assert.ErrorIs(t, err, models.ErrBusy)
	close(hold)
}
