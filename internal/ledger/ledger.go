package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

// Config holds ledger configuration
type Config struct {
	LockTimeout time.Duration // Bound on waiting for an account lock, e.g. 2 * time.Second
	Precision   int32         // Currency decimal places; amounts finer than this are rejected
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the ledger clock used for entry timestamps and daily limits.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithBusyHook registers a callback invoked whenever lock acquisition times out.
func WithBusyHook(fn func()) Option {
	return func(l *Ledger) { l.onBusy = fn }
}

// account is one independently lockable unit. sem serializes transactions;
// mu guards the committed state so readers never wait on a transaction.
type account struct {
	sem chan struct{}

	mu      sync.RWMutex
	state   models.WalletAccount
	entries []models.LedgerEntry
	credits decimal.Decimal
	debits  decimal.Decimal
	day     string
	today   dailyTotals
}

type dailyTotals struct {
	deposited decimal.Decimal
	wagered   decimal.Decimal
}

// Ledger is the account of record for bettor balances. Concurrency is
// per account; the registry lock is only taken to find or open accounts.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account

	lockTimeout time.Duration
	precision   int32
	now         func() time.Time
	onBusy      func()
	logger      zerolog.Logger
}

// NewLedger creates an empty ledger
func NewLedger(config Config, logger zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		accounts:    make(map[string]*account),
		lockTimeout: config.LockTimeout,
		precision:   config.Precision,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.With().Str("component", "ledger").Logger(),
	}
	if l.lockTimeout <= 0 {
		l.lockTimeout = 2 * time.Second
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OpenAccount creates a zero-balance account with KYC not started.
func (l *Ledger) OpenAccount(_ context.Context, accountID string) (models.WalletAccount, error) {
	if accountID == "" {
		return models.WalletAccount{}, fmt.Errorf("account id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[accountID]; ok {
		return models.WalletAccount{}, fmt.Errorf("%w: %s", models.ErrAccountExists, accountID)
	}

	now := l.now()
	acct := &account{
		sem: make(chan struct{}, 1),
		state: models.WalletAccount{
			AccountID: accountID,
			Balance:   decimal.Zero,
			KYCStatus: models.KYCNotStarted,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	l.accounts[accountID] = acct

	l.logger.Info().Str("account_id", accountID).Msg("opened account")
	return acct.state, nil
}

// Account returns the committed state of an account.
func (l *Ledger) Account(_ context.Context, accountID string) (models.WalletAccount, error) {
	acct, err := l.lookup(accountID)
	if err != nil {
		return models.WalletAccount{}, err
	}
	acct.mu.RLock()
	defer acct.mu.RUnlock()
	return acct.state, nil
}

// Balance returns the committed balance of an account.
func (l *Ledger) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acct, err := l.Account(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

// Entries returns the audit trail of an account, oldest first.
func (l *Ledger) Entries(_ context.Context, accountID string) ([]models.LedgerEntry, error) {
	acct, err := l.lookup(accountID)
	if err != nil {
		return nil, err
	}
	acct.mu.RLock()
	defer acct.mu.RUnlock()
	return append([]models.LedgerEntry(nil), acct.entries...), nil
}

// AccountIDs returns all account ids, sorted.
func (l *Ledger) AccountIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Update runs fn as one transaction on the account. Mutations staged through
// tx become visible together when fn returns nil and are discarded otherwise.
func (l *Ledger) Update(ctx context.Context, accountID string, fn func(tx *Tx) error) error {
	acct, err := l.lookup(accountID)
	if err != nil {
		return err
	}
	if err := l.acquire(ctx, acct); err != nil {
		return err
	}
	defer l.release(acct)

	tx := l.begin(acct)
	if err := fn(tx); err != nil {
		return err
	}
	return l.commit(acct, tx)
}

// View runs fn against the committed state of an account. A commit in
// progress on the account, including its OnCommit hooks, finishes before fn
// runs, so fn observes hook effects and balance together or not at all.
// fn must not call back into the ledger for the same account.
func (l *Ledger) View(_ context.Context, accountID string, fn func(acct models.WalletAccount) error) error {
	acct, err := l.lookup(accountID)
	if err != nil {
		return err
	}
	acct.mu.RLock()
	defer acct.mu.RUnlock()
	return fn(acct.state)
}

// Debit removes amount from the balance or fails with ErrInsufficientFunds,
// leaving the balance unchanged.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount decimal.Decimal, cause models.Cause, ref string) error {
	return l.Update(ctx, accountID, func(tx *Tx) error {
		return tx.Debit(amount, cause, ref)
	})
}

// Credit adds amount to the balance.
func (l *Ledger) Credit(ctx context.Context, accountID string, amount decimal.Decimal, cause models.Cause, ref string) error {
	return l.Update(ctx, accountID, func(tx *Tx) error {
		return tx.Credit(amount, cause, ref)
	})
}

// Deposit credits funds confirmed by the payment gateway. There is no KYC gate.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, ref string) (models.WalletAccount, error) {
	if err := l.Credit(ctx, accountID, amount, models.CauseDeposit, ref); err != nil {
		return models.WalletAccount{}, err
	}
	return l.Account(ctx, accountID)
}

// CanWithdraw reports whether the account's KYC status allows withdrawals.
func (l *Ledger) CanWithdraw(ctx context.Context, accountID string) (bool, error) {
	acct, err := l.Account(ctx, accountID)
	if err != nil {
		return false, err
	}
	return acct.KYCStatus == models.KYCVerified, nil
}

// Withdraw checks the KYC gate and debits amount in one transaction.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, ref string) (models.WalletAccount, error) {
	err := l.Update(ctx, accountID, func(tx *Tx) error {
		if tx.KYCStatus() != models.KYCVerified {
			return fmt.Errorf("%w: status %s", models.ErrKYCRequired, tx.KYCStatus())
		}
		return tx.Debit(amount, models.CauseWithdrawal, ref)
	})
	if err != nil {
		return models.WalletAccount{}, err
	}
	return l.Account(ctx, accountID)
}

// SetKYCStatus records a status reported by the external KYC provider.
func (l *Ledger) SetKYCStatus(ctx context.Context, accountID string, status models.KYCStatus) (models.WalletAccount, error) {
	err := l.Update(ctx, accountID, func(tx *Tx) error {
		return tx.SetKYCStatus(status)
	})
	if err != nil {
		return models.WalletAccount{}, err
	}
	return l.Account(ctx, accountID)
}

// SetLimits replaces the account's responsible-gaming limits.
func (l *Ledger) SetLimits(ctx context.Context, accountID string, limits models.Limits) (models.WalletAccount, error) {
	if limits.DailyDeposit.IsNegative() || limits.DailyWager.IsNegative() {
		return models.WalletAccount{}, fmt.Errorf("%w: limits must not be negative", models.ErrInvalidAmount)
	}
	err := l.Update(ctx, accountID, func(tx *Tx) error {
		tx.limits = &limits
		return nil
	})
	if err != nil {
		return models.WalletAccount{}, err
	}
	return l.Account(ctx, accountID)
}

func (l *Ledger) lookup(accountID string) (*account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, accountID)
	}
	return acct, nil
}

func (l *Ledger) acquire(ctx context.Context, acct *account) error {
	select {
	case acct.sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(l.lockTimeout)
	defer timer.Stop()

	select {
	case acct.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire account %s: %w", acct.state.AccountID, ctx.Err())
	case <-timer.C:
		if l.onBusy != nil {
			l.onBusy()
		}
		l.logger.Warn().
			Str("account_id", acct.state.AccountID).
			Dur("timeout", l.lockTimeout).
			Msg("account lock acquisition timed out")
		return fmt.Errorf("%w: account %s", models.ErrBusy, acct.state.AccountID)
	}
}

func (l *Ledger) release(acct *account) {
	<-acct.sem
}

func (l *Ledger) begin(acct *account) *Tx {
	acct.mu.RLock()
	defer acct.mu.RUnlock()

	now := l.now()
	today := acct.today
	if acct.day != dayKey(now) {
		today = dailyTotals{}
	}
	return &Tx{
		accountID: acct.state.AccountID,
		balance:   acct.state.Balance,
		kyc:       acct.state.KYCStatus,
		current:   acct.state.Limits,
		today:     today,
		now:       now,
		precision: l.precision,
	}
}

// commit applies a staged transaction. A negative balance or a broken
// credit/debit sum here means atomicity was violated, so it panics. OnCommit
// hooks run under the account's state lock before the balance is applied; the
// first hook error abandons the commit.
func (l *Ledger) commit(acct *account, tx *Tx) error {
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if tx.balance.IsNegative() {
		panic(fmt.Sprintf("ledger: account %s committed negative balance %s", tx.accountID, tx.balance.String()))
	}

	credits, debits := acct.credits, acct.debits
	for _, e := range tx.staged {
		if e.Kind == models.EntryCredit {
			credits = credits.Add(e.Amount)
		} else {
			debits = debits.Add(e.Amount)
		}
	}
	if !credits.Sub(debits).Equal(tx.balance) {
		panic(fmt.Sprintf("ledger: account %s balance %s does not match entries %s", tx.accountID, tx.balance.String(), credits.Sub(debits).String()))
	}

	for _, hook := range tx.hooks {
		if err := hook(); err != nil {
			return err
		}
	}

	acct.credits, acct.debits = credits, debits
	acct.entries = append(acct.entries, tx.staged...)
	acct.state.Balance = tx.balance
	acct.state.KYCStatus = tx.kyc
	if tx.limits != nil {
		acct.state.Limits = *tx.limits
	}
	acct.day = dayKey(tx.now)
	acct.today = tx.today
	acct.state.UpdatedAt = tx.now

	if len(tx.staged) > 0 {
		l.logger.Debug().
			Str("account_id", tx.accountID).
			Int("entries", len(tx.staged)).
			Str("balance", tx.balance.String()).
			Msg("committed ledger transaction")
	}
	return nil
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
