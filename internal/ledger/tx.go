package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

// Tx stages balance mutations for one account while its lock is held.
// A Tx must not be retained after the Update callback returns.
type Tx struct {
	accountID string
	balance   decimal.Decimal
	kyc       models.KYCStatus
	current   models.Limits
	limits    *models.Limits
	today     dailyTotals
	staged    []models.LedgerEntry
	hooks     []func() error
	now       time.Time
	precision int32
}

// AccountID returns the account the transaction runs against.
func (tx *Tx) AccountID() string {
	return tx.accountID
}

// Balance returns the staged balance.
func (tx *Tx) Balance() decimal.Decimal {
	return tx.balance
}

// KYCStatus returns the staged KYC status.
func (tx *Tx) KYCStatus() models.KYCStatus {
	return tx.kyc
}

// Now returns the transaction timestamp.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// OnCommit registers fn to run when the transaction commits, atomically with
// the staged balance change. Readers going through Ledger.View never see one
// without the other. A hook error abandons the whole transaction, so only the
// last registered hook may fail after earlier hooks had side effects.
func (tx *Tx) OnCommit(fn func() error) {
	tx.hooks = append(tx.hooks, fn)
}

// Debit stages a debit. It fails without staging anything when amount exceeds
// the balance or a daily wager limit.
func (tx *Tx) Debit(amount decimal.Decimal, cause models.Cause, ref string) error {
	if err := tx.checkAmount(amount); err != nil {
		return err
	}
	if amount.GreaterThan(tx.balance) {
		return fmt.Errorf("%w: balance %s, requested %s", models.ErrInsufficientFunds, tx.balance.String(), amount.String())
	}

	wagered := tx.today.wagered
	if cause == models.CauseBetPlaced {
		wagered = wagered.Add(amount)
		limit := tx.currentLimits().DailyWager
		if limit.IsPositive() && wagered.GreaterThan(limit) {
			return fmt.Errorf("%w: daily wager limit %s", models.ErrLimitExceeded, limit.String())
		}
	}

	tx.balance = tx.balance.Sub(amount)
	tx.today.wagered = wagered
	tx.stage(models.EntryDebit, amount, cause, ref)
	return nil
}

// Credit stages a credit, subject to the daily deposit limit for deposits.
func (tx *Tx) Credit(amount decimal.Decimal, cause models.Cause, ref string) error {
	if err := tx.checkAmount(amount); err != nil {
		return err
	}

	deposited := tx.today.deposited
	if cause == models.CauseDeposit {
		deposited = deposited.Add(amount)
		limit := tx.currentLimits().DailyDeposit
		if limit.IsPositive() && deposited.GreaterThan(limit) {
			return fmt.Errorf("%w: daily deposit limit %s", models.ErrLimitExceeded, limit.String())
		}
	}

	tx.balance = tx.balance.Add(amount)
	tx.today.deposited = deposited
	tx.stage(models.EntryCredit, amount, cause, ref)
	return nil
}

// SetKYCStatus stages a KYC status change.
func (tx *Tx) SetKYCStatus(status models.KYCStatus) error {
	if !tx.kyc.CanTransition(status) {
		return fmt.Errorf("%w: %s to %s", models.ErrInvalidKYCTransition, tx.kyc, status)
	}
	tx.kyc = status
	return nil
}

// checkAmount requires a positive amount in whole minor units.
func (tx *Tx) checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", models.ErrInvalidAmount, amount.String())
	}
	if !amount.Equal(amount.Round(tx.precision)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", models.ErrInvalidAmount, amount.String(), tx.precision)
	}
	return nil
}

func (tx *Tx) currentLimits() models.Limits {
	if tx.limits != nil {
		return *tx.limits
	}
	return tx.current
}

func (tx *Tx) stage(kind models.EntryKind, amount decimal.Decimal, cause models.Cause, ref string) {
	tx.staged = append(tx.staged, models.LedgerEntry{
		ID:           uuid.NewString(),
		AccountID:    tx.accountID,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: tx.balance,
		Cause:        cause,
		Reference:    ref,
		CreatedAt:    tx.now,
	})
}
