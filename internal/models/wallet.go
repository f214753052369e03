package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// KYCStatus gates withdrawals.
type KYCStatus string

const (
	KYCNotStarted KYCStatus = "NOT_STARTED"
	KYCPending    KYCStatus = "PENDING"
	KYCVerified   KYCStatus = "VERIFIED"
	KYCRejected   KYCStatus = "REJECTED"
)

// CanTransition reports whether the status may move from s to next.
func (s KYCStatus) CanTransition(next KYCStatus) bool {
	switch s {
	case KYCNotStarted, KYCRejected:
		return next == KYCPending
	case KYCPending:
		return next == KYCVerified || next == KYCRejected
	}
	return false
}

// Limits are responsible-gaming caps per UTC day. Zero means unlimited.
type Limits struct {
	DailyDeposit decimal.Decimal `json:"daily_deposit"`
	DailyWager   decimal.Decimal `json:"daily_wager"`
}

// WalletAccount is the account of record for a bettor's balance.
type WalletAccount struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	KYCStatus KYCStatus       `json:"kyc_status"`
	Limits    Limits          `json:"limits"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// EntryKind is the direction of a ledger entry.
type EntryKind string

const (
	EntryCredit EntryKind = "CREDIT"
	EntryDebit  EntryKind = "DEBIT"
)

// Cause is the business event behind a balance mutation.
type Cause string

const (
	CauseDeposit    Cause = "DEPOSIT"
	CauseWithdrawal Cause = "WITHDRAWAL"
	CauseBetPlaced  Cause = "BET_PLACED"
	CauseCashOut    Cause = "CASH_OUT"
	CauseBetWon     Cause = "BET_WON"
)

// LedgerEntry is the audit record paired with every balance mutation.
type LedgerEntry struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Kind         EntryKind       `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Cause        Cause           `json:"cause"`
	Reference    string          `json:"reference"`
	CreatedAt    time.Time       `json:"created_at"`
}
