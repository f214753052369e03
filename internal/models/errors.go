package models

import "errors"

// Error taxonomy shared by every layer. Callers match with errors.Is.
var (
	ErrEmptySlip            = errors.New("slip has no selections")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidTransition    = errors.New("invalid bet state transition")
	ErrInvalidOutcome       = errors.New("unknown settlement outcome")
	ErrCashOutUnavailable   = errors.New("cash out unavailable")
	ErrOddsChanged          = errors.New("odds changed")
	ErrBusy                 = errors.New("account busy, retry later")
	ErrKYCRequired          = errors.New("kyc verification required")
	ErrLimitExceeded        = errors.New("responsible gaming limit exceeded")
	ErrInvalidStake         = errors.New("stake must be positive")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidOdds          = errors.New("odds must be greater than 1")
	ErrConflictingSelection = errors.New("conflicting selection")
	ErrTooManySelections    = errors.New("too many selections")
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountExists        = errors.New("account already exists")
	ErrBetNotFound          = errors.New("bet not found")
	ErrBetExists            = errors.New("bet already exists")
	ErrNotQuotable          = errors.New("selection not quotable")
	ErrInvalidKYCTransition = errors.New("invalid kyc status transition")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrEmptySlip, "EMPTY_SLIP"},
	{ErrInsufficientFunds, "INSUFFICIENT_FUNDS"},
	{ErrInvalidTransition, "INVALID_TRANSITION"},
	{ErrInvalidOutcome, "INVALID_OUTCOME"},
	{ErrCashOutUnavailable, "CASH_OUT_UNAVAILABLE"},
	{ErrOddsChanged, "ODDS_CHANGED"},
	{ErrBusy, "BUSY"},
	{ErrKYCRequired, "KYC_REQUIRED"},
	{ErrLimitExceeded, "LIMIT_EXCEEDED"},
	{ErrInvalidStake, "INVALID_STAKE"},
	{ErrInvalidAmount, "INVALID_AMOUNT"},
	{ErrInvalidOdds, "INVALID_ODDS"},
	{ErrConflictingSelection, "CONFLICTING_SELECTION"},
	{ErrTooManySelections, "TOO_MANY_SELECTIONS"},
	{ErrAccountNotFound, "ACCOUNT_NOT_FOUND"},
	{ErrAccountExists, "ACCOUNT_EXISTS"},
	{ErrBetNotFound, "BET_NOT_FOUND"},
	{ErrBetExists, "BET_EXISTS"},
	{ErrNotQuotable, "NOT_QUOTABLE"},
	{ErrInvalidKYCTransition, "INVALID_KYC_TRANSITION"},
}

// Code returns a stable machine-readable code for err, "INTERNAL" when err
// matches no known kind.
func Code(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}
