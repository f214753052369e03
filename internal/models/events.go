package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetEventType names a lifecycle event published after a committed change.
type BetEventType string

const (
	EventBetPlaced    BetEventType = "bet.placed"
	EventBetCashedOut BetEventType = "bet.cashed_out"
	EventBetSettled   BetEventType = "bet.settled"
)

// BetEvent is the message published on the bet events topic.
type BetEvent struct {
	Type      BetEventType     `json:"type"`
	BetID     string           `json:"bet_id"`
	AccountID string           `json:"account_id"`
	Status    BetStatus        `json:"status"`
	Stake     decimal.Decimal  `json:"stake"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewBetEvent builds an event from the bet's committed state.
func NewBetEvent(t BetEventType, bet Bet, amount *decimal.Decimal, ts time.Time) BetEvent {
	return BetEvent{
		Type:      t,
		BetID:     bet.ID,
		AccountID: bet.AccountID,
		Status:    bet.Status,
		Stake:     bet.Stake,
		Amount:    amount,
		Timestamp: ts,
	}
}
