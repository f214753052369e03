package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus is the lifecycle state of a bet.
type BetStatus string

const (
	BetPending   BetStatus = "PENDING"
	BetWon       BetStatus = "WON"
	BetLost      BetStatus = "LOST"
	BetCashedOut BetStatus = "CASHED_OUT"
)

// Terminal reports whether no further transition may leave s.
func (s BetStatus) Terminal() bool {
	return s == BetWon || s == BetLost || s == BetCashedOut
}

// Outcome is the result reported by the settlement authority.
type Outcome string

const (
	OutcomeWon  Outcome = "WON"
	OutcomeLost Outcome = "LOST"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeWon || o == OutcomeLost
}

// BetLeg is one selection of a bet with the odds locked at commit time.
type BetLeg struct {
	SelectionID string          `json:"selection_id"`
	MarketID    string          `json:"market_id"`
	EventID     string          `json:"event_id"`
	Name        string          `json:"name"`
	LockedOdds  decimal.Decimal `json:"locked_odds"`
}

// Bet is a committed, funded wager. Only Status, SettledAt and CashOutValue
// change after creation.
type Bet struct {
	ID              string           `json:"id"`
	AccountID       string           `json:"account_id"`
	Legs            []BetLeg         `json:"legs"`
	Stake           decimal.Decimal  `json:"stake"`
	CombinedOdds    decimal.Decimal  `json:"combined_odds"`
	PotentialPayout decimal.Decimal  `json:"potential_payout"`
	Status          BetStatus        `json:"status"`
	PlacedAt        time.Time        `json:"placed_at"`
	SettledAt       *time.Time       `json:"settled_at,omitempty"`
	CashOutValue    *decimal.Decimal `json:"cash_out_value,omitempty"`
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (b Bet) Clone() Bet {
	out := b
	out.Legs = append([]BetLeg(nil), b.Legs...)
	if b.SettledAt != nil {
		t := *b.SettledAt
		out.SettledAt = &t
	}
	if b.CashOutValue != nil {
		v := *b.CashOutValue
		out.CashOutValue = &v
	}
	return out
}

// TouchesMarket reports whether any leg belongs to marketID.
func (b Bet) TouchesMarket(marketID string) bool {
	for _, leg := range b.Legs {
		if leg.MarketID == marketID {
			return true
		}
	}
	return false
}

// CashOutOffer is the current cash-out quote for a pending bet.
type CashOutOffer struct {
	BetID     string           `json:"bet_id"`
	Value     *decimal.Decimal `json:"value,omitempty"`
	Available bool             `json:"available"`
	Reason    string           `json:"reason,omitempty"`
}

// MarketExposure aggregates pending bets that include a market.
type MarketExposure struct {
	MarketID   string          `json:"market_id"`
	OpenBets   int             `json:"open_bets"`
	TotalStake decimal.Decimal `json:"total_stake"`
	Liability  decimal.Decimal `json:"liability"`
}
