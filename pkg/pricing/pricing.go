package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

var one = decimal.NewFromInt(1)

// Params holds the cash-out pricing configuration.
type Params struct {
	Margin        decimal.Decimal // House margin factor applied to fair value (0.92 keeps 92%)
	FloorFraction decimal.Decimal // Minimum cash-out as a fraction of stake (0.10 = 10%)
	Precision     int32           // Currency minor-unit precision (2 = cents)
}

// DefaultParams returns the illustrative production defaults.
func DefaultParams() Params {
	return Params{
		Margin:        decimal.RequireFromString("0.92"),
		FloorFraction: decimal.RequireFromString("0.10"),
		Precision:     2,
	}
}

// Validate checks margin ∈ (0,1), floor ∈ [0,1) and a non-negative precision.
func (p Params) Validate() error {
	if p.Margin.LessThanOrEqual(decimal.Zero) || p.Margin.GreaterThanOrEqual(one) {
		return fmt.Errorf("margin must be in (0,1): %s", p.Margin.String())
	}
	if p.FloorFraction.IsNegative() || p.FloorFraction.GreaterThanOrEqual(one) {
		return fmt.Errorf("floor fraction must be in [0,1): %s", p.FloorFraction.String())
	}
	if p.Precision < 0 {
		return fmt.Errorf("precision must be non-negative: %d", p.Precision)
	}
	return nil
}

// Engine prices slips and open bets. It holds no state beyond its params and
// never reads the clock, so equal inputs always give equal outputs.
type Engine struct {
	params Params
}

// NewEngine creates a pricing engine with validated params.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pricing params: %w", err)
	}
	return &Engine{params: params}, nil
}

// Params returns the engine configuration.
func (e *Engine) Params() Params {
	return e.params
}

// CombinedOdds multiplies decimal odds. Multiplication is exact in decimal, so
// the result does not depend on order.
func CombinedOdds(odds ...decimal.Decimal) (decimal.Decimal, error) {
	if len(odds) == 0 {
		return decimal.Zero, models.ErrEmptySlip
	}

	combined := one
	for _, o := range odds {
		if o.LessThanOrEqual(one) {
			return decimal.Zero, fmt.Errorf("%w: %s", models.ErrInvalidOdds, o.String())
		}
		combined = combined.Mul(o)
	}
	return combined, nil
}

// EntryOdds returns the combined snapshot odds of slip entries.
func EntryOdds(entries []models.SlipEntry) (decimal.Decimal, error) {
	odds := make([]decimal.Decimal, len(entries))
	for i, e := range entries {
		odds[i] = e.SnapshotOdds
	}
	return CombinedOdds(odds...)
}

// LegOdds returns the combined locked odds of bet legs.
func LegOdds(legs []models.BetLeg) (decimal.Decimal, error) {
	odds := make([]decimal.Decimal, len(legs))
	for i, l := range legs {
		odds[i] = l.LockedOdds
	}
	return CombinedOdds(odds...)
}

// PotentialPayout returns stake * combinedOdds rounded half-even to the
// currency precision.
func (e *Engine) PotentialPayout(stake, combinedOdds decimal.Decimal) decimal.Decimal {
	return stake.Mul(combinedOdds).RoundBank(e.params.Precision)
}

// QuoteFunc returns the current odds of a selection or ErrNotQuotable.
type QuoteFunc func(selectionID string) (decimal.Decimal, error)

// CurrentCombinedOdds reprices every leg against current quotes. A single
// unquotable leg makes the whole bet unavailable for cash-out.
func CurrentCombinedOdds(legs []models.BetLeg, quote QuoteFunc) (decimal.Decimal, error) {
	if len(legs) == 0 {
		return decimal.Zero, models.ErrEmptySlip
	}

	odds := make([]decimal.Decimal, len(legs))
	for i, leg := range legs {
		o, err := quote(leg.SelectionID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: selection %s: %v", models.ErrCashOutUnavailable, leg.SelectionID, err)
		}
		odds[i] = o
	}

	combined, err := CombinedOdds(odds...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", models.ErrCashOutUnavailable, err)
	}
	return combined, nil
}

// CashOutValue computes the present value of a pending bet:
//
//	fair  = stake * lockedOdds / currentOdds
//	value = fair * margin, clamped to [stake*floor, stake*lockedOdds]
//
// The result is rounded half-even; the bounds are rounded inward so the
// rounded value never leaves them.
func (e *Engine) CashOutValue(stake, lockedOdds, currentOdds decimal.Decimal) (decimal.Decimal, error) {
	if !stake.IsPositive() {
		return decimal.Zero, models.ErrInvalidStake
	}
	if lockedOdds.LessThanOrEqual(one) {
		return decimal.Zero, fmt.Errorf("%w: locked %s", models.ErrInvalidOdds, lockedOdds.String())
	}
	if currentOdds.LessThanOrEqual(one) {
		return decimal.Zero, fmt.Errorf("%w: current odds %s", models.ErrCashOutUnavailable, currentOdds.String())
	}

	fair := stake.Mul(lockedOdds).Div(currentOdds)
	value := fair.Mul(e.params.Margin).RoundBank(e.params.Precision)

	floor := stake.Mul(e.params.FloorFraction).RoundCeil(e.params.Precision)
	ceiling := stake.Mul(lockedOdds).RoundFloor(e.params.Precision)

	if value.LessThan(floor) {
		value = floor
	}
	if value.GreaterThan(ceiling) {
		value = ceiling
	}
	return value, nil
}

// BetCashOutValue prices a bet against current quotes for all its legs.
func (e *Engine) BetCashOutValue(bet models.Bet, quote QuoteFunc) (decimal.Decimal, error) {
	current, err := CurrentCombinedOdds(bet.Legs, quote)
	if err != nil {
		return decimal.Zero, err
	}
	return e.CashOutValue(bet.Stake, bet.CombinedOdds, current)
}

// WithinTolerance reports whether live odds differ from quoted odds by at most
// the given relative tolerance.
func WithinTolerance(quoted, live, tolerance decimal.Decimal) bool {
	if quoted.IsZero() {
		return false
	}
	drift := live.Sub(quoted).Abs().Div(quoted)
	return drift.LessThanOrEqual(tolerance)
}
