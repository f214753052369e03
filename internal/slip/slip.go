package slip

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
	"github.com/cypherlabdev/bet-engine-service/pkg/pricing"
)

// Slip is an immutable set of pending selections keyed by selection id.
// Every operation returns a new Slip and leaves the receiver untouched.
type Slip struct {
	entries []models.SlipEntry
}

// New builds a slip from entries, keeping the first entry for a repeated id.
func New(entries ...models.SlipEntry) Slip {
	s := Slip{}
	for _, e := range entries {
		if s.Contains(e.SelectionID) {
			continue
		}
		s.entries = append(s.entries, e)
	}
	return s
}

// Entries returns a copy of the slip entries in insertion order.
func (s Slip) Entries() []models.SlipEntry {
	return append([]models.SlipEntry(nil), s.entries...)
}

// Len returns the number of selections.
func (s Slip) Len() int {
	return len(s.entries)
}

// IsEmpty reports whether the slip has no selections.
func (s Slip) IsEmpty() bool {
	return len(s.entries) == 0
}

// Contains reports whether selectionID is on the slip.
func (s Slip) Contains(selectionID string) bool {
	return s.index(selectionID) >= 0
}

func (s Slip) index(selectionID string) int {
	for i, e := range s.entries {
		if e.SelectionID == selectionID {
			return i
		}
	}
	return -1
}

// CombinedOdds returns the product of snapshot odds, zero for an empty slip.
func (s Slip) CombinedOdds() decimal.Decimal {
	combined, err := pricing.EntryOdds(s.entries)
	if err != nil {
		return decimal.Zero
	}
	return combined
}

// SelectionIDs returns the sorted selection ids on the slip.
func (s Slip) SelectionIDs() []string {
	ids := make([]string, len(s.entries))
	for i, e := range s.entries {
		ids[i] = e.SelectionID
	}
	sort.Strings(ids)
	return ids
}

// Toggle removes the selection if present, otherwise appends it with a
// snapshot of its current odds.
func Toggle(s Slip, sel models.Selection) Slip {
	if s.Contains(sel.ID) {
		return Remove(s, sel.ID)
	}
	entries := make([]models.SlipEntry, 0, len(s.entries)+1)
	entries = append(entries, s.entries...)
	entries = append(entries, models.SlipEntry{
		SelectionID:  sel.ID,
		MarketID:     sel.MarketID,
		EventID:      sel.EventID,
		Name:         sel.Name,
		SnapshotOdds: sel.Odds,
	})
	return Slip{entries: entries}
}

// Remove drops selectionID from the slip; removing an absent id is a no-op.
func Remove(s Slip, selectionID string) Slip {
	i := s.index(selectionID)
	if i < 0 {
		return s
	}
	entries := make([]models.SlipEntry, 0, len(s.entries)-1)
	entries = append(entries, s.entries[:i]...)
	entries = append(entries, s.entries[i+1:]...)
	return Slip{entries: entries}
}

// Clear returns an empty slip.
func Clear(Slip) Slip {
	return Slip{}
}

// Rule validates adding sel to s. Rules are business policy supplied by the
// caller, not part of the slip structure.
type Rule func(s Slip, sel models.Selection) error

// SameMarketRule rejects a second selection from a market already on the slip.
func SameMarketRule(s Slip, sel models.Selection) error {
	for _, e := range s.entries {
		if e.MarketID == sel.MarketID && e.SelectionID != sel.ID {
			return fmt.Errorf("%w: market %s already has selection %s", models.ErrConflictingSelection, sel.MarketID, e.SelectionID)
		}
	}
	return nil
}

// MaxLegsRule caps the number of selections on a slip.
func MaxLegsRule(max int) Rule {
	return func(s Slip, sel models.Selection) error {
		if s.Len() >= max {
			return fmt.Errorf("%w: slip already has %d selections", models.ErrTooManySelections, max)
		}
		return nil
	}
}

// ValidOddsRule rejects selections whose odds are not above 1.
func ValidOddsRule(s Slip, sel models.Selection) error {
	if sel.Odds.LessThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: selection %s has odds %s", models.ErrInvalidOdds, sel.ID, sel.Odds.String())
	}
	return nil
}

// Builder applies policy rules before toggling a selection in. Toggling an
// existing selection out is always allowed.
type Builder struct {
	rules []Rule
}

// NewBuilder creates a slip builder with the given rules.
func NewBuilder(rules ...Rule) *Builder {
	return &Builder{rules: rules}
}

// Toggle validates and toggles sel on s.
func (b *Builder) Toggle(s Slip, sel models.Selection) (Slip, error) {
	if s.Contains(sel.ID) {
		return Remove(s, sel.ID), nil
	}
	for _, rule := range b.rules {
		if err := rule(s, sel); err != nil {
			return s, err
		}
	}
	return Toggle(s, sel), nil
}
