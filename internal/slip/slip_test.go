package slip

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

func selection(id, market, odds string) models.Selection {
	return models.Selection{
		ID:       id,
		MarketID: market,
		EventID:  "e-" + market,
		Name:     "selection " + id,
		Odds:     decimal.RequireFromString(odds),
	}
}

func TestToggle_AddsSnapshot(t *testing.T) {
	sel := selection("s1", "m1", "1.65")

	s := Toggle(Slip{}, sel)

	require.Equal(t, 1, s.Len())
	entry := s.Entries()[0]
	assert.Equal(t, "s1", entry.SelectionID)
	assert.Equal(t, "m1", entry.MarketID)
	assert.Equal(t, "e-m1", entry.EventID)
	assert.True(t, sel.Odds.Equal(entry.SnapshotOdds))
}

func TestToggle_RemovesExisting(t *testing.T) {
	s := Toggle(Slip{}, selection("s1", "m1", "1.65"))
	s = Toggle(s, selection("s3", "m2", "2.10"))

	s = Toggle(s, selection("s1", "m1", "1.80"))

	assert.Equal(t, []string{"s3"}, s.SelectionIDs())
}

func TestToggle_Immutable(t *testing.T) {
	original := Toggle(Slip{}, selection("s1", "m1", "1.65"))

	added := Toggle(original, selection("s3", "m2", "2.10"))
	removed := Remove(original, "s1")

	assert.Equal(t, 1, original.Len())
	assert.Equal(t, 2, added.Len())
	assert.True(t, removed.IsEmpty())

	entries := original.Entries()
	entries[0].SelectionID = "mutated"
	assert.True(t, original.Contains("s1"))
}

func TestSnapshotIsNotLive(t *testing.T) {
	sel := selection("s1", "m1", "1.65")
	s := Toggle(Slip{}, sel)

	sel.Odds = decimal.RequireFromString("3.00")

	assert.True(t, decimal.RequireFromString("1.65").Equal(s.Entries()[0].SnapshotOdds))
}

func TestRemove_Absent(t *testing.T) {
	s := Toggle(Slip{}, selection("s1", "m1", "1.65"))

	after := Remove(s, "nope")

	assert.Equal(t, s.SelectionIDs(), after.SelectionIDs())
}

func TestClear(t *testing.T) {
	s := Toggle(Slip{}, selection("s1", "m1", "1.65"))
	s = Toggle(s, selection("s3", "m2", "2.10"))

	cleared := Clear(s)

	assert.True(t, cleared.IsEmpty())
	assert.Equal(t, 2, s.Len())
}

func TestCombinedOdds(t *testing.T) {
	assert.True(t, Slip{}.CombinedOdds().IsZero())

	s := Toggle(Slip{}, selection("s1", "m1", "1.65"))
	s = Toggle(s, selection("s3", "m2", "2.10"))

	assert.True(t, decimal.RequireFromString("3.465").Equal(s.CombinedOdds()))
}

func TestNew_DropsDuplicates(t *testing.T) {
	s := New(
		models.SlipEntry{SelectionID: "s1", SnapshotOdds: decimal.RequireFromString("1.5")},
		models.SlipEntry{SelectionID: "s1", SnapshotOdds: decimal.RequireFromString("1.9")},
	)

	require.Equal(t, 1, s.Len())
	assert.True(t, decimal.RequireFromString("1.5").Equal(s.Entries()[0].SnapshotOdds))
}

func TestBuilder_SameMarketRule(t *testing.T) {
	b := NewBuilder(SameMarketRule)
	s, err := b.Toggle(Slip{}, selection("s3", "m2", "2.10"))
	require.NoError(t, err)

	_, err = b.Toggle(s, selection("s4", "m2", "3.40"))
	assert.ErrorIs(t, err, models.ErrConflictingSelection)

	// Toggling the existing selection out is never blocked
	s, err = b.Toggle(s, selection("s3", "m2", "2.10"))
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())
}

func TestBuilder_NoRulesAllowsSameMarket(t *testing.T) {
	b := NewBuilder()
	s, err := b.Toggle(Slip{}, selection("s3", "m2", "2.10"))
	require.NoError(t, err)

	s, err = b.Toggle(s, selection("s4", "m2", "3.40"))

	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestBuilder_MaxLegsAndOdds(t *testing.T) {
	b := NewBuilder(ValidOddsRule, MaxLegsRule(2))
	s, err := b.Toggle(Slip{}, selection("a", "m1", "1.5"))
	require.NoError(t, err)
	s, err = b.Toggle(s, selection("b", "m2", "1.5"))
	require.NoError(t, err)

	_, err = b.Toggle(s, selection("c", "m3", "1.5"))
	assert.ErrorIs(t, err, models.ErrTooManySelections)
	assert.NotErrorIs(t, err, models.ErrConflictingSelection)
	assert.Equal(t, "TOO_MANY_SELECTIONS", models.Code(err))

	_, err = b.Toggle(Slip{}, selection("d", "m4", "1.0"))
	assert.ErrorIs(t, err, models.ErrInvalidOdds)
}

func TestSlip_JSON(t *testing.T) {
	s := Toggle(Slip{}, selection("s1", "m1", "1.65"))
	s = Toggle(s, selection("s3", "m2", "2.10"))

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded Slip
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, s.SelectionIDs(), decoded.SelectionIDs())
	assert.True(t, s.CombinedOdds().Equal(decoded.CombinedOdds()))

	empty, err := json.Marshal(Slip{})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(empty))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s, err := store.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())

	_, err = store.Update(ctx, "session-1", func(s Slip) (Slip, error) {
		return Toggle(s, selection("s1", "m1", "1.65")), nil
	})
	require.NoError(t, err)

	s, err = store.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, s.SelectionIDs())

	require.NoError(t, store.Delete(ctx, "session-1"))
	s, err = store.Get(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())
}

func TestMemoryStore_ConcurrentToggles(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = store.Update(ctx, "s", func(s Slip) (Slip, error) {
				return Toggle(s, selection(id, "m-"+id, "1.5")), nil
			})
		}(id)
	}
	wg.Wait()

	s, err := store.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, ids, s.SelectionIDs())
}
