package feed

import (
	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

// Normalize translates an upstream market update into price updates. Markets
// that are suspended or finished yield suspended updates; selections priced
// at or below 1 are dropped.
func Normalize(mu models.MarketUpdate) []models.PriceUpdate {
	suspended := mu.Status == models.MarketSuspended || mu.Status == models.MarketFinished
	one := decimal.NewFromInt(1)

	updates := make([]models.PriceUpdate, 0, len(mu.Selections))
	for _, sel := range mu.Selections {
		if sel.SelectionID == "" {
			continue
		}
		u := models.PriceUpdate{
			SelectionID: sel.SelectionID,
			MarketID:    mu.MarketID,
			EventID:     mu.EventID,
			Name:        sel.Name,
			Timestamp:   mu.UpdatedAt,
			Suspended:   suspended,
		}
		if !suspended {
			if sel.Odds.LessThanOrEqual(one) {
				continue
			}
			u.Odds = sel.Odds
		}
		updates = append(updates, u)
	}
	return updates
}
