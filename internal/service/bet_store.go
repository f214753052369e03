package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

// MemoryBetStore is an in-process BetStore.
type MemoryBetStore struct {
	mu        sync.RWMutex
	bets      map[string]models.Bet
	byAccount map[string][]string
}

// NewMemoryBetStore creates an empty store
func NewMemoryBetStore() *MemoryBetStore {
	return &MemoryBetStore{
		bets:      make(map[string]models.Bet),
		byAccount: make(map[string][]string),
	}
}

func (m *MemoryBetStore) Create(_ context.Context, bet models.Bet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bets[bet.ID]; ok {
		return fmt.Errorf("bet %s: %w", bet.ID, models.ErrBetExists)
	}
	m.bets[bet.ID] = bet.Clone()
	m.byAccount[bet.AccountID] = append(m.byAccount[bet.AccountID], bet.ID)
	return nil
}

func (m *MemoryBetStore) Get(_ context.Context, betID string) (models.Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bet, ok := m.bets[betID]
	if !ok {
		return models.Bet{}, fmt.Errorf("bet %s: %w", betID, models.ErrBetNotFound)
	}
	return bet.Clone(), nil
}

func (m *MemoryBetStore) Update(_ context.Context, bet models.Bet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bets[bet.ID]; !ok {
		return fmt.Errorf("bet %s: %w", bet.ID, models.ErrBetNotFound)
	}
	m.bets[bet.ID] = bet.Clone()
	return nil
}

// ListByAccount returns an account's bets in placement order.
func (m *MemoryBetStore) ListByAccount(_ context.Context, accountID string) ([]models.Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byAccount[accountID]
	out := make([]models.Bet, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.bets[id].Clone())
	}
	return out, nil
}

func (m *MemoryBetStore) ListPending(_ context.Context) ([]models.Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Bet
	for _, bet := range m.bets {
		if bet.Status == models.BetPending {
			out = append(out, bet.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
