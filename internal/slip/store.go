package slip

import (
	"context"
	"sync"
)

// MemoryStore keeps slips per bettor session in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	slips map[string]Slip
}

// NewMemoryStore creates an empty session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slips: make(map[string]Slip)}
}

// Get returns the session's slip, empty if none exists.
func (m *MemoryStore) Get(_ context.Context, sessionID string) (Slip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slips[sessionID], nil
}

// Update replaces the session's slip with fn's result. fn runs under the
// store lock, so concurrent updates of one session are serialized.
func (m *MemoryStore) Update(_ context.Context, sessionID string, fn func(Slip) (Slip, error)) (Slip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fn(m.slips[sessionID])
	if err != nil {
		return m.slips[sessionID], err
	}
	if next.IsEmpty() {
		delete(m.slips, sessionID)
	} else {
		m.slips[sessionID] = next
	}
	return next, nil
}

// Delete discards the session's slip.
func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slips, sessionID)
	return nil
}
