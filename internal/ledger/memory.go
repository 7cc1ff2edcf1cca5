package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for dry runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	trades map[string]Trade
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trades: make(map[string]Trade)}
}

func (m *MemoryStore) Insert(_ context.Context, t Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.trades[t.ID]; exists {
		return fmt.Errorf("trade %s already exists", t.ID)
	}
	m.trades[t.ID] = t
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trades[id]
	if !ok {
		return Trade{}, ErrTradeNotFound
	}
	return t, nil
}

func (m *MemoryStore) Close(_ context.Context, id string, c Closing) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok || t.Status != StatusOpen {
		return false, nil
	}
	m.trades[id] = c.Apply(t)
	return true, nil
}

func (m *MemoryStore) Open(_ context.Context, symbol string) ([]Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Trade
	for _, t := range m.trades {
		if t.Status == StatusOpen && (symbol == "" || t.Symbol == symbol) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	return out, nil
}

func (m *MemoryStore) Closed(_ context.Context, symbol string, limit int) ([]Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Trade
	for _, t := range m.trades {
		if t.Status == StatusClosed && (symbol == "" || t.Symbol == symbol) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.After(*out[j].ClosedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
