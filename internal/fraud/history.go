package fraud

import (
	"context"
	"sync"

	"github.com/akylbek/payment-system/payment-core/internal/lock"
	"github.com/akylbek/payment-system/payment-core/internal/models"
)

// MemoryHistory is an in-process FraudHistoryStore. Updates for one key are
// serialized through a keyed mutex; other keys are unaffected.
type MemoryHistory struct {
	locks *lock.KeyedMutex

	mu      sync.RWMutex
	entries map[string]models.CustomerHistory
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{
		locks:   lock.NewKeyedMutex(),
		entries: make(map[string]models.CustomerHistory),
	}
}

func (m *MemoryHistory) Get(ctx context.Context, key string) (models.CustomerHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[key], nil
}

func (m *MemoryHistory) Update(ctx context.Context, key string, fn func(*models.CustomerHistory)) error {
	release, err := m.locks.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	m.mu.RLock()
	h := m.entries[key]
	m.mu.RUnlock()

	fn(&h)

	m.mu.Lock()
	m.entries[key] = h
	m.mu.Unlock()
	return nil
}
