// Package memory holds in-process implementations of the repository contracts,
// used when no database is configured and in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

type TransactionLogRepository struct {
	mu      sync.RWMutex
	entries []models.TransactionLog
	events  map[string]struct{}
}

func NewTransactionLogRepository() *TransactionLogRepository {
	return &TransactionLogRepository{events: make(map[string]struct{})}
}

func (r *TransactionLogRepository) Append(ctx context.Context, entry *models.TransactionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	if entry.EventID != "" {
		r.events[eventKey(entry.Provider, entry.EventID)] = struct{}{}
	}
	return nil
}

func (r *TransactionLogRepository) AppendIfAbsent(ctx context.Context, entry *models.TransactionLog) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.EventID != "" {
		key := eventKey(entry.Provider, entry.EventID)
		if _, seen := r.events[key]; seen {
			return false, nil
		}
		r.events[key] = struct{}{}
	}
	r.entries = append(r.entries, *entry)
	return true, nil
}

func (r *TransactionLogRepository) HasEvent(ctx context.Context, provider, eventID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.events[eventKey(provider, eventID)]
	return ok, nil
}

func (r *TransactionLogRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]models.TransactionLog, error) {
	return r.filter(func(e models.TransactionLog) bool { return e.TransactionID == transactionID }), nil
}

func (r *TransactionLogRepository) ListByProvider(ctx context.Context, provider string) ([]models.TransactionLog, error) {
	return r.filter(func(e models.TransactionLog) bool { return e.Provider == provider }), nil
}

func (r *TransactionLogRepository) ListByCustomer(ctx context.Context, customerID string) ([]models.TransactionLog, error) {
	return r.filter(func(e models.TransactionLog) bool { return e.CustomerID == customerID }), nil
}

func (r *TransactionLogRepository) ListByDateRange(ctx context.Context, provider string, start, end time.Time) ([]models.TransactionLog, error) {
	return r.filter(func(e models.TransactionLog) bool {
		if provider != "" && e.Provider != provider {
			return false
		}
		return !e.CreatedAt.Before(start) && e.CreatedAt.Before(end)
	}), nil
}

func (r *TransactionLogRepository) filter(keep func(models.TransactionLog) bool) []models.TransactionLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.TransactionLog
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func eventKey(provider, eventID string) string {
	return provider + "\x00" + eventID
}
