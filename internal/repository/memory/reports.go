package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

type ReportRepository struct {
	mu      sync.RWMutex
	reports []models.ReconciliationReport
}

func NewReportRepository() *ReportRepository {
	return &ReportRepository{}
}

func (r *ReportRepository) Save(ctx context.Context, report *models.ReconciliationReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, *report)
	return nil
}

func (r *ReportRepository) List(ctx context.Context, provider string, limit int) ([]models.ReconciliationReport, error) {
	r.mu.RLock()
	out := make([]models.ReconciliationReport, 0, len(r.reports))
	for _, rep := range r.reports {
		if provider == "" || rep.Provider == provider {
			out = append(out, rep)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type FraudBlockRepository struct {
	mu     sync.RWMutex
	blocks []models.FraudBlock
}

func NewFraudBlockRepository() *FraudBlockRepository {
	return &FraudBlockRepository{}
}

func (r *FraudBlockRepository) Save(ctx context.Context, block *models.FraudBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, *block)
	return nil
}

func (r *FraudBlockRepository) ListByCustomer(ctx context.Context, customerKey string) ([]models.FraudBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.FraudBlock
	for _, b := range r.blocks {
		if b.CustomerKey == customerKey {
			out = append(out, b)
		}
	}
	return out, nil
}

type idempotencyEntry struct {
	value     []byte
	expiresAt time.Time
}

// IdempotencyStore keeps cached responses until their TTL passes.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{entries: make(map[string]idempotencyEntry)}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *IdempotencyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = idempotencyEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}
