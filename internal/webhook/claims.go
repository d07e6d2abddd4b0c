package webhook

import (
	"context"
	"sync"
	"time"
)

// MemoryClaims is an in-process WebhookClaimStore.
type MemoryClaims struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryClaims() *MemoryClaims {
	return &MemoryClaims{claims: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryClaims) Claim(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error) {
	key := provider + ":" + eventID
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.claims[key] = now.Add(ttl)
	m.sweep(now)
	return true, nil
}

func (m *MemoryClaims) Release(ctx context.Context, provider, eventID string) error {
	m.mu.Lock()
	delete(m.claims, provider+":"+eventID)
	m.mu.Unlock()
	return nil
}

// sweep drops expired claims once the map grows; callers hold mu.
func (m *MemoryClaims) sweep(now time.Time) {
	if len(m.claims) < 10000 {
		return
	}
	for k, exp := range m.claims {
		if !now.Before(exp) {
			delete(m.claims, k)
		}
	}
}
