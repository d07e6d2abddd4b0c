package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

// FraudHistoryStore holds per-customer fraud history. Update must apply fn
// atomically for a key; updates for different keys must not block each other.
type FraudHistoryStore interface {
	Get(ctx context.Context, key string) (models.CustomerHistory, error)
	Update(ctx context.Context, key string, fn func(*models.CustomerHistory)) error
}

// WebhookClaimStore deduplicates webhook deliveries by (provider, event id).
type WebhookClaimStore interface {
	// Claim returns false when the event was already claimed.
	Claim(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, provider, eventID string) error
}

// IdempotencyStore caches HTTP responses keyed by the client's Idempotency-Key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Locker serializes work for a single key across goroutines (or processes).
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
