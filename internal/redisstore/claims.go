package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	webhookClaimPrefix = "webhook:event:"
	idempotencyPrefix  = "idempotency:"
)

type WebhookClaims struct {
	client redis.UniversalClient
}

func NewWebhookClaims(client redis.UniversalClient) *WebhookClaims {
	return &WebhookClaims{client: client}
}

func (s *WebhookClaims) Claim(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, claimKey(provider, eventID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim webhook %s/%s: %w", provider, eventID, err)
	}
	return ok, nil
}

func (s *WebhookClaims) Release(ctx context.Context, provider, eventID string) error {
	return s.client.Del(ctx, claimKey(provider, eventID)).Err()
}

func claimKey(provider, eventID string) string {
	return webhookClaimPrefix + provider + ":" + eventID
}

// IdempotencyStore caches serialized responses under their idempotency key.
type IdempotencyStore struct {
	client redis.UniversalClient
}

func NewIdempotencyStore(client redis.UniversalClient) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *IdempotencyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, idempotencyPrefix+key, value, ttl).Err()
}
