package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

const (
	fraudHistoryPrefix = "fraud:history:"
	fraudHistoryTTL    = 30 * 24 * time.Hour
	maxTxRetries       = 10
)

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// FraudHistory stores CustomerHistory as JSON and updates it with optimistic
// WATCH/MULTI transactions, retrying when another writer wins.
type FraudHistory struct {
	client redis.UniversalClient
}

func NewFraudHistory(client redis.UniversalClient) *FraudHistory {
	return &FraudHistory{client: client}
}

func (s *FraudHistory) Get(ctx context.Context, key string) (models.CustomerHistory, error) {
	return s.read(ctx, s.client, fraudHistoryPrefix+key)
}

func (s *FraudHistory) Update(ctx context.Context, key string, fn func(*models.CustomerHistory)) error {
	redisKey := fraudHistoryPrefix + key

	txf := func(tx *redis.Tx) error {
		h, err := s.read(ctx, tx, redisKey)
		if err != nil {
			return err
		}
		fn(&h)
		data, err := json.Marshal(h)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, data, fraudHistoryTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, redisKey)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("update fraud history %s: %w", key, err)
	}
	return fmt.Errorf("update fraud history %s: too much contention", key)
}

func (s *FraudHistory) read(ctx context.Context, c getter, redisKey string) (models.CustomerHistory, error) {
	var h models.CustomerHistory
	data, err := c.Get(ctx, redisKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return h, nil
		}
		return h, err
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("decode fraud history: %w", err)
	}
	return h, nil
}
