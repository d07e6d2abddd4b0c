package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/interfaces"
	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

const (
	IntentTopic   = "payment.intent.submitted"
	intentGroupID = "payment-core"
	intentSeenTTL = 24 * time.Hour
)

// IntentMessage is the payload of an asynchronously submitted payment.
type IntentMessage struct {
	IntentID string               `json:"intent_id"`
	Intent   models.PaymentIntent `json:"intent"`
}

type IntentProcessor interface {
	CreatePayment(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentResult, error)
}

// IntentConsumer feeds intents published on Kafka into the payment service.
// Each intent id is processed at most once per intentSeenTTL.
type IntentConsumer struct {
	brokers  []string
	topic    string
	payments IntentProcessor
	locker   interfaces.Locker
	seen     interfaces.IdempotencyStore
}

func NewIntentConsumer(brokers []string, payments IntentProcessor, locker interfaces.Locker, seen interfaces.IdempotencyStore) *IntentConsumer {
	return &IntentConsumer{
		brokers:  brokers,
		topic:    IntentTopic,
		payments: payments,
		locker:   locker,
		seen:     seen,
	}
}

func (c *IntentConsumer) Run(ctx context.Context) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.brokers,
		Topic:    c.topic,
		GroupID:  intentGroupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	telemetry.Logger.Info("Started consuming payment intents", zap.String("topic", c.topic))

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				telemetry.Logger.Info("Intent consumer stopped")
				return
			}
			telemetry.Logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		if err := c.HandleMessage(ctx, msg.Value); err != nil {
			telemetry.Logger.Error("Error processing payment intent",
				zap.String("key", string(msg.Key)),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

// HandleMessage processes one intent message. Malformed, invalid and blocked
// intents are logged and dropped; redelivered intent ids are skipped.
func (c *IntentConsumer) HandleMessage(ctx context.Context, value []byte) error {
	var msg IntentMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("decode intent: %w", err)
	}
	if msg.IntentID == "" {
		return errors.New("intent message without intent_id")
	}

	release, err := c.locker.Acquire(ctx, "intent:"+msg.IntentID)
	if err != nil {
		return fmt.Errorf("intent %s is already being processed: %w", msg.IntentID, err)
	}
	defer release()

	seenKey := "intent:" + msg.IntentID
	if _, ok, err := c.seen.Get(ctx, seenKey); err != nil {
		return fmt.Errorf("check intent %s: %w", msg.IntentID, err)
	} else if ok {
		telemetry.Logger.Info("Skipping already processed intent", zap.String("intent_id", msg.IntentID))
		return nil
	}

	telemetry.Logger.Info("Processing payment intent",
		zap.String("intent_id", msg.IntentID),
		zap.String("customer", msg.Intent.Customer.Key()),
		zap.String("amount", msg.Intent.Amount.String()),
	)

	result, err := c.payments.CreatePayment(ctx, &msg.Intent)
	if err != nil {
		var blocked *FraudBlockedError
		if !errors.As(err, &blocked) && !errors.Is(err, ErrValidation) {
			return err
		}
		telemetry.Logger.Warn("Payment intent rejected", zap.String("intent_id", msg.IntentID), zap.Error(err))
		result = &models.PaymentResult{Success: false, Status: models.StatusFailed, Error: err.Error()}
	}

	record, _ := json.Marshal(result)
	if err := c.seen.Set(ctx, seenKey, record, intentSeenTTL); err != nil {
		telemetry.Logger.Error("Failed to mark intent processed", zap.String("intent_id", msg.IntentID), zap.Error(err))
	}

	telemetry.Logger.Info("Payment intent processed",
		zap.String("intent_id", msg.IntentID),
		zap.Bool("success", result.Success),
		zap.String("provider", result.Provider),
		zap.String("transaction_id", result.TransactionID),
	)
	return nil
}
