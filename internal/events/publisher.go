// Package events carries ledger activity to Kafka and alerts to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

const TransactionLoggedTopic = "payment.transaction.logged"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TransactionLogged is the event emitted for every appended ledger row.
type TransactionLogged struct {
	EntryID       string                 `json:"entry_id"`
	TransactionID string                 `json:"transaction_id"`
	Type          models.TransactionType `json:"type"`
	Provider      string                 `json:"provider"`
	Status        models.PaymentStatus   `json:"status"`
	Amount        models.Money           `json:"amount"`
	CustomerID    string                 `json:"customer_id,omitempty"`
	EventID       string                 `json:"event_id,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// KafkaPublisher writes TransactionLogged events keyed by transaction id, so
// all events of one transaction land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        TransactionLoggedTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) PublishTransactionLogged(ctx context.Context, entry *models.TransactionLog) error {
	value, err := json.Marshal(transactionLogged(entry))
	if err != nil {
		return fmt.Errorf("encode ledger event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.TransactionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(entry.Type)},
		},
	}); err != nil {
		return fmt.Errorf("publish ledger event %s: %w", entry.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher only logs. It stands in when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) PublishTransactionLogged(_ context.Context, entry *models.TransactionLog) error {
	telemetry.Logger.Debug("Ledger entry appended",
		zap.String("entry_id", entry.ID),
		zap.String("transaction_id", entry.TransactionID),
		zap.String("provider", entry.Provider),
		zap.String("status", string(entry.Status)),
	)
	return nil
}

func transactionLogged(entry *models.TransactionLog) TransactionLogged {
	return TransactionLogged{
		EntryID:       entry.ID,
		TransactionID: entry.TransactionID,
		Type:          entry.Type,
		Provider:      entry.Provider,
		Status:        entry.Status,
		Amount:        entry.Amount,
		CustomerID:    entry.CustomerID,
		EventID:       entry.EventID,
		Timestamp:     entry.CreatedAt,
	}
}
