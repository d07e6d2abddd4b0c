package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

// EventPublisher fans ledger activity out to downstream consumers.
type EventPublisher interface {
	PublishTransactionLogged(ctx context.Context, entry *models.TransactionLog) error
}

// Notifier hands alerts to the external notification service.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}
