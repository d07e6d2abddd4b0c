package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

// TransactionLogRepository is the append-only store behind the ledger.
// Implementations return rows in append order.
type TransactionLogRepository interface {
	Append(ctx context.Context, entry *models.TransactionLog) error
	// AppendIfAbsent appends unless a row with the same (provider, event id) exists.
	// It reports whether the row was written.
	AppendIfAbsent(ctx context.Context, entry *models.TransactionLog) (bool, error)
	// HasEvent reports whether a row carries the provider's event id.
	HasEvent(ctx context.Context, provider, eventID string) (bool, error)
	ListByTransactionID(ctx context.Context, transactionID string) ([]models.TransactionLog, error)
	ListByProvider(ctx context.Context, provider string) ([]models.TransactionLog, error)
	ListByCustomer(ctx context.Context, customerID string) ([]models.TransactionLog, error)
	// ListByDateRange returns rows with start <= created_at < end. An empty provider matches all.
	ListByDateRange(ctx context.Context, provider string, start, end time.Time) ([]models.TransactionLog, error)
}

// ReportRepository retains reconciliation reports as a time series.
type ReportRepository interface {
	Save(ctx context.Context, report *models.ReconciliationReport) error
	// List returns newest first. An empty provider matches all; limit <= 0 means no limit.
	List(ctx context.Context, provider string, limit int) ([]models.ReconciliationReport, error)
}

// FraudBlockRepository persists blocked fraud checks for audit.
type FraudBlockRepository interface {
	Save(ctx context.Context, block *models.FraudBlock) error
	ListByCustomer(ctx context.Context, customerKey string) ([]models.FraudBlock, error)
}
