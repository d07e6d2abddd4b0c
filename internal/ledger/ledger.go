// Package ledger is the append-only transaction log. Rows are never edited;
// every status change is a new row and the latest row per transaction wins.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/interfaces"
	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

var (
	ErrNotFound     = errors.New("transaction not found in ledger")
	ErrInvalidEntry = errors.New("invalid ledger entry")
)

type Ledger struct {
	repo      interfaces.TransactionLogRepository
	locker    interfaces.Locker
	publisher interfaces.EventPublisher
	now       func() time.Time
}

func New(repo interfaces.TransactionLogRepository, locker interfaces.Locker, publisher interfaces.EventPublisher) *Ledger {
	return &Ledger{
		repo:      repo,
		locker:    locker,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source, for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Append records entry. Appends for the same transaction are serialized and
// their CreatedAt is kept strictly increasing so "latest row" is well defined.
func (l *Ledger) Append(ctx context.Context, entry *models.TransactionLog) error {
	_, err := l.append(ctx, entry, false)
	return err
}

// AppendIfAbsent is Append deduplicated on (provider, event id). It reports
// whether the row was written.
func (l *Ledger) AppendIfAbsent(ctx context.Context, entry *models.TransactionLog) (bool, error) {
	if entry.EventID == "" {
		return false, fmt.Errorf("%w: event id required", ErrInvalidEntry)
	}
	return l.append(ctx, entry, true)
}

func (l *Ledger) append(ctx context.Context, entry *models.TransactionLog, dedupe bool) (bool, error) {
	if entry.TransactionID == "" || entry.Provider == "" {
		return false, fmt.Errorf("%w: transaction id and provider required", ErrInvalidEntry)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Microsecond)

	release, err := l.locker.Acquire(ctx, "ledger:"+entry.TransactionID)
	if err != nil {
		return false, fmt.Errorf("lock transaction %s: %w", entry.TransactionID, err)
	}
	defer release()

	prior, err := l.repo.ListByTransactionID(ctx, entry.TransactionID)
	if err != nil {
		return false, fmt.Errorf("read transaction %s: %w", entry.TransactionID, err)
	}
	for _, p := range prior {
		if !entry.CreatedAt.After(p.CreatedAt) {
			entry.CreatedAt = p.CreatedAt.Add(time.Microsecond)
		}
	}

	written := true
	if dedupe {
		written, err = l.repo.AppendIfAbsent(ctx, entry)
	} else {
		err = l.repo.Append(ctx, entry)
	}
	if err != nil {
		telemetry.LedgerAppends.WithLabelValues(string(entry.Type), "error").Inc()
		return false, fmt.Errorf("append transaction %s: %w", entry.TransactionID, err)
	}
	if !written {
		telemetry.LedgerAppends.WithLabelValues(string(entry.Type), "duplicate").Inc()
		return false, nil
	}
	telemetry.LedgerAppends.WithLabelValues(string(entry.Type), "ok").Inc()

	if l.publisher != nil {
		if err := l.publisher.PublishTransactionLogged(ctx, entry); err != nil {
			telemetry.Logger.Warn("Failed to publish ledger entry",
				zap.String("transaction_id", entry.TransactionID),
				zap.String("entry_id", entry.ID),
				zap.Error(err),
			)
		}
	}
	return true, nil
}

// HasEvent reports whether the provider's event id was already recorded.
func (l *Ledger) HasEvent(ctx context.Context, provider, eventID string) (bool, error) {
	return l.repo.HasEvent(ctx, provider, eventID)
}

// GetByTransactionID returns every row for the transaction in append order.
func (l *Ledger) GetByTransactionID(ctx context.Context, transactionID string) ([]models.TransactionLog, error) {
	return l.repo.ListByTransactionID(ctx, transactionID)
}

// Latest returns the authoritative row for a transaction.
func (l *Ledger) Latest(ctx context.Context, transactionID string) (*models.TransactionLog, error) {
	rows, err := l.repo.ListByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, transactionID)
	}
	latest := models.LatestByTransaction(rows)[transactionID]
	return &latest, nil
}

func (l *Ledger) ListByProvider(ctx context.Context, provider string) ([]models.TransactionLog, error) {
	return l.repo.ListByProvider(ctx, provider)
}

func (l *Ledger) ListByCustomer(ctx context.Context, customerID string) ([]models.TransactionLog, error) {
	return l.repo.ListByCustomer(ctx, customerID)
}

// ListByDateRange returns rows with start <= created_at < end across all providers.
func (l *Ledger) ListByDateRange(ctx context.Context, start, end time.Time) ([]models.TransactionLog, error) {
	return l.repo.ListByDateRange(ctx, "", start, end)
}

func (l *Ledger) ListByProviderRange(ctx context.Context, provider string, start, end time.Time) ([]models.TransactionLog, error) {
	return l.repo.ListByDateRange(ctx, provider, start, end)
}

// Statistics aggregates the latest row of every transaction touched in the
// window, grouped overall and by provider. Amounts stay per currency.
func (l *Ledger) Statistics(ctx context.Context, start, end time.Time) (*models.Statistics, error) {
	rows, err := l.repo.ListByDateRange(ctx, "", start, end)
	if err != nil {
		return nil, fmt.Errorf("list ledger range: %w", err)
	}

	stats := &models.Statistics{
		Start:      start,
		End:        end,
		Overall:    models.NewStatisticsBucket(),
		ByProvider: make(map[string]*models.StatisticsBucket),
	}
	for _, e := range models.LatestByTransaction(rows) {
		stats.Overall.Add(e)
		b, ok := stats.ByProvider[e.Provider]
		if !ok {
			b = models.NewStatisticsBucket()
			stats.ByProvider[e.Provider] = b
		}
		b.Add(e)
	}
	return stats, nil
}
