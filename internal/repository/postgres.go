package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

// InitDB creates the tables used by the Postgres repositories.
func InitDB(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS transaction_logs (
			seq BIGSERIAL PRIMARY KEY,
			id VARCHAR(64) NOT NULL UNIQUE,
			transaction_id VARCHAR(255) NOT NULL,
			type VARCHAR(32) NOT NULL,
			provider VARCHAR(64) NOT NULL,
			status VARCHAR(32) NOT NULL,
			amount NUMERIC(20, 4) NOT NULL,
			currency CHAR(3) NOT NULL,
			customer_id VARCHAR(255) NOT NULL DEFAULT '',
			event_id VARCHAR(255) NOT NULL DEFAULT '',
			request JSONB,
			response JSONB,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_logs_tx ON transaction_logs(transaction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_logs_provider_created ON transaction_logs(provider, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_logs_customer ON transaction_logs(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_logs_created ON transaction_logs(created_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_transaction_logs_event ON transaction_logs(provider, event_id) WHERE event_id <> ''`,
		`CREATE TABLE IF NOT EXISTS reconciliation_reports (
			id VARCHAR(64) PRIMARY KEY,
			provider VARCHAR(64) NOT NULL,
			report_date TIMESTAMPTZ NOT NULL,
			report JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reconciliation_reports_provider ON reconciliation_reports(provider, report_date DESC)`,
		`CREATE TABLE IF NOT EXISTS fraud_blocks (
			id VARCHAR(64) PRIMARY KEY,
			customer_key VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			block JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fraud_blocks_customer ON fraud_blocks(customer_key)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// TransactionLogRepository is the append-only ledger table. Rows are returned
// in insertion order (seq).
type TransactionLogRepository struct {
	db *sql.DB
}

func NewTransactionLogRepository(db *sql.DB) *TransactionLogRepository {
	return &TransactionLogRepository{db: db}
}

const insertTransactionLog = `
	INSERT INTO transaction_logs
		(id, transaction_id, type, provider, status, amount, currency, customer_id, event_id, request, response, error, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const selectTransactionLogs = `
	SELECT id, transaction_id, type, provider, status, amount, currency, customer_id, event_id, request, response, error, created_at
	FROM transaction_logs`

func (r *TransactionLogRepository) Append(ctx context.Context, entry *models.TransactionLog) error {
	_, err := r.db.ExecContext(ctx, insertTransactionLog, insertArgs(entry)...)
	return err
}

func (r *TransactionLogRepository) AppendIfAbsent(ctx context.Context, entry *models.TransactionLog) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		insertTransactionLog+` ON CONFLICT (provider, event_id) WHERE event_id <> '' DO NOTHING`,
		insertArgs(entry)...)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *TransactionLogRepository) HasEvent(ctx context.Context, provider, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transaction_logs WHERE provider = $1 AND event_id = $2)`,
		provider, eventID).Scan(&exists)
	return exists, err
}

func (r *TransactionLogRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]models.TransactionLog, error) {
	return r.query(ctx, selectTransactionLogs+` WHERE transaction_id = $1 ORDER BY seq`, transactionID)
}

func (r *TransactionLogRepository) ListByProvider(ctx context.Context, provider string) ([]models.TransactionLog, error) {
	return r.query(ctx, selectTransactionLogs+` WHERE provider = $1 ORDER BY seq`, provider)
}

func (r *TransactionLogRepository) ListByCustomer(ctx context.Context, customerID string) ([]models.TransactionLog, error) {
	return r.query(ctx, selectTransactionLogs+` WHERE customer_id = $1 ORDER BY seq`, customerID)
}

func (r *TransactionLogRepository) ListByDateRange(ctx context.Context, provider string, start, end time.Time) ([]models.TransactionLog, error) {
	var (
		where []string
		args  []any
	)
	args = append(args, start.UTC(), end.UTC())
	where = append(where, "created_at >= $1", "created_at < $2")
	if provider != "" {
		args = append(args, provider)
		where = append(where, "provider = $3")
	}
	return r.query(ctx, selectTransactionLogs+" WHERE "+strings.Join(where, " AND ")+" ORDER BY seq", args...)
}

func (r *TransactionLogRepository) query(ctx context.Context, query string, args ...any) ([]models.TransactionLog, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TransactionLog
	for rows.Next() {
		var (
			e        models.TransactionLog
			amount   decimal.Decimal
			currency string
			request  []byte
			response []byte
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.Type, &e.Provider, &e.Status,
			&amount, &currency, &e.CustomerID, &e.EventID, &request, &response, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction log: %w", err)
		}
		e.Amount = models.Money{Amount: amount, Currency: models.Currency(strings.TrimSpace(currency))}
		e.Request = json.RawMessage(request)
		e.Response = json.RawMessage(response)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertArgs(e *models.TransactionLog) []any {
	return []any{
		e.ID, e.TransactionID, string(e.Type), e.Provider, string(e.Status),
		e.Amount.Amount, string(e.Amount.Currency), e.CustomerID, e.EventID,
		nullJSON(e.Request), nullJSON(e.Response), e.Error, e.CreatedAt.UTC(),
	}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// ReportRepository keeps reconciliation reports as JSONB documents.
type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Save(ctx context.Context, report *models.ReconciliationReport) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reconciliation_reports (id, provider, report_date, report)
		VALUES ($1, $2, $3, $4)
	`, report.ID, report.Provider, report.Date.UTC(), doc)
	return err
}

func (r *ReportRepository) List(ctx context.Context, provider string, limit int) ([]models.ReconciliationReport, error) {
	query := `SELECT report FROM reconciliation_reports`
	var args []any
	if provider != "" {
		args = append(args, provider)
		query += ` WHERE provider = $1`
	}
	query += ` ORDER BY report_date DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ReconciliationReport
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var report models.ReconciliationReport
		if err := json.Unmarshal(doc, &report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		out = append(out, report)
	}
	return out, rows.Err()
}

type FraudBlockRepository struct {
	db *sql.DB
}

func NewFraudBlockRepository(db *sql.DB) *FraudBlockRepository {
	return &FraudBlockRepository{db: db}
}

func (r *FraudBlockRepository) Save(ctx context.Context, block *models.FraudBlock) error {
	doc, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("encode fraud block: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO fraud_blocks (id, customer_key, created_at, block)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, block.ID, block.CustomerKey, block.CreatedAt.UTC(), doc)
	return err
}

func (r *FraudBlockRepository) ListByCustomer(ctx context.Context, customerKey string) ([]models.FraudBlock, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT block FROM fraud_blocks WHERE customer_key = $1 ORDER BY created_at`, customerKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FraudBlock
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var block models.FraudBlock
		if err := json.Unmarshal(doc, &block); err != nil {
			return nil, fmt.Errorf("decode fraud block: %w", err)
		}
		out = append(out, block)
	}
	return out, rows.Err()
}
