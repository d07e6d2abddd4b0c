// Package reconciliation compares what the ledger recorded against what each
// provider reports now. Findings are reported and alerted, never written back.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/akylbek/payment-system/payment-core/internal/interfaces"
	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/provider"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

var ErrInvalidWindow = errors.New("reconciliation window end must be after start")

// ProviderSource resolves providers by name and enumerates all of them.
type ProviderSource interface {
	Get(name string) (provider.Provider, error)
	Providers() []provider.Provider
}

// LedgerReader is the slice of the ledger reconciliation reads.
type LedgerReader interface {
	ListByProviderRange(ctx context.Context, provider string, start, end time.Time) ([]models.TransactionLog, error)
}

type Config struct {
	// AmountTolerance is in major currency units.
	AmountTolerance   decimal.Decimal
	PendingEscalation time.Duration
	Concurrency       int
	QueryTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		AmountTolerance:   decimal.RequireFromString("0.01"),
		PendingEscalation: 15 * 24 * time.Hour,
		Concurrency:       4,
		QueryTimeout:      20 * time.Second,
	}
}

type Engine struct {
	providers ProviderSource
	ledger    LedgerReader
	reports   interfaces.ReportRepository
	notifier  interfaces.Notifier
	cfg       Config
	now       func() time.Time
}

func NewEngine(providers ProviderSource, ledger LedgerReader, reports interfaces.ReportRepository, notifier interfaces.Notifier, cfg Config) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 20 * time.Second
	}
	return &Engine{
		providers: providers,
		ledger:    ledger,
		reports:   reports,
		notifier:  notifier,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

type liveResult struct {
	result *models.PaymentResult
	err    error
}

// Reconcile checks every payment the ledger holds for providerName in
// [start, end) against the provider's live state. The report is saved to the
// history; a save failure is returned alongside the report.
func (e *Engine) Reconcile(ctx context.Context, providerName string, start, end time.Time) (*models.ReconciliationReport, error) {
	if !end.After(start) {
		return nil, ErrInvalidWindow
	}
	p, err := e.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	rows, err := e.ledger.ListByProviderRange(ctx, providerName, start, end)
	if err != nil {
		telemetry.ReconciliationRuns.WithLabelValues(providerName, "error").Inc()
		return nil, fmt.Errorf("read ledger for %s: %w", providerName, err)
	}
	inScope := paymentsInScope(rows)

	live := make([]liveResult, len(inScope))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i := range inScope {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			live[i] = e.queryStatus(gctx, p, inScope[i].latest.TransactionID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.ReconciliationRuns.WithLabelValues(providerName, "error").Inc()
		return nil, fmt.Errorf("reconcile %s: %w", providerName, err)
	}

	report := &models.ReconciliationReport{
		ID:                uuid.NewString(),
		Date:              e.now(),
		Provider:          providerName,
		PeriodStart:       start,
		PeriodEnd:         end,
		TotalTransactions: len(inScope),
		StatusCounts:      make(map[models.PaymentStatus]int),
		TotalAmount:       models.Amounts{},
		Discrepancies:     []models.Discrepancy{},
	}
	for i, r := range inScope {
		report.Discrepancies = append(report.Discrepancies, e.compare(r, live[i])...)
		e.tally(report, r, live[i])
	}
	sort.SliceStable(report.Discrepancies, func(i, j int) bool {
		return report.Discrepancies[i].TransactionID < report.Discrepancies[j].TransactionID
	})

	for _, d := range report.Discrepancies {
		telemetry.ReconciliationDiscrepancies.WithLabelValues(providerName, string(d.Type), string(d.Severity)).Inc()
	}
	telemetry.ReconciliationRuns.WithLabelValues(providerName, "ok").Inc()
	telemetry.Logger.Info("Reconciliation completed",
		zap.String("provider", providerName),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("transactions", report.TotalTransactions),
		zap.Int("discrepancies", len(report.Discrepancies)),
	)

	if len(report.Discrepancies) > 0 {
		e.alert(ctx, report)
	}
	if err := e.reports.Save(ctx, report); err != nil {
		return report, fmt.Errorf("save report: %w", err)
	}
	return report, nil
}

// ReconcileAll runs Reconcile for every registered provider in parallel.
// Reports come back ordered by provider name; failures are joined.
func (e *Engine) ReconcileAll(ctx context.Context, start, end time.Time) ([]models.ReconciliationReport, error) {
	if !end.After(start) {
		return nil, ErrInvalidWindow
	}

	var (
		mu      sync.Mutex
		reports []models.ReconciliationReport
		errs    []error
		g       errgroup.Group
	)
	g.SetLimit(e.cfg.Concurrency)
	for _, p := range e.providers.Providers() {
		name := p.Name()
		g.Go(func() error {
			report, err := e.Reconcile(ctx, name, start, end)
			mu.Lock()
			defer mu.Unlock()
			if report != nil {
				reports = append(reports, *report)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(reports, func(i, j int) bool { return reports[i].Provider < reports[j].Provider })
	return reports, errors.Join(errs...)
}

// Reports returns saved reports, newest first.
func (e *Engine) Reports(ctx context.Context, providerName string, limit int) ([]models.ReconciliationReport, error) {
	return e.reports.List(ctx, providerName, limit)
}

func (e *Engine) queryStatus(ctx context.Context, p provider.Provider, transactionID string) (lr liveResult) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			lr = liveResult{err: fmt.Errorf("panic querying status: %v", r)}
		}
	}()

	started := time.Now()
	res, err := p.GetPaymentStatus(ctx, transactionID)
	telemetry.ProviderLatency.WithLabelValues(p.Name(), "status").Observe(time.Since(started).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	telemetry.ProviderAttempts.WithLabelValues(p.Name(), "status", outcome).Inc()
	return liveResult{result: res, err: err}
}

// recorded pairs the latest row of a transaction, which carries its current
// status, with the PAYMENT row that carries the charged amount. Refund rows
// share the transaction id but hold the refunded amount.
type recorded struct {
	latest  models.TransactionLog
	payment models.TransactionLog
}

// paymentsInScope keeps every provider-issued transaction that has at least
// one PAYMENT row, ordered by transaction id.
func paymentsInScope(rows []models.TransactionLog) []recorded {
	payments := make(map[string]models.TransactionLog)
	for _, r := range rows {
		if r.Type != models.TypePayment || models.IsLocalTransactionID(r.TransactionID) {
			continue
		}
		if cur, ok := payments[r.TransactionID]; !ok || !r.CreatedAt.Before(cur.CreatedAt) {
			payments[r.TransactionID] = r
		}
	}
	latest := models.LatestByTransaction(rows)
	out := make([]recorded, 0, len(payments))
	for id, payment := range payments {
		out = append(out, recorded{latest: latest[id], payment: payment})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].latest.TransactionID < out[j].latest.TransactionID })
	return out
}

func (e *Engine) compare(r recorded, live liveResult) []models.Discrepancy {
	rec := r.latest
	if live.err != nil || live.result == nil || live.result.TransactionID == "" {
		actual := "not found"
		if live.err != nil {
			actual = live.err.Error()
		}
		return []models.Discrepancy{{
			TransactionID: rec.TransactionID,
			Type:          models.DiscrepancyMissing,
			Expected:      string(rec.Status),
			Actual:        actual,
			Severity:      models.SeverityHigh,
		}}
	}

	var out []models.Discrepancy
	res := live.result
	if res.Status != rec.Status {
		out = append(out, models.Discrepancy{
			TransactionID: rec.TransactionID,
			Type:          models.DiscrepancyStatusMismatch,
			Expected:      string(rec.Status),
			Actual:        string(res.Status),
			Severity:      e.statusSeverity(rec, res.Status),
		})
	}
	if d, ok := e.amountMismatch(r.payment, res.Amount); ok {
		out = append(out, d)
	}
	return out
}

func (e *Engine) statusSeverity(rec models.TransactionLog, live models.PaymentStatus) models.Severity {
	flipped := (rec.Status == models.StatusCompleted && live.IsFailure()) ||
		(rec.Status.IsFailure() && live == models.StatusCompleted)
	if flipped {
		return models.SeverityHigh
	}
	if rec.Status.IsInFlight() && e.cfg.PendingEscalation > 0 && e.now().Sub(rec.CreatedAt) > e.cfg.PendingEscalation {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

func (e *Engine) amountMismatch(rec models.TransactionLog, live models.Money) (models.Discrepancy, bool) {
	if live.IsZero() {
		return models.Discrepancy{}, false
	}
	d := models.Discrepancy{
		TransactionID: rec.TransactionID,
		Type:          models.DiscrepancyAmountMismatch,
		Expected:      rec.Amount.String(),
		Actual:        live.String(),
		Severity:      models.SeverityHigh,
	}
	if live.Currency != "" && live.Currency != rec.Amount.Currency {
		return d, true
	}
	if live.Amount.Sub(rec.Amount.Amount).Abs().GreaterThan(e.cfg.AmountTolerance) {
		return d, true
	}
	return models.Discrepancy{}, false
}

// tally counts by the provider's confirmed status when it answered and by the
// recorded status otherwise. Only confirmed completions add to the total.
func (e *Engine) tally(report *models.ReconciliationReport, r recorded, live liveResult) {
	status := r.latest.Status
	confirmed := live.err == nil && live.result != nil && live.result.TransactionID != ""
	if confirmed {
		status = live.result.Status
	}
	report.StatusCounts[status]++
	switch {
	case status == models.StatusCompleted:
		report.SuccessfulTransactions++
	case status.IsFailure():
		report.FailedTransactions++
	}
	if confirmed && status == models.StatusCompleted {
		amount := live.result.Amount
		if amount.IsZero() {
			amount = r.payment.Amount
		}
		report.TotalAmount.Add(amount)
	}
}

func (e *Engine) alert(ctx context.Context, report *models.ReconciliationReport) {
	if e.notifier == nil {
		return
	}
	severity := models.SeverityMedium
	high := report.HighSeverityCount()
	if high > 0 {
		severity = models.SeverityHigh
	}
	alert := models.Alert{
		ID:       uuid.NewString(),
		Kind:     models.AlertReconciliation,
		Severity: severity,
		Title:    fmt.Sprintf("Reconciliation discrepancies for %s", report.Provider),
		Message: fmt.Sprintf("%d discrepancies (%d high) across %d transactions between %s and %s",
			len(report.Discrepancies), high, report.TotalTransactions,
			report.PeriodStart.Format(time.RFC3339), report.PeriodEnd.Format(time.RFC3339)),
		Data: map[string]any{
			"report_id":     report.ID,
			"provider":      report.Provider,
			"discrepancies": report.Discrepancies,
		},
		CreatedAt: report.Date,
	}
	if err := e.notifier.Notify(ctx, alert); err != nil {
		telemetry.Logger.Error("Failed to send reconciliation alert",
			zap.String("provider", report.Provider),
			zap.String("report_id", report.ID),
			zap.Error(err),
		)
	}
}
