package reconciliation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/akylbek/payment-system/payment-core/internal/ledger"
	"github.com/akylbek/payment-system/payment-core/internal/lock"
	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/provider"
	"github.com/akylbek/payment-system/payment-core/internal/provider/sandbox"
	"github.com/akylbek/payment-system/payment-core/internal/repository/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (r *recordingNotifier) Notify(_ context.Context, a models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

var (
	dayStart = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dayEnd   = dayStart.Add(24 * time.Hour)
)

type fixture struct {
	engine   *Engine
	ledger   *ledger.Ledger
	sandbox  *sandbox.Provider
	reports  *memory.ReportRepository
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := provider.NewRegistry()
	sbx := sandbox.New("sandbox", "secret")
	if err := reg.Register(sbx, 1, true); err != nil {
		t.Fatal(err)
	}
	l := ledger.New(memory.NewTransactionLogRepository(), lock.NewKeyedMutex(), nil)
	reports := memory.NewReportRepository()
	notifier := &recordingNotifier{}
	engine := NewEngine(reg, l, reports, notifier, DefaultConfig()).
		WithClock(func() time.Time { return dayEnd.Add(2 * time.Hour) })
	return &fixture{engine: engine, ledger: l, sandbox: sbx, reports: reports, notifier: notifier}
}

func (f *fixture) record(t *testing.T, tx string, status models.PaymentStatus, amount string, at time.Time) {
	t.Helper()
	err := f.ledger.Append(context.Background(), &models.TransactionLog{
		TransactionID: tx,
		Type:          models.TypePayment,
		Provider:      "sandbox",
		Status:        status,
		Amount:        models.NewMoney(amount, models.CurrencyEUR),
		CreatedAt:     at,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestReconcile_CompletedVsFailedIsOneHighStatusMismatch(t *testing.T) {
	f := newFixture(t)
	f.record(t, "tx1", models.StatusCompleted, "100", dayStart.Add(time.Hour))
	f.sandbox.Seed("tx1", models.StatusFailed, models.NewMoney("100", models.CurrencyEUR))

	report, err := f.engine.Reconcile(context.Background(), "sandbox", dayStart, dayEnd)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Discrepancies) != 1 {
		t.Fatalf("discrepancies = %+v", report.Discrepancies)
	}
	d := report.Discrepancies[0]
	if d.Type != models.DiscrepancyStatusMismatch || d.Severity != models.SeverityHigh {
		t.Fatalf("discrepancy = %+v", d)
	}
	if d.Expected != "COMPLETED" || d.Actual != "FAILED" {
		t.Errorf("expected/actual = %s/%s", d.Expected, d.Actual)
	}
	if len(f.notifier.alerts) != 1 || f.notifier.alerts[0].Severity != models.SeverityHigh {
		t.Fatalf("alerts = %+v", f.notifier.alerts)
	}
}

func TestReconcile_AmountMismatchIsHigh(t *testing.T) {
	f := newFixture(t)
	f.record(t, "tx1", models.StatusCompleted, "100.00", dayStart.Add(time.Hour))
	f.sandbox.Seed("tx1", models.StatusCompleted, models.NewMoney("100.02", models.CurrencyEUR))
	f.record(t, "tx2", models.StatusCompleted, "50.00", dayStart.Add(time.Hour))
	f.sandbox.Seed("tx2", models.StatusCompleted, models.NewMoney("50.01", models.CurrencyEUR))

	report, err := f.engine.Reconcile(context.Background(), "sandbox", dayStart, dayEnd)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Discrepancies) != 1 {
		t.Fatalf("discrepancies = %+v", report.Discrepancies)
	}
	d := report.Discrepancies[0]
	if d.TransactionID != "tx1" || d.Type != models.DiscrepancyAmountMismatch || d.Severity != models.SeverityHigh {
		t.Fatalf("discrepancy = %+v", d)
	}
}

func TestReconcile_PartialRefundComparesChargedAmount(t *testing.T) {
	f := newFixture(t)
	f.record(t, "tx1", models.StatusCompleted, "25.00", dayStart.Add(time.Hour))
	err := f.ledger.Append(context.Background(), &models.TransactionLog{
		TransactionID: "tx1",
		Type:          models.TypeRefund,
		Provider:      "sandbox",
		Status:        models.StatusPartiallyRefunded,
		Amount:        models.NewMoney("15.00", models.CurrencyEUR),
		CreatedAt:     dayStart.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	f.sandbox.Seed("tx1", models.StatusPartiallyRefunded, models.NewMoney("25.00", models.CurrencyEUR))

	report, err := f.engine.Reconcile(context.Background(), "sandbox", dayStart, dayEnd)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.TotalTransactions != 1 || len(report.Discrepancies) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(f.notifier.alerts) != 0 {
		t.Fatalf("alerts = %+v", f.notifier.alerts)
	}

	// The provider now reports a different charge: still measured against the payment row.
	f.sandbox.SetAmount("tx1", models.NewMoney("30.00", models.CurrencyEUR))
	report, err = f.engine.Reconcile(context.Background(), "sandbox", dayStart, dayEnd)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Discrepancies) != 1 || report.Discrepancies[0].Expected != "25.00 EUR" {
		t.Fatalf("discrepancies = %+v", report.Discrepancies)
	}
}

func TestReconcile_CurrencyMismatchIsHigh(t *testing.T) {
	f := newFixture(t)
	f.record(t, "tx1", models.StatusCompleted, "100", dayStart.Add(time.Hour))
	f.sandbox.Seed("tx1", models.StatusCompleted, models.NewMoney("100", models.CurrencyUSD))

	report, _ := f.engine.Reconcile(context.Background(), "sandbox", dayStart, dayEnd)
	if len(report.Discrepancies) != 1 || report.Discrepancies[0].Type != models.DiscrepancyAmountMismatch {
		t.Fatalf("discrepancies = %+v", report.Discrepancies)
	}
}

func TestReconcile_MissingTransaction(t *testing.T) {
	f := newFixture(t)
	f.record(t, "ghost", models.StatusCompleted, "10", dayStart.Add(time.Hour))

	report, err := f.engine.Reconcile(context.Background(), "sandbox", dayStart, dayEnd)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Discrepancies) != 1 {
		t.Fatalf("discrepancies = %+v", report.Discrepancies)
	}
	d := report.Discrepancies[0]
	if d.Type != models.DiscrepancyMissing || d.Severity != models.SeverityHigh {
		t.Fatalf("discrepancy = %+v", d)
	}
}

func TestReconcile_PendingSeverity(t *testing.T) {
	f := newFixture(t)
	start := dayStart.AddDate(0, 0, -30)
	f.record(t, "fresh", models.StatusPending, "10", dayEnd.Add(-time.Hour))
	f.sandbox.Seed("fresh", models.StatusCompleted, models.NewMoney("10", models.CurrencyEUR))
	f.record(t, "stale", models.StatusPending, "10", start.Add(time.Hour))
	f.sandbox.Seed("stale", models.StatusCompleted, models.NewMoney("10", models.CurrencyEUR))

	report, err := f.engine.Reconcile(context.Background(), "sandbox", start, dayEnd)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Discrepancies) != 2 {
		t.Fatalf("discrepancies = %+v", report.Discrepancies)
	}
	// sorted by transaction id: fresh, stale
	if report.Discrepancies[0].Severity != models.SeverityMedium {
		t.Errorf("fresh pending severity = %s", report.Discrepancies[0].Severity)
	}
	if report.Discrepancies[1].Severity != models.SeverityHigh {
		t.Errorf("stale pending severity = %s", report.Discrepancies[1].Severity)
	}
}

func TestReconcile_AggregatesAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "a", models.StatusCompleted, "10", dayStart.Add(time.Hour))
	f.sandbox.Seed("a", models.StatusCompleted, models.NewMoney("10", models.CurrencyEUR))
	f.record(t, "b", models.StatusFailed, "20", dayStart.Add(2*time.Hour))
	f.sandbox.Seed("b", models.StatusFailed, models.NewMoney("20", models.CurrencyEUR))
	f.record(t, "c", models.StatusCompleted, "30", dayStart.Add(3*time.Hour))
	f.sandbox.Seed("c", models.StatusCompleted, models.NewMoney("30", models.CurrencyEUR))
	f.record(t, models.LocalTransactionPrefix+"x", models.StatusFailed, "5", dayStart.Add(3*time.Hour))
	// outside the window
	f.record(t, "d", models.StatusCompleted, "99", dayEnd.Add(time.Hour))

	report, err := f.engine.Reconcile(ctx, "sandbox", dayStart, dayEnd)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.TotalTransactions != 3 || report.SuccessfulTransactions != 2 || report.FailedTransactions != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !report.TotalAmount[models.CurrencyEUR].Equal(models.NewMoney("40", models.CurrencyEUR).Amount) {
		t.Fatalf("total amount = %v", report.TotalAmount)
	}
	if len(report.Discrepancies) != 0 || len(f.notifier.alerts) != 0 {
		t.Fatalf("unexpected findings %+v / %+v", report.Discrepancies, f.notifier.alerts)
	}

	history, _ := f.engine.Reports(ctx, "sandbox", 10)
	if len(history) != 1 || history[0].ID != report.ID {
		t.Fatalf("history = %+v", history)
	}
}

func TestReconcile_NeverTouchesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "tx1", models.StatusCompleted, "100", dayStart.Add(time.Hour))
	f.sandbox.Seed("tx1", models.StatusFailed, models.NewMoney("100", models.CurrencyEUR))

	if _, err := f.engine.Reconcile(ctx, "sandbox", dayStart, dayEnd); err != nil {
		t.Fatal(err)
	}
	rows, _ := f.ledger.GetByTransactionID(ctx, "tx1")
	if len(rows) != 1 || rows[0].Status != models.StatusCompleted {
		t.Fatalf("ledger changed: %+v", rows)
	}
}

func TestReconcile_Errors(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Reconcile(context.Background(), "nope", dayStart, dayEnd); !errors.Is(err, provider.ErrUnknownProvider) {
		t.Fatalf("err = %v", err)
	}
	if _, err := f.engine.Reconcile(context.Background(), "sandbox", dayEnd, dayStart); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("err = %v", err)
	}
}

func TestReconcileAll(t *testing.T) {
	reg := provider.NewRegistry()
	a := sandbox.New("alpha", "s")
	b := sandbox.New("beta", "s")
	_ = reg.Register(b, 2, true)
	_ = reg.Register(a, 1, false)
	l := ledger.New(memory.NewTransactionLogRepository(), lock.NewKeyedMutex(), nil)
	engine := NewEngine(reg, l, memory.NewReportRepository(), nil, DefaultConfig())

	reports, err := engine.ReconcileAll(context.Background(), dayStart, dayEnd)
	if err != nil {
		t.Fatalf("ReconcileAll: %v", err)
	}
	if len(reports) != 2 || reports[0].Provider != "alpha" || reports[1].Provider != "beta" {
		t.Fatalf("reports = %+v", reports)
	}
}

func TestSchedulerWindows(t *testing.T) {
	at := time.Date(2024, 6, 2, 1, 30, 0, 0, time.UTC)
	if got := NextRun(at, 2); !got.Equal(time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC)) {
		t.Errorf("NextRun = %s", got)
	}
	if got := NextRun(time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC), 2); !got.Equal(time.Date(2024, 6, 3, 2, 0, 0, 0, time.UTC)) {
		t.Errorf("NextRun at the hour = %s", got)
	}
	start, end := PreviousDay(at)
	if !start.Equal(dayStart) || !end.Equal(time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("PreviousDay = %s..%s", start, end)
	}
}

type fakeRunner struct {
	start, end time.Time
}

func (f *fakeRunner) ReconcileAll(_ context.Context, start, end time.Time) ([]models.ReconciliationReport, error) {
	f.start, f.end = start, end
	return nil, nil
}

func TestSchedulerRunOnce(t *testing.T) {
	r := &fakeRunner{}
	s := NewScheduler(r, 2)
	s.RunOnce(context.Background(), time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC))
	if !r.start.Equal(dayStart) || !r.end.Equal(dayEnd) {
		t.Fatalf("window = %s..%s", r.start, r.end)
	}

	s.Start(context.Background())
	s.Stop()
}
