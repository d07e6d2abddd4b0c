package reconciliation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

// Runner is what the scheduler drives; *Engine satisfies it.
type Runner interface {
	ReconcileAll(ctx context.Context, start, end time.Time) ([]models.ReconciliationReport, error)
}

// Scheduler runs ReconcileAll once a day at RunHour UTC over the previous
// calendar day.
type Scheduler struct {
	runner  Runner
	runHour int
	now     func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(runner Runner, runHour int) *Scheduler {
	if runHour < 0 || runHour > 23 {
		runHour = 2
	}
	return &Scheduler{
		runner:  runner,
		runHour: runHour,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	telemetry.Logger.Info("Reconciliation scheduler started",
		zap.Int("run_hour_utc", s.runHour),
		zap.Time("next_run", NextRun(s.now(), s.runHour)),
	)
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		wait := time.Until(NextRun(s.now(), s.runHour))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunOnce(ctx, s.now())
		}
	}
}

// RunOnce reconciles the UTC day before at. It is safe to call directly.
func (s *Scheduler) RunOnce(ctx context.Context, at time.Time) []models.ReconciliationReport {
	start, end := PreviousDay(at)
	reports, err := s.runner.ReconcileAll(ctx, start, end)
	if err != nil {
		telemetry.Logger.Error("Scheduled reconciliation finished with errors",
			zap.Time("start", start),
			zap.Time("end", end),
			zap.Error(err),
		)
	}
	return reports
}

// NextRun returns the first time strictly after now at hour:00 UTC.
func NextRun(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// PreviousDay returns [00:00, 24:00) UTC of the day before at.
func PreviousDay(at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	end := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	return end.AddDate(0, 0, -1), end
}
