package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/provider"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

// CandidateSource yields the enabled providers in the order they should be tried.
type CandidateSource interface {
	Candidates(preferred string) []provider.Provider
}

type OrchestratorConfig struct {
	FailoverEnabled bool
	AttemptTimeout  time.Duration
}

// Orchestrator runs provider calls with a per-call timeout and, for operations
// that allow it, sequential failover across candidates. Attempts are never
// parallelized so a customer cannot be charged twice.
type Orchestrator struct {
	providers CandidateSource
	cfg       OrchestratorConfig
}

func NewOrchestrator(providers CandidateSource, cfg OrchestratorConfig) *Orchestrator {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 20 * time.Second
	}
	return &Orchestrator{providers: providers, cfg: cfg}
}

type attemptOutcome struct {
	success       bool
	status        models.PaymentStatus
	transactionID string
	errMsg        string
}

type attemptCall func(ctx context.Context, p provider.Provider) (attemptOutcome, error)

// CreatePayment tries candidates in order and stops at the first success. It
// never returns a Go error: every failure mode is a result with Success=false.
func (o *Orchestrator) CreatePayment(ctx context.Context, intent *models.PaymentIntent) *models.PaymentResult {
	candidates := o.providers.Candidates(intent.PreferredProvider)
	if len(candidates) == 0 {
		return &models.PaymentResult{
			Success: false,
			Status:  models.StatusFailed,
			Amount:  intent.Amount,
			Error:   provider.ErrNoProviders.Error(),
		}
	}

	var last *models.PaymentResult
	fields := []zap.Field{
		zap.String("customer", intent.Customer.Key()),
		zap.String("amount", intent.Amount.String()),
	}
	attempts, lastErr := o.failover(ctx, "create_payment", candidates, fields, func(ctx context.Context, p provider.Provider) (attemptOutcome, error) {
		last = nil
		res, err := p.CreatePayment(ctx, intent)
		if err != nil {
			return attemptOutcome{}, err
		}
		if res == nil {
			return attemptOutcome{}, errors.New("provider returned no result")
		}
		if res.Provider == "" {
			res.Provider = p.Name()
		}
		last = res
		return attemptOutcome{success: res.Success, status: res.Status, transactionID: res.TransactionID, errMsg: res.Error}, nil
	})

	if last == nil {
		final := attempts[len(attempts)-1]
		last = &models.PaymentResult{
			Success:  false,
			Provider: final.Provider,
			Status:   models.StatusFailed,
			Amount:   intent.Amount,
			Error:    failureMessage(attempts, lastErr),
		}
	}
	last.Attempts = attempts
	return last
}

// CreateSubscription applies the same ordering to providers that support
// subscriptions.
func (o *Orchestrator) CreateSubscription(ctx context.Context, req *models.SubscriptionRequest) *models.SubscriptionResult {
	var candidates []provider.Provider
	for _, p := range o.providers.Candidates(req.PreferredProvider) {
		if provider.Supports(p, provider.CapCreateSubscription) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return &models.SubscriptionResult{
			Success: false,
			Status:  models.StatusFailed,
			Amount:  req.Amount,
			Error:   provider.ErrNoProviders.Error(),
		}
	}

	var last *models.SubscriptionResult
	fields := []zap.Field{
		zap.String("customer", req.Customer.Key()),
		zap.String("amount", req.Amount.String()),
		zap.String("plan", req.PlanID),
	}
	attempts, lastErr := o.failover(ctx, "create_subscription", candidates, fields, func(ctx context.Context, p provider.Provider) (attemptOutcome, error) {
		last = nil
		res, err := provider.CreateSubscription(ctx, p, req)
		if err != nil {
			return attemptOutcome{}, err
		}
		if res == nil {
			return attemptOutcome{}, errors.New("provider returned no result")
		}
		if res.Provider == "" {
			res.Provider = p.Name()
		}
		last = res
		return attemptOutcome{success: res.Success, status: res.Status, transactionID: res.SubscriptionID, errMsg: res.Error}, nil
	})

	if last == nil {
		final := attempts[len(attempts)-1]
		last = &models.SubscriptionResult{
			Success:  false,
			Provider: final.Provider,
			Status:   models.StatusFailed,
			Amount:   req.Amount,
			Error:    failureMessage(attempts, lastErr),
		}
	}
	last.Attempts = attempts
	return last
}

// Invoke makes a single provider-scoped call with the attempt timeout, panic
// recovery, tracing and metrics. Failures come back as *provider.ProviderError.
func (o *Orchestrator) Invoke(ctx context.Context, op string, p provider.Provider, fn func(ctx context.Context) error) error {
	_, err := o.attempt(ctx, op, 1, p, nil, func(ctx context.Context, p provider.Provider) (attemptOutcome, error) {
		if err := fn(ctx); err != nil {
			return attemptOutcome{}, err
		}
		return attemptOutcome{success: true}, nil
	})
	return err
}

func (o *Orchestrator) failover(ctx context.Context, op string, candidates []provider.Provider, fields []zap.Field, call attemptCall) ([]models.Attempt, error) {
	attempts := make([]models.Attempt, 0, len(candidates))
	var lastErr error
	for i, p := range candidates {
		a, err := o.attempt(ctx, op, i+1, p, fields, call)
		attempts = append(attempts, a)
		lastErr = err
		if a.Success {
			return attempts, nil
		}
		if !o.cfg.FailoverEnabled || ctx.Err() != nil {
			break
		}
		if i < len(candidates)-1 {
			telemetry.Logger.Warn("Provider attempt failed, failing over",
				append(fields,
					zap.String("provider", p.Name()),
					zap.String("next_provider", candidates[i+1].Name()),
					zap.String("stage", op),
					zap.String("error", a.Error),
				)...,
			)
		}
	}
	return attempts, lastErr
}

func (o *Orchestrator) attempt(ctx context.Context, op string, n int, p provider.Provider, fields []zap.Field, call attemptCall) (a models.Attempt, err error) {
	ctx, span := telemetry.Tracer.Start(ctx, "orchestrator.attempt", trace.WithAttributes(
		attribute.String("provider", p.Name()),
		attribute.String("operation", op),
		attribute.Int("attempt", n),
	))
	ctx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	started := time.Now()

	a = models.Attempt{Provider: p.Name(), AttemptNumber: n}
	defer func() {
		if r := recover(); r != nil {
			err = &provider.ProviderError{Provider: p.Name(), Stage: op, Err: fmt.Errorf("panic: %v", r)}
			a.Success = false
			a.Status = models.StatusFailed
			a.Error = err.Error()
		}
		cancel()
		a.Latency = time.Since(started)
		o.finish(span, op, a, err, fields)
	}()

	out, callErr := call(ctx, p)
	if callErr != nil {
		err = &provider.ProviderError{Provider: p.Name(), Stage: op, Err: callErr}
		a.Status = models.StatusFailed
		a.Error = err.Error()
		return a, err
	}
	a.Success = out.success
	a.Status = out.status
	a.TransactionID = out.transactionID
	a.Error = out.errMsg
	return a, nil
}

func (o *Orchestrator) finish(span trace.Span, op string, a models.Attempt, err error, fields []zap.Field) {
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case !a.Success:
		outcome = "declined"
	}
	telemetry.ProviderAttempts.WithLabelValues(a.Provider, op, outcome).Inc()
	telemetry.ProviderLatency.WithLabelValues(a.Provider, op).Observe(a.Latency.Seconds())

	span.SetAttributes(attribute.Bool("success", a.Success))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.Logger.Error("Provider call failed",
			append(fields,
				zap.String("provider", a.Provider),
				zap.String("stage", op),
				zap.Int("attempt", a.AttemptNumber),
				zap.Duration("latency", a.Latency),
				zap.Error(err),
			)...,
		)
	}
	span.End()
}

func failureMessage(attempts []models.Attempt, lastErr error) string {
	msg := "provider call failed"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	if len(attempts) > 1 {
		return fmt.Sprintf("%s: %s", provider.ErrAllProvidersFailed, msg)
	}
	return msg
}
