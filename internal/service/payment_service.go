// Package service is the inbound API of the payment core: it validates
// requests, runs the fraud gate, drives providers through the orchestrator and
// records every attempt in the ledger.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/ledger"
	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/provider"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

type ProviderRegistry interface {
	CandidateSource
	Get(name string) (provider.Provider, error)
}

type FraudGate interface {
	Evaluate(ctx context.Context, check *models.FraudCheckContext) (*models.FraudCheckResult, error)
	RecordOutcome(ctx context.Context, customer models.CustomerInfo, amount models.Money, success bool) error
}

type TransactionLedger interface {
	Append(ctx context.Context, entry *models.TransactionLog) error
	Latest(ctx context.Context, transactionID string) (*models.TransactionLog, error)
	GetByTransactionID(ctx context.Context, transactionID string) ([]models.TransactionLog, error)
	ListByProvider(ctx context.Context, provider string) ([]models.TransactionLog, error)
	ListByCustomer(ctx context.Context, customerID string) ([]models.TransactionLog, error)
	ListByDateRange(ctx context.Context, start, end time.Time) ([]models.TransactionLog, error)
	Statistics(ctx context.Context, start, end time.Time) (*models.Statistics, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, provider string, start, end time.Time) (*models.ReconciliationReport, error)
	ReconcileAll(ctx context.Context, start, end time.Time) ([]models.ReconciliationReport, error)
	Reports(ctx context.Context, provider string, limit int) ([]models.ReconciliationReport, error)
}

type PaymentService struct {
	registry     ProviderRegistry
	orchestrator *Orchestrator
	fraud        FraudGate
	ledger       TransactionLedger
	reconciler   Reconciler
	validate     *validator.Validate
}

func NewPaymentService(registry ProviderRegistry, orchestrator *Orchestrator, fraud FraudGate, ledger TransactionLedger, reconciler Reconciler) *PaymentService {
	return &PaymentService{
		registry:     registry,
		orchestrator: orchestrator,
		fraud:        fraud,
		ledger:       ledger,
		reconciler:   reconciler,
		validate:     validator.New(),
	}
}

// CreatePayment validates the intent, runs the fraud gate and charges through
// the orchestrator. A blocked or invalid intent never reaches a provider.
// Provider failures are reported in the result, not as an error.
func (s *PaymentService) CreatePayment(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentResult, error) {
	if err := s.validatePayment(intent); err != nil {
		return nil, err
	}

	verdict, err := s.fraud.Evaluate(ctx, &models.FraudCheckContext{
		Customer:      intent.Customer,
		Amount:        intent.Amount,
		PaymentMethod: intent.PaymentMethod,
		IPAddress:     intent.IPAddress,
		UserAgent:     intent.UserAgent,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("fraud check: %w", err)
	}
	if !verdict.Passed {
		return nil, &FraudBlockedError{Result: verdict}
	}

	result := s.orchestrator.CreatePayment(ctx, intent)
	if len(result.Attempts) == 0 {
		telemetry.Logger.Error("Payment not attempted",
			zap.String("customer", intent.Customer.Key()),
			zap.String("amount", intent.Amount.String()),
			zap.String("error", result.Error),
		)
		return result, nil
	}

	request, _ := json.Marshal(intent)
	for i, a := range result.Attempts {
		entry := &models.TransactionLog{
			TransactionID: a.TransactionID,
			Type:          models.TypePayment,
			Provider:      a.Provider,
			Status:        a.Status,
			Amount:        intent.Amount,
			CustomerID:    intent.Customer.Key(),
			Request:       request,
			Error:         a.Error,
		}
		if i == len(result.Attempts)-1 {
			entry.Response = marshalResponse(result.ProviderResponse)
		}
		s.appendAttempt(ctx, entry)
	}

	if err := s.fraud.RecordOutcome(ctx, intent.Customer, intent.Amount, result.Success); err != nil {
		telemetry.Logger.Error("Failed to record fraud history",
			zap.String("customer", intent.Customer.Key()),
			zap.Error(err),
		)
	}
	return result, nil
}

// GetPaymentStatus asks the provider that owns the transaction. It never fails over.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, transactionID, providerName string) (*models.PaymentResult, error) {
	p, err := s.resolveProvider(ctx, transactionID, providerName)
	if err != nil {
		return nil, err
	}
	var res *models.PaymentResult
	err = s.orchestrator.Invoke(ctx, "status", p, func(ctx context.Context) error {
		var callErr error
		res, callErr = p.GetPaymentStatus(ctx, transactionID)
		return callErr
	})
	if err != nil {
		if errors.Is(err, provider.ErrTransactionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
		}
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
	}
	return res, nil
}

// Refund targets the provider that charged the payment. When providerName is
// empty it is taken from the ledger.
func (s *PaymentService) Refund(ctx context.Context, req *models.RefundRequest, providerName string) (*models.RefundResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, newValidationError(err)
	}
	if req.Amount != nil && !req.Amount.Amount.IsPositive() {
		return nil, &ValidationError{Fields: map[string]string{"RefundRequest.Amount": "gt"}}
	}

	p, err := s.resolveProvider(ctx, req.TransactionID, providerName)
	if err != nil {
		return nil, err
	}

	var res *models.RefundResult
	err = s.orchestrator.Invoke(ctx, "refund", p, func(ctx context.Context) error {
		var callErr error
		res, callErr = p.Refund(ctx, req)
		return callErr
	})
	if err != nil || res == nil {
		msg := "provider returned no result"
		if err != nil {
			msg = err.Error()
		}
		res = &models.RefundResult{
			Success:       false,
			TransactionID: req.TransactionID,
			Provider:      p.Name(),
			Status:        models.StatusFailed,
			Error:         msg,
		}
	}
	if res.Provider == "" {
		res.Provider = p.Name()
	}

	history, _ := s.ledger.GetByTransactionID(ctx, req.TransactionID)
	original := originalPayment(history)
	amount := res.Amount
	if amount.IsZero() {
		switch {
		case req.Amount != nil:
			amount = *req.Amount
		case original != nil:
			amount = original.Amount
		}
	}

	entry := &models.TransactionLog{
		Type:       models.TypeRefund,
		Provider:   res.Provider,
		Amount:     amount,
		Error:      res.Error,
		Response:   marshalResponse(res.ProviderResponse),
		CustomerID: customerOf(original),
	}
	entry.Request, _ = json.Marshal(req)
	if res.Success {
		if res.Status == "" {
			res.Status = refundedStatus(amount, original, history)
		}
		entry.TransactionID = req.TransactionID
		entry.Status = res.Status
	} else {
		entry.TransactionID = res.RefundID
		entry.Status = models.StatusFailed
	}
	s.appendAttempt(ctx, entry)
	return res, nil
}

func (s *PaymentService) CapturePayment(ctx context.Context, providerName, transactionID string, amount *models.Money) (*models.PaymentResult, error) {
	return s.paymentAction(ctx, providerName, transactionID, provider.CapCapturePayment, func(ctx context.Context, p provider.Provider) (*models.PaymentResult, error) {
		return provider.CapturePayment(ctx, p, transactionID, amount)
	})
}

func (s *PaymentService) CancelPayment(ctx context.Context, providerName, transactionID string) (*models.PaymentResult, error) {
	return s.paymentAction(ctx, providerName, transactionID, provider.CapCancelPayment, func(ctx context.Context, p provider.Provider) (*models.PaymentResult, error) {
		return provider.CancelPayment(ctx, p, transactionID)
	})
}

func (s *PaymentService) paymentAction(ctx context.Context, providerName, transactionID string, capability provider.Capability, call func(context.Context, provider.Provider) (*models.PaymentResult, error)) (*models.PaymentResult, error) {
	p, err := s.resolveProvider(ctx, transactionID, providerName)
	if err != nil {
		return nil, err
	}
	if !provider.Supports(p, capability) {
		return nil, &provider.CapabilityError{Provider: p.Name(), Capability: capability}
	}

	var res *models.PaymentResult
	err = s.orchestrator.Invoke(ctx, string(capability), p, func(ctx context.Context) error {
		var callErr error
		res, callErr = call(ctx, p)
		return callErr
	})
	if err != nil {
		if errors.Is(err, provider.ErrTransactionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
		}
		return &models.PaymentResult{
			Success:       false,
			TransactionID: transactionID,
			Provider:      p.Name(),
			Status:        models.StatusFailed,
			Error:         err.Error(),
		}, nil
	}
	if res == nil || !res.Success {
		if res == nil {
			res = &models.PaymentResult{Success: false, TransactionID: transactionID, Provider: p.Name(), Error: "provider returned no result"}
		}
		return res, nil
	}

	original, _ := s.ledger.Latest(ctx, transactionID)
	amount := res.Amount
	if amount.IsZero() && original != nil {
		amount = original.Amount
	}
	s.appendAttempt(ctx, &models.TransactionLog{
		TransactionID: transactionID,
		Type:          models.TypePayment,
		Provider:      p.Name(),
		Status:        res.Status,
		Amount:        amount,
		CustomerID:    customerOf(original),
		Response:      marshalResponse(res.ProviderResponse),
	})
	return res, nil
}

func (s *PaymentService) CreateCustomer(ctx context.Context, providerName string, customer *models.CustomerInfo) (*models.CustomerResult, error) {
	if err := s.validate.Struct(customer); err != nil {
		return nil, newValidationError(err)
	}
	p, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}
	if !provider.Supports(p, provider.CapCreateCustomer) {
		return nil, &provider.CapabilityError{Provider: p.Name(), Capability: provider.CapCreateCustomer}
	}

	var res *models.CustomerResult
	err = s.orchestrator.Invoke(ctx, string(provider.CapCreateCustomer), p, func(ctx context.Context) error {
		var callErr error
		res, callErr = provider.CreateCustomer(ctx, p, customer)
		return callErr
	})
	if err != nil || res == nil {
		msg := "provider returned no result"
		if err != nil {
			msg = err.Error()
		}
		return &models.CustomerResult{Success: false, Provider: p.Name(), Error: msg}, nil
	}
	return res, nil
}

// CreateSubscription fails over across providers that support subscriptions.
func (s *PaymentService) CreateSubscription(ctx context.Context, req *models.SubscriptionRequest) (*models.SubscriptionResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, newValidationError(err)
	}
	if !req.Amount.Amount.IsPositive() {
		return nil, &ValidationError{Fields: map[string]string{"SubscriptionRequest.Amount": "gt"}}
	}

	result := s.orchestrator.CreateSubscription(ctx, req)
	request, _ := json.Marshal(req)
	for _, a := range result.Attempts {
		s.appendAttempt(ctx, &models.TransactionLog{
			TransactionID: a.TransactionID,
			Type:          models.TypeSubscription,
			Provider:      a.Provider,
			Status:        a.Status,
			Amount:        req.Amount,
			CustomerID:    req.Customer.Key(),
			Request:       request,
			Error:         a.Error,
		})
	}
	return result, nil
}

func (s *PaymentService) CancelSubscription(ctx context.Context, providerName, subscriptionID string) (*models.SubscriptionResult, error) {
	res, err := s.subscriptionCall(ctx, providerName, provider.CapCancelSubscription, func(ctx context.Context, p provider.Provider) (*models.SubscriptionResult, error) {
		return provider.CancelSubscription(ctx, p, subscriptionID)
	})
	if err != nil {
		return nil, err
	}
	if res.Success {
		s.appendAttempt(ctx, &models.TransactionLog{
			TransactionID: subscriptionID,
			Type:          models.TypeSubscription,
			Provider:      res.Provider,
			Status:        models.StatusCancelled,
			Amount:        res.Amount,
			CustomerID:    res.CustomerID,
		})
	}
	return res, nil
}

func (s *PaymentService) GetSubscription(ctx context.Context, providerName, subscriptionID string) (*models.SubscriptionResult, error) {
	return s.subscriptionCall(ctx, providerName, provider.CapGetSubscription, func(ctx context.Context, p provider.Provider) (*models.SubscriptionResult, error) {
		return provider.GetSubscription(ctx, p, subscriptionID)
	})
}

func (s *PaymentService) ListSubscriptions(ctx context.Context, providerName, customerID string) ([]models.SubscriptionResult, error) {
	p, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}
	if !provider.Supports(p, provider.CapListSubscriptions) {
		return nil, &provider.CapabilityError{Provider: p.Name(), Capability: provider.CapListSubscriptions}
	}
	var out []models.SubscriptionResult
	err = s.orchestrator.Invoke(ctx, string(provider.CapListSubscriptions), p, func(ctx context.Context) error {
		var callErr error
		out, callErr = provider.ListSubscriptions(ctx, p, customerID)
		return callErr
	})
	return out, err
}

func (s *PaymentService) subscriptionCall(ctx context.Context, providerName string, capability provider.Capability, call func(context.Context, provider.Provider) (*models.SubscriptionResult, error)) (*models.SubscriptionResult, error) {
	p, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}
	if !provider.Supports(p, capability) {
		return nil, &provider.CapabilityError{Provider: p.Name(), Capability: capability}
	}
	var res *models.SubscriptionResult
	err = s.orchestrator.Invoke(ctx, string(capability), p, func(ctx context.Context) error {
		var callErr error
		res, callErr = call(ctx, p)
		return callErr
	})
	if err != nil {
		if errors.Is(err, provider.ErrTransactionNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrTransactionNotFound, err)
		}
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: empty provider response", provider.ErrProviderFailed)
	}
	if res.Provider == "" {
		res.Provider = p.Name()
	}
	return res, nil
}

func (s *PaymentService) Reconcile(ctx context.Context, providerName string, start, end time.Time) (*models.ReconciliationReport, error) {
	return s.reconciler.Reconcile(ctx, providerName, start, end)
}

func (s *PaymentService) ReconcileAll(ctx context.Context, start, end time.Time) ([]models.ReconciliationReport, error) {
	return s.reconciler.ReconcileAll(ctx, start, end)
}

func (s *PaymentService) ReconciliationReports(ctx context.Context, providerName string, limit int) ([]models.ReconciliationReport, error) {
	return s.reconciler.Reports(ctx, providerName, limit)
}

func (s *PaymentService) GetStatistics(ctx context.Context, start, end time.Time) (*models.Statistics, error) {
	if !end.After(start) {
		return nil, &ValidationError{Msg: "end must be after start"}
	}
	return s.ledger.Statistics(ctx, start, end)
}

// Transaction returns the full history of one transaction.
func (s *PaymentService) Transaction(ctx context.Context, transactionID string) ([]models.TransactionLog, error) {
	rows, err := s.ledger.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
	}
	return rows, nil
}

type TransactionFilter struct {
	Provider string
	Customer string
	Start    time.Time
	End      time.Time
}

func (s *PaymentService) Transactions(ctx context.Context, f TransactionFilter) ([]models.TransactionLog, error) {
	switch {
	case f.Provider != "":
		return s.ledger.ListByProvider(ctx, f.Provider)
	case f.Customer != "":
		return s.ledger.ListByCustomer(ctx, f.Customer)
	case !f.Start.IsZero() && !f.End.IsZero():
		if !f.End.After(f.Start) {
			return nil, &ValidationError{Msg: "end must be after start"}
		}
		return s.ledger.ListByDateRange(ctx, f.Start, f.End)
	default:
		return nil, &ValidationError{Msg: "one of provider, customer or a from/to range is required"}
	}
}

func (s *PaymentService) validatePayment(intent *models.PaymentIntent) error {
	if err := s.validate.Struct(intent); err != nil {
		return newValidationError(err)
	}
	if !intent.Amount.Amount.IsPositive() {
		return &ValidationError{Fields: map[string]string{"PaymentIntent.Amount": "gt"}}
	}
	return nil
}

// resolveProvider uses providerName when given and otherwise the provider the
// ledger recorded for the transaction.
func (s *PaymentService) resolveProvider(ctx context.Context, transactionID, providerName string) (provider.Provider, error) {
	if providerName == "" {
		latest, err := s.ledger.Latest(ctx, transactionID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
			}
			return nil, err
		}
		providerName = latest.Provider
	}
	return s.registry.Get(providerName)
}

// appendAttempt writes a ledger row. The provider call has already happened, so
// a ledger failure is logged rather than returned.
func (s *PaymentService) appendAttempt(ctx context.Context, entry *models.TransactionLog) {
	if entry.TransactionID == "" {
		entry.TransactionID = models.LocalTransactionPrefix + uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = models.StatusFailed
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		telemetry.Logger.Error("Failed to record ledger entry",
			zap.String("transaction_id", entry.TransactionID),
			zap.String("provider", entry.Provider),
			zap.String("type", string(entry.Type)),
			zap.String("status", string(entry.Status)),
			zap.Error(err),
		)
	}
}

// refundedStatus decides between REFUNDED and PARTIALLY_REFUNDED from the
// cumulative refunded amount, for providers that report no status on refunds.
func refundedStatus(refunded models.Money, original *models.TransactionLog, history []models.TransactionLog) models.PaymentStatus {
	if original == nil || original.Amount.Currency != refunded.Currency {
		return models.StatusRefunded
	}
	total := refunded.Amount
	for _, e := range history {
		if e.Type != models.TypeRefund || e.Amount.Currency != refunded.Currency {
			continue
		}
		if e.Status == models.StatusRefunded || e.Status == models.StatusPartiallyRefunded {
			total = total.Add(e.Amount.Amount)
		}
	}
	if total.LessThan(original.Amount.Amount) {
		return models.StatusPartiallyRefunded
	}
	return models.StatusRefunded
}

// originalPayment is the latest PAYMENT row of a transaction's history.
func originalPayment(history []models.TransactionLog) *models.TransactionLog {
	var out *models.TransactionLog
	for i := range history {
		e := &history[i]
		if e.Type != models.TypePayment {
			continue
		}
		if out == nil || !e.CreatedAt.Before(out.CreatedAt) {
			out = e
		}
	}
	return out
}

func customerOf(entry *models.TransactionLog) string {
	if entry == nil {
		return ""
	}
	return entry.CustomerID
}

func marshalResponse(resp map[string]any) json.RawMessage {
	if len(resp) == 0 {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil
	}
	return raw
}
