// Package sandbox is an in-memory provider used for local development and tests.
// It keeps its own view of every payment so reconciliation and webhooks can be
// exercised end to end without network access.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/provider"
)

// ManualCaptureKey in PaymentIntent.Metadata leaves a new payment authorized
// (PROCESSING) until CapturePayment is called.
const ManualCaptureKey = "capture_method"

type Provider struct {
	name   string
	secret string

	mu            sync.RWMutex
	payments      map[string]*models.PaymentResult
	subscriptions map[string]*models.SubscriptionResult
	refunded      map[string]decimal.Decimal
	failErr       error
	decline       string
	healthy       bool

	calls atomic.Int64
}

func New(name, webhookSecret string) *Provider {
	return &Provider{
		name:          name,
		secret:        webhookSecret,
		payments:      make(map[string]*models.PaymentResult),
		subscriptions: make(map[string]*models.SubscriptionResult),
		refunded:      make(map[string]decimal.Decimal),
		healthy:       true,
	}
}

// FailWith makes subsequent CreatePayment calls return err. Nil clears it.
func (p *Provider) FailWith(err error) {
	p.mu.Lock()
	p.failErr = err
	p.mu.Unlock()
}

// DeclineWith makes subsequent CreatePayment calls return a declined result.
func (p *Provider) DeclineWith(reason string) {
	p.mu.Lock()
	p.decline = reason
	p.mu.Unlock()
}

func (p *Provider) SetHealthy(healthy bool) {
	p.mu.Lock()
	p.healthy = healthy
	p.mu.Unlock()
}

// SetStatus overrides the provider-side status of a payment, simulating drift.
func (p *Provider) SetStatus(transactionID string, status models.PaymentStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pay, ok := p.payments[transactionID]; ok {
		pay.Status = status
		pay.Success = !status.IsFailure()
	}
}

func (p *Provider) SetAmount(transactionID string, amount models.Money) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pay, ok := p.payments[transactionID]; ok {
		pay.Amount = amount
	}
}

// Forget drops a payment so status queries report it as unknown.
func (p *Provider) Forget(transactionID string) {
	p.mu.Lock()
	delete(p.payments, transactionID)
	delete(p.refunded, transactionID)
	p.mu.Unlock()
}

// Seed registers a payment as if it had been created earlier.
func (p *Provider) Seed(transactionID string, status models.PaymentStatus, amount models.Money) {
	p.mu.Lock()
	p.payments[transactionID] = &models.PaymentResult{
		Success:       !status.IsFailure(),
		TransactionID: transactionID,
		Provider:      p.name,
		Status:        status,
		Amount:        amount,
	}
	p.mu.Unlock()
}

// Calls counts CreatePayment invocations.
func (p *Provider) Calls() int64 { return p.calls.Load() }

func (p *Provider) Name() string { return p.name }

func (p *Provider) CreatePayment(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentResult, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failErr != nil {
		return nil, p.failErr
	}
	if p.decline != "" {
		return &models.PaymentResult{
			Success:  false,
			Provider: p.name,
			Status:   models.StatusFailed,
			Amount:   intent.Amount,
			Error:    p.decline,
		}, nil
	}

	status := models.StatusCompleted
	if intent.Metadata[ManualCaptureKey] == "manual" {
		status = models.StatusProcessing
	}
	res := &models.PaymentResult{
		Success:          true,
		TransactionID:    "sbx_" + uuid.NewString(),
		Provider:         p.name,
		Status:           status,
		Amount:           intent.Amount,
		ProviderResponse: map[string]any{"sandbox": true},
	}
	p.payments[res.TransactionID] = res
	out := *res
	return &out, nil
}

func (p *Provider) GetPaymentStatus(ctx context.Context, transactionID string) (*models.PaymentResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pay, ok := p.payments[transactionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrTransactionNotFound, transactionID)
	}
	out := *pay
	return &out, nil
}

func (p *Provider) Refund(ctx context.Context, req *models.RefundRequest) (*models.RefundResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pay, ok := p.payments[req.TransactionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrTransactionNotFound, req.TransactionID)
	}
	if pay.Status != models.StatusCompleted && pay.Status != models.StatusPartiallyRefunded {
		return &models.RefundResult{
			Success:       false,
			TransactionID: req.TransactionID,
			Provider:      p.name,
			Status:        models.StatusFailed,
			Error:         fmt.Sprintf("payment is %s", pay.Status),
		}, nil
	}

	// Refunds draw down what is left of the payment, not the original amount.
	remaining := pay.Amount.Amount.Sub(p.refunded[req.TransactionID])
	amount := models.Money{Amount: remaining, Currency: pay.Amount.Currency}
	if req.Amount != nil {
		if req.Amount.Currency != pay.Amount.Currency || req.Amount.Amount.GreaterThan(remaining) {
			return &models.RefundResult{
				Success:       false,
				TransactionID: req.TransactionID,
				Provider:      p.name,
				Status:        models.StatusFailed,
				Error:         "refund exceeds refundable amount",
			}, nil
		}
		amount = *req.Amount
	}
	p.refunded[req.TransactionID] = p.refunded[req.TransactionID].Add(amount.Amount)

	status := models.StatusRefunded
	if p.refunded[req.TransactionID].LessThan(pay.Amount.Amount) {
		status = models.StatusPartiallyRefunded
	}
	pay.Status = status

	return &models.RefundResult{
		Success:       true,
		RefundID:      "sbx_re_" + uuid.NewString(),
		TransactionID: req.TransactionID,
		Provider:      p.name,
		Status:        status,
		Amount:        amount,
	}, nil
}

func (p *Provider) CapturePayment(ctx context.Context, transactionID string, amount *models.Money) (*models.PaymentResult, error) {
	return p.transition(transactionID, models.StatusCompleted, amount)
}

func (p *Provider) CancelPayment(ctx context.Context, transactionID string) (*models.PaymentResult, error) {
	return p.transition(transactionID, models.StatusCancelled, nil)
}

func (p *Provider) transition(transactionID string, next models.PaymentStatus, amount *models.Money) (*models.PaymentResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pay, ok := p.payments[transactionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrTransactionNotFound, transactionID)
	}
	if !pay.Status.CanTransition(next) {
		out := *pay
		out.Success = false
		out.Error = fmt.Sprintf("cannot move payment from %s to %s", pay.Status, next)
		return &out, nil
	}
	pay.Status = next
	pay.Success = !next.IsFailure()
	if amount != nil {
		pay.Amount = *amount
	}
	out := *pay
	out.Success = true
	return &out, nil
}

func (p *Provider) CreateCustomer(ctx context.Context, customer *models.CustomerInfo) (*models.CustomerResult, error) {
	return &models.CustomerResult{Success: true, CustomerID: "sbx_cus_" + uuid.NewString(), Provider: p.name}, nil
}

func (p *Provider) CreateSubscription(ctx context.Context, req *models.SubscriptionRequest) (*models.SubscriptionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failErr != nil {
		return nil, p.failErr
	}
	end := time.Now().UTC().AddDate(0, 0, req.TrialDays)
	switch req.Interval {
	case models.IntervalDay:
		end = end.AddDate(0, 0, 1)
	case models.IntervalWeek:
		end = end.AddDate(0, 0, 7)
	case models.IntervalYear:
		end = end.AddDate(1, 0, 0)
	default:
		end = end.AddDate(0, 1, 0)
	}
	sub := &models.SubscriptionResult{
		Success:          true,
		SubscriptionID:   "sbx_sub_" + uuid.NewString(),
		CustomerID:       req.Customer.Key(),
		Provider:         p.name,
		Status:           models.StatusCompleted,
		Amount:           req.Amount,
		CurrentPeriodEnd: &end,
	}
	p.subscriptions[sub.SubscriptionID] = sub
	out := *sub
	return &out, nil
}

func (p *Provider) CancelSubscription(ctx context.Context, subscriptionID string) (*models.SubscriptionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrTransactionNotFound, subscriptionID)
	}
	sub.Status = models.StatusCancelled
	out := *sub
	return &out, nil
}

func (p *Provider) GetSubscription(ctx context.Context, subscriptionID string) (*models.SubscriptionResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sub, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrTransactionNotFound, subscriptionID)
	}
	out := *sub
	return &out, nil
}

func (p *Provider) ListSubscriptions(ctx context.Context, customerID string) ([]models.SubscriptionResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []models.SubscriptionResult
	for _, sub := range p.subscriptions {
		if sub.CustomerID == customerID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (p *Provider) VerifyWebhook(payload []byte, signature string) bool {
	return provider.VerifyPayload(p.secret, payload, signature)
}

// ParseWebhook accepts the normalized event JSON directly.
func (p *Provider) ParseWebhook(payload []byte) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("webhook missing id or type")
	}
	event.Provider = p.name
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return &event, nil
}

// HandleWebhook applies the event to the sandbox's own view of the payment.
func (p *Provider) HandleWebhook(ctx context.Context, event *models.WebhookEvent) error {
	if models.TypeForEvent(event.Type) != models.TypePayment {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if pay, ok := p.payments[event.TransactionID]; ok {
		pay.Status = models.StatusForEvent(event.Type)
		pay.Success = !pay.Status.IsFailure()
	}
	return nil
}

func (p *Provider) HealthCheck(ctx context.Context) provider.HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.healthy {
		return provider.HealthStatus{Healthy: false, Message: "sandbox marked unhealthy"}
	}
	return provider.HealthStatus{Healthy: true}
}

// SignedEvent builds a webhook body for event and its signature, for replaying
// deliveries in tests and via the CLI.
func (p *Provider) SignedEvent(event models.WebhookEvent) ([]byte, string, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, "", err
	}
	return body, provider.SignPayload(p.secret, body), nil
}
