package gateway

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

type customerPayload struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type paymentRequest struct {
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	Customer    customerPayload   `json:"customer"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ReturnURL   string            `json:"return_url,omitempty"`
	CancelURL   string            `json:"cancel_url,omitempty"`
	WebhookURL  string            `json:"webhook_url,omitempty"`
	Method      string            `json:"payment_method,omitempty"`
}

type amountRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

type paymentObject struct {
	ID          string          `json:"id"`
	PaymentID   string          `json:"payment_id,omitempty"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	CustomerID  string          `json:"customer,omitempty"`
	RedirectURL string          `json:"redirect_url,omitempty"`
	FailureCode string          `json:"failure_code,omitempty"`
	FailureMsg  string          `json:"failure_message,omitempty"`
}

type subscriptionRequest struct {
	Customer  customerPayload   `json:"customer"`
	PlanID    string            `json:"plan_id"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  string            `json:"currency"`
	Interval  string            `json:"interval"`
	TrialDays int               `json:"trial_days,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type subscriptionObject struct {
	ID               string          `json:"id"`
	CustomerID       string          `json:"customer"`
	Status           string          `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	CurrentPeriodEnd int64           `json:"current_period_end,omitempty"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type webhookEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object map[string]any `json:"object"`
	} `json:"data"`
}

// mapStatus normalizes gateway statuses. Unknown values are held as PENDING so
// they are re-checked rather than treated as terminal.
func mapStatus(s string) models.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "succeeded", "completed", "paid", "active", "captured":
		return models.StatusCompleted
	case "processing", "authorized":
		return models.StatusProcessing
	case "failed", "declined", "expired":
		return models.StatusFailed
	case "canceled", "cancelled", "voided":
		return models.StatusCancelled
	case "refunded":
		return models.StatusRefunded
	case "partially_refunded":
		return models.StatusPartiallyRefunded
	default:
		return models.StatusPending
	}
}

var eventTypes = map[string]string{
	"charge.succeeded":      models.EventPaymentSucceeded,
	"charge.failed":         models.EventPaymentFailed,
	"charge.pending":        models.EventPaymentProcessing,
	"refund.created":        models.EventRefundCreated,
	"subscription.created":  models.EventSubscriptionCreated,
	"subscription.canceled": models.EventSubscriptionCancelled,
}

func normalizeEventType(t string) string {
	if n, ok := eventTypes[t]; ok {
		return n
	}
	return t
}
