package models

import (
	"strings"
	"time"
)

// Normalized webhook event types. Providers map their own vocabulary onto these.
const (
	EventPaymentSucceeded      = "payment.succeeded"
	EventPaymentFailed         = "payment.failed"
	EventPaymentProcessing     = "payment.processing"
	EventRefundCreated         = "refund.created"
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionCancelled = "subscription.cancelled"
)

type WebhookEvent struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Provider      string         `json:"provider"`
	TransactionID string         `json:"transaction_id,omitempty"`
	CustomerID    string         `json:"customer_id,omitempty"`
	Amount        *Money         `json:"amount,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// StatusForEvent maps a webhook event type onto the shared status vocabulary.
func StatusForEvent(eventType string) PaymentStatus {
	t := strings.ToLower(eventType)
	switch {
	case strings.Contains(t, "succeeded"), strings.Contains(t, "completed"):
		return StatusCompleted
	case strings.Contains(t, "failed"):
		return StatusFailed
	case strings.HasPrefix(t, "refund") && strings.Contains(t, "created"):
		return StatusRefunded
	case strings.HasPrefix(t, "subscription") && (strings.Contains(t, "cancelled") || strings.Contains(t, "canceled")):
		return StatusCancelled
	default:
		return StatusPending
	}
}

// TypeForEvent picks the ledger transaction type a webhook event is recorded under.
func TypeForEvent(eventType string) TransactionType {
	t := strings.ToLower(eventType)
	switch {
	case strings.HasPrefix(t, "refund"):
		return TypeRefund
	case strings.HasPrefix(t, "subscription"):
		return TypeSubscription
	case strings.HasPrefix(t, "payout"):
		return TypePayout
	default:
		return TypePayment
	}
}
