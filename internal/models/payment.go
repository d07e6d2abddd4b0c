package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending           PaymentStatus = "PENDING"
	StatusProcessing        PaymentStatus = "PROCESSING"
	StatusCompleted         PaymentStatus = "COMPLETED"
	StatusFailed            PaymentStatus = "FAILED"
	StatusCancelled         PaymentStatus = "CANCELLED"
	StatusRefunded          PaymentStatus = "REFUNDED"
	StatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

var allowedTransitions = map[PaymentStatus][]PaymentStatus{
	StatusPending:           {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing:        {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:         {StatusRefunded, StatusPartiallyRefunded},
	StatusPartiallyRefunded: {StatusRefunded, StatusPartiallyRefunded},
}

// CanTransition reports whether the status machine allows moving from s to next.
// PENDING may jump straight to a terminal state because providers often skip PROCESSING.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsFailure() bool {
	return s == StatusFailed || s == StatusCancelled
}

func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) IsInFlight() bool {
	return s == StatusPending || s == StatusProcessing
}

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyKGS Currency = "KGS"
)

// Money is an amount in a single currency. Amounts in different currencies are
// never summed or compared without an explicit conversion.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency" validate:"required,len=3,uppercase"`
}

func NewMoney(amount string, currency Currency) Money {
	return Money{Amount: decimal.RequireFromString(amount), Currency: currency}
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero() && m.Currency == ""
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + string(m.Currency)
}

// Amounts holds per-currency totals.
type Amounts map[Currency]decimal.Decimal

func (a Amounts) Add(m Money) {
	a[m.Currency] = a[m.Currency].Add(m.Amount)
}

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

type CustomerInfo struct {
	ID      string   `json:"id,omitempty"`
	Email   string   `json:"email" validate:"required,email"`
	Name    string   `json:"name" validate:"required"`
	Phone   string   `json:"phone,omitempty"`
	Address *Address `json:"address,omitempty"`
}

// Key returns the stable identity used for fraud history and idempotency.
func (c CustomerInfo) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return strings.ToLower(strings.TrimSpace(c.Email))
}

// PaymentIntent is the request to charge a customer. It is never persisted as-is.
type PaymentIntent struct {
	Amount            Money             `json:"amount" validate:"required"`
	Customer          CustomerInfo      `json:"customer" validate:"required"`
	PreferredProvider string            `json:"preferred_provider,omitempty"`
	Description       string            `json:"description,omitempty" validate:"max=500"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	ReturnURL         string            `json:"return_url,omitempty" validate:"omitempty,url"`
	CancelURL         string            `json:"cancel_url,omitempty" validate:"omitempty,url"`
	WebhookURL        string            `json:"webhook_url,omitempty" validate:"omitempty,url"`
	PaymentMethod     string            `json:"payment_method,omitempty"`
	IPAddress         string            `json:"ip_address,omitempty" validate:"omitempty,ip"`
	UserAgent         string            `json:"user_agent,omitempty"`
}

// Attempt records one provider call made while serving a request.
type Attempt struct {
	Provider      string        `json:"provider"`
	AttemptNumber int           `json:"attempt_number"`
	Success       bool          `json:"success"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Error         string        `json:"error,omitempty"`
	Latency       time.Duration `json:"latency"`
}

type PaymentResult struct {
	Success          bool           `json:"success"`
	TransactionID    string         `json:"transaction_id"`
	Provider         string         `json:"provider"`
	Status           PaymentStatus  `json:"status"`
	Amount           Money          `json:"amount"`
	Error            string         `json:"error,omitempty"`
	ProviderResponse map[string]any `json:"provider_response,omitempty"`
	RedirectURL      string         `json:"redirect_url,omitempty"`
	Attempts         []Attempt      `json:"attempts,omitempty"`
}

// RefundRequest refunds a previously completed payment. A nil Amount refunds in full.
type RefundRequest struct {
	TransactionID string            `json:"transaction_id" validate:"required"`
	Amount        *Money            `json:"amount,omitempty"`
	Reason        string            `json:"reason,omitempty" validate:"max=500"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type RefundResult struct {
	Success          bool           `json:"success"`
	RefundID         string         `json:"refund_id"`
	TransactionID    string         `json:"transaction_id"`
	Provider         string         `json:"provider"`
	Status           PaymentStatus  `json:"status"`
	Amount           Money          `json:"amount"`
	Error            string         `json:"error,omitempty"`
	ProviderResponse map[string]any `json:"provider_response,omitempty"`
}

type CustomerResult struct {
	Success    bool   `json:"success"`
	CustomerID string `json:"customer_id"`
	Provider   string `json:"provider"`
	Error      string `json:"error,omitempty"`
}

// ProviderPriority is runtime configuration; lower priority values are tried first.
type ProviderPriority struct {
	Provider string `json:"provider"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
}
