package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type FraudCheckContext struct {
	Customer      CustomerInfo `json:"customer"`
	Amount        Money        `json:"amount"`
	PaymentMethod string       `json:"payment_method,omitempty"`
	IPAddress     string       `json:"ip_address,omitempty"`
	UserAgent     string       `json:"user_agent,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

type FraudCheckResult struct {
	RiskScore       int      `json:"risk_score"`
	Passed          bool     `json:"passed"`
	Flags           []string `json:"flags"`
	Recommendations []string `json:"recommendations"`
}

// CustomerHistory is the per-customer state the velocity and failure rules read.
type CustomerHistory struct {
	Count           int             `json:"count"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	LastTransaction time.Time       `json:"last_transaction"`
	WindowStart     time.Time       `json:"window_start"`
	FailedAttempts  int             `json:"failed_attempts"`
}

// FraudBlock is the audit record persisted whenever the gate rejects a payment.
type FraudBlock struct {
	ID          string           `json:"id"`
	CustomerKey string           `json:"customer_key"`
	Email       string           `json:"email"`
	Amount      Money            `json:"amount"`
	IPAddress   string           `json:"ip_address,omitempty"`
	Result      FraudCheckResult `json:"result"`
	CreatedAt   time.Time        `json:"created_at"`
}
