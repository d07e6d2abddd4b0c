package models

import "time"

type SubscriptionInterval string

const (
	IntervalDay   SubscriptionInterval = "day"
	IntervalWeek  SubscriptionInterval = "week"
	IntervalMonth SubscriptionInterval = "month"
	IntervalYear  SubscriptionInterval = "year"
)

type SubscriptionRequest struct {
	Customer          CustomerInfo         `json:"customer" validate:"required"`
	PlanID            string               `json:"plan_id" validate:"required"`
	Amount            Money                `json:"amount" validate:"required"`
	Interval          SubscriptionInterval `json:"interval" validate:"required,oneof=day week month year"`
	TrialDays         int                  `json:"trial_days,omitempty" validate:"gte=0,lte=365"`
	PreferredProvider string               `json:"preferred_provider,omitempty"`
	Metadata          map[string]string    `json:"metadata,omitempty"`
}

type SubscriptionResult struct {
	Success          bool           `json:"success"`
	SubscriptionID   string         `json:"subscription_id"`
	CustomerID       string         `json:"customer_id,omitempty"`
	Provider         string         `json:"provider"`
	Status           PaymentStatus  `json:"status"`
	Amount           Money          `json:"amount"`
	CurrentPeriodEnd *time.Time     `json:"current_period_end,omitempty"`
	Error            string         `json:"error,omitempty"`
	ProviderResponse map[string]any `json:"provider_response,omitempty"`
	Attempts         []Attempt      `json:"attempts,omitempty"`
}
