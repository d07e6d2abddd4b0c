package models

import "time"

type DiscrepancyType string

const (
	DiscrepancyMissing        DiscrepancyType = "missing"
	DiscrepancyStatusMismatch DiscrepancyType = "status_mismatch"
	DiscrepancyAmountMismatch DiscrepancyType = "amount_mismatch"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Discrepancy struct {
	TransactionID string          `json:"transaction_id"`
	Type          DiscrepancyType `json:"type"`
	Expected      string          `json:"expected"`
	Actual        string          `json:"actual"`
	Severity      Severity        `json:"severity"`
}

// ReconciliationReport is immutable once generated.
type ReconciliationReport struct {
	ID                     string                `json:"id"`
	Date                   time.Time             `json:"date"`
	Provider               string                `json:"provider"`
	PeriodStart            time.Time             `json:"period_start"`
	PeriodEnd              time.Time             `json:"period_end"`
	TotalTransactions      int                   `json:"total_transactions"`
	SuccessfulTransactions int                   `json:"successful_transactions"`
	FailedTransactions     int                   `json:"failed_transactions"`
	StatusCounts           map[PaymentStatus]int `json:"status_counts"`
	TotalAmount            Amounts               `json:"total_amount"`
	Discrepancies          []Discrepancy         `json:"discrepancies"`
}

func (r *ReconciliationReport) HighSeverityCount() int {
	n := 0
	for _, d := range r.Discrepancies {
		if d.Severity == SeverityHigh {
			n++
		}
	}
	return n
}
