package models

import (
	"encoding/json"
	"strings"
	"time"
)

type TransactionType string

const (
	TypePayment      TransactionType = "PAYMENT"
	TypeRefund       TransactionType = "REFUND"
	TypeSubscription TransactionType = "SUBSCRIPTION"
	TypePayout       TransactionType = "PAYOUT"
)

// LocalTransactionPrefix marks ids minted by this service for attempts the
// provider never acknowledged. Providers have no record of them.
const LocalTransactionPrefix = "local_"

func IsLocalTransactionID(id string) bool {
	return strings.HasPrefix(id, LocalTransactionPrefix)
}

// TransactionLog is an immutable ledger row. A transaction accumulates rows over
// its lifetime; the latest row by CreatedAt is authoritative.
type TransactionLog struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	Type          TransactionType `json:"type"`
	Provider      string          `json:"provider"`
	Status        PaymentStatus   `json:"status"`
	Amount        Money           `json:"amount"`
	CustomerID    string          `json:"customer_id,omitempty"`
	EventID       string          `json:"event_id,omitempty"`
	Request       json.RawMessage `json:"request,omitempty"`
	Response      json.RawMessage `json:"response,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// LatestByTransaction keeps the authoritative (latest) row per transaction id.
// Rows are expected in append order, so later rows win ties on CreatedAt.
func LatestByTransaction(entries []TransactionLog) map[string]TransactionLog {
	latest := make(map[string]TransactionLog, len(entries))
	for _, e := range entries {
		cur, ok := latest[e.TransactionID]
		if !ok || !e.CreatedAt.Before(cur.CreatedAt) {
			latest[e.TransactionID] = e
		}
	}
	return latest
}

type StatisticsBucket struct {
	Total         int     `json:"total"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	Pending       int     `json:"pending"`
	SuccessAmount Amounts `json:"success_amount"`
	FailedAmount  Amounts `json:"failed_amount"`
}

func NewStatisticsBucket() *StatisticsBucket {
	return &StatisticsBucket{SuccessAmount: Amounts{}, FailedAmount: Amounts{}}
}

func (b *StatisticsBucket) Add(e TransactionLog) {
	b.Total++
	switch {
	case e.Status == StatusCompleted:
		b.Successful++
		b.SuccessAmount.Add(e.Amount)
	case e.Status.IsFailure():
		b.Failed++
		b.FailedAmount.Add(e.Amount)
	default:
		b.Pending++
	}
}

type Statistics struct {
	Start      time.Time                    `json:"start"`
	End        time.Time                    `json:"end"`
	Overall    *StatisticsBucket            `json:"overall"`
	ByProvider map[string]*StatisticsBucket `json:"by_provider"`
}
