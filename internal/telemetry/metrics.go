package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_core_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	ProviderAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_provider_attempts_total",
		Help: "Provider calls by operation and outcome.",
	}, []string{"provider", "operation", "outcome"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_latency_seconds",
		Help:    "Latency of provider calls.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	}, []string{"provider", "operation"})

	FraudChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraud_checks_total",
		Help: "Fraud gate decisions.",
	}, []string{"decision"})

	FraudRiskScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fraud_risk_score",
		Help:    "Distribution of fraud risk scores.",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Inbound webhook deliveries by outcome.",
	}, []string{"provider", "outcome"})

	LedgerAppends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_appends_total",
		Help: "Ledger appends by transaction type and outcome.",
	}, []string{"type", "outcome"})

	ReconciliationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_runs_total",
		Help: "Reconciliation runs by provider and outcome.",
	}, []string{"provider", "outcome"})

	ReconciliationDiscrepancies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_discrepancies_total",
		Help: "Discrepancies found by reconciliation.",
	}, []string{"provider", "type", "severity"})

	ProviderUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "provider_up",
		Help: "1 when the last provider health check succeeded.",
	}, []string{"provider"})
)
