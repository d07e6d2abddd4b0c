package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "KAFKA_BROKERS", "FRAUD_THRESHOLD", "PROVIDER_TIMEOUT", "FRAUD_BLACKLIST_EMAILS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Server.Port != "8085" || cfg.Server.GRPCPort != "9085" {
		t.Errorf("ports = %s/%s", cfg.Server.Port, cfg.Server.GRPCPort)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Errorf("brokers = %v", cfg.KafkaBrokers)
	}
	if cfg.Fraud.Threshold != 70 || cfg.Orchestrator.AttemptTimeout != 20*time.Second || !cfg.Orchestrator.FailoverEnabled {
		t.Errorf("unexpected defaults: %+v %+v", cfg.Fraud, cfg.Orchestrator)
	}
	if got := cfg.Reconciliation.EngineConfig().AmountTolerance.String(); got != "0.01" {
		t.Errorf("tolerance = %s", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("FRAUD_THRESHOLD", "55")
	t.Setenv("FRAUD_HIGH_AMOUNT", "2500.5")
	t.Setenv("FRAUD_BLACKLIST_EMAILS", "a@x.io,b@x.io")
	t.Setenv("FAILOVER_ENABLED", "false")
	t.Setenv("PROVIDER_TIMEOUT", "3s")
	t.Setenv("RECONCILIATION_RUN_HOUR", "not-a-number")

	cfg := Load()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.KafkaBrokers)
	}
	gate := cfg.Fraud.GateConfig()
	if gate.Threshold != 55 || gate.HighAmount.String() != "2500.5" || len(gate.BlacklistEmails) != 2 {
		t.Errorf("gate config = %+v", gate)
	}
	if cfg.Orchestrator.FailoverEnabled || cfg.Orchestrator.AttemptTimeout != 3*time.Second {
		t.Errorf("orchestrator = %+v", cfg.Orchestrator)
	}
	if cfg.Reconciliation.RunHour != 2 {
		t.Errorf("run hour = %d", cfg.Reconciliation.RunHour)
	}
}

func TestParseProviders(t *testing.T) {
	t.Setenv("ACME_KEY", "sk_live_123")
	raw := []byte(`
providers:
  - name: acme
    type: gateway
    priority: 1
    base_url: https://pay.acme.test
    api_key: ${ACME_KEY}
    webhook_secret: whsec_acme
    signature_header: X-Acme-Signature
    timeout: 5s
  - name: backup
    type: sandbox
    priority: 2
    enabled: false
`)
	providers, err := ParseProviders(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(providers) != 2 {
		t.Fatalf("providers = %+v", providers)
	}
	acme := providers[0]
	if acme.APIKey != "sk_live_123" || acme.Timeout != 5*time.Second || !acme.IsEnabled() {
		t.Errorf("acme = %+v", acme)
	}
	if providers[1].IsEnabled() {
		t.Error("backup should be disabled")
	}
}

func TestParseProvidersRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"empty":        "providers: []",
		"missing name": "providers:\n  - type: sandbox",
		"duplicate":    "providers:\n  - {name: a, type: sandbox}\n  - {name: a, type: sandbox}",
		"unknown type": "providers:\n  - {name: a, type: carrier-pigeon}",
		"no base url":  "providers:\n  - {name: a, type: gateway}",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseProviders([]byte(raw)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadProvidersDefaultsToSandbox(t *testing.T) {
	providers, err := LoadProviders("")
	if err != nil {
		t.Fatal(err)
	}
	if len(providers) != 1 || providers[0].Type != ProviderTypeSandbox {
		t.Fatalf("providers = %+v", providers)
	}
	if _, err := LoadProviders("/nonexistent/providers.yaml"); err == nil || !strings.Contains(err.Error(), "read providers file") {
		t.Fatalf("err = %v", err)
	}
}
