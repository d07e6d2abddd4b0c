package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/akylbek/payment-system/payment-core/internal/fraud"
	"github.com/akylbek/payment-system/payment-core/internal/reconciliation"
	"github.com/akylbek/payment-system/payment-core/internal/service"
	"github.com/akylbek/payment-system/payment-core/internal/webhook"
)

type Config struct {
	Server         ServerConfig
	DatabaseURL    string
	RedisURL       string
	KafkaBrokers   []string
	NATSURL        string
	JaegerEndpoint string
	NewRelic       NewRelicConfig
	ProvidersFile  string

	Fraud          FraudConfig
	Orchestrator   service.OrchestratorConfig
	Reconciliation ReconciliationConfig
	Webhook        WebhookConfig

	HealthCheckInterval time.Duration
}

type ServerConfig struct {
	Port         string
	GRPCPort     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

type FraudConfig struct {
	Threshold       int
	VelocityWindow  time.Duration
	MaxTxPerWindow  int
	HighAmount      float64
	ElevatedAmount  float64
	BlacklistEmails []string
	BlacklistIPs    []string
}

type ReconciliationConfig struct {
	Enabled           bool
	RunHour           int
	AmountTolerance   float64
	PendingEscalation time.Duration
	Concurrency       int
}

type WebhookConfig struct {
	MaxBodyBytes int64
	DedupeTTL    time.Duration
}

// ProviderConfig is one entry of the providers YAML file.
type ProviderConfig struct {
	Name            string        `yaml:"name"`
	Type            string        `yaml:"type"`
	Priority        int           `yaml:"priority"`
	Enabled         *bool         `yaml:"enabled"`
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	WebhookSecret   string        `yaml:"webhook_secret"`
	SignatureHeader string        `yaml:"signature_header"`
	Timeout         time.Duration `yaml:"timeout"`
}

const (
	ProviderTypeSandbox = "sandbox"
	ProviderTypeGateway = "gateway"
)

// IsEnabled treats a missing enabled key as enabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8085"),
			GRPCPort:     getEnv("GRPC_PORT", "9085"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
		},
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBrokers:   getListEnv("KAFKA_BROKERS"),
		NATSURL:        os.Getenv("NATS_URL"),
		JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "payment-core"),
			LicenseKey: os.Getenv("NEW_RELIC_LICENSE_KEY"),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		ProvidersFile: os.Getenv("PROVIDERS_FILE"),
		Fraud: FraudConfig{
			Threshold:       getIntEnv("FRAUD_THRESHOLD", 70),
			VelocityWindow:  getDurationEnv("FRAUD_VELOCITY_WINDOW", time.Hour),
			MaxTxPerWindow:  getIntEnv("FRAUD_MAX_TX_PER_WINDOW", 5),
			HighAmount:      getFloatEnv("FRAUD_HIGH_AMOUNT", 10000),
			ElevatedAmount:  getFloatEnv("FRAUD_ELEVATED_AMOUNT", 5000),
			BlacklistEmails: getListEnv("FRAUD_BLACKLIST_EMAILS"),
			BlacklistIPs:    getListEnv("FRAUD_BLACKLIST_IPS"),
		},
		Orchestrator: service.OrchestratorConfig{
			FailoverEnabled: getBoolEnv("FAILOVER_ENABLED", true),
			AttemptTimeout:  getDurationEnv("PROVIDER_TIMEOUT", 20*time.Second),
		},
		Reconciliation: ReconciliationConfig{
			Enabled:           getBoolEnv("RECONCILIATION_ENABLED", true),
			RunHour:           getIntEnv("RECONCILIATION_RUN_HOUR", 2),
			AmountTolerance:   getFloatEnv("RECONCILIATION_AMOUNT_TOLERANCE", 0.01),
			PendingEscalation: getDurationEnv("RECONCILIATION_PENDING_ESCALATION", 360*time.Hour),
			Concurrency:       getIntEnv("RECONCILIATION_CONCURRENCY", 4),
		},
		Webhook: WebhookConfig{
			MaxBodyBytes: int64(getIntEnv("WEBHOOK_MAX_BODY_BYTES", 1<<20)),
			DedupeTTL:    getDurationEnv("WEBHOOK_DEDUPE_TTL", 168*time.Hour),
		},
		HealthCheckInterval: getDurationEnv("HEALTH_CHECK_INTERVAL", 30*time.Second),
	}
}

func (f FraudConfig) GateConfig() fraud.Config {
	cfg := fraud.DefaultConfig()
	cfg.Threshold = f.Threshold
	cfg.VelocityWindow = f.VelocityWindow
	cfg.MaxTxPerWindow = f.MaxTxPerWindow
	cfg.HighAmount = decimal.NewFromFloat(f.HighAmount)
	cfg.ElevatedAmount = decimal.NewFromFloat(f.ElevatedAmount)
	cfg.BlacklistEmails = f.BlacklistEmails
	cfg.BlacklistIPs = f.BlacklistIPs
	return cfg
}

func (r ReconciliationConfig) EngineConfig() reconciliation.Config {
	cfg := reconciliation.DefaultConfig()
	cfg.AmountTolerance = decimal.NewFromFloat(r.AmountTolerance)
	cfg.PendingEscalation = r.PendingEscalation
	if r.Concurrency > 0 {
		cfg.Concurrency = r.Concurrency
	}
	return cfg
}

func (w WebhookConfig) PipelineConfig() webhook.Config {
	return webhook.Config{DedupeTTL: w.DedupeTTL}
}

// LoadProviders parses the providers file. Without a path a single sandbox
// provider is returned.
func LoadProviders(path string) ([]ProviderConfig, error) {
	if path == "" {
		return []ProviderConfig{{Name: "sandbox", Type: ProviderTypeSandbox, Priority: 1}}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	return ParseProviders(raw)
}

func ParseProviders(raw []byte) ([]ProviderConfig, error) {
	var doc struct {
		Providers []ProviderConfig `yaml:"providers"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	if len(doc.Providers) == 0 {
		return nil, fmt.Errorf("providers file lists no providers")
	}

	seen := make(map[string]bool, len(doc.Providers))
	for i, p := range doc.Providers {
		if p.Name == "" {
			return nil, fmt.Errorf("provider #%d has no name", i+1)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("provider %s listed twice", p.Name)
		}
		seen[p.Name] = true

		switch p.Type {
		case ProviderTypeSandbox:
		case ProviderTypeGateway:
			if p.BaseURL == "" {
				return nil, fmt.Errorf("provider %s: base_url is required for gateway providers", p.Name)
			}
		default:
			return nil, fmt.Errorf("provider %s: unknown type %q", p.Name, p.Type)
		}
		// Secrets may be supplied by reference to keep them out of the file.
		doc.Providers[i].APIKey = os.ExpandEnv(p.APIKey)
		doc.Providers[i].WebhookSecret = os.ExpandEnv(p.WebhookSecret)
	}
	return doc.Providers, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
