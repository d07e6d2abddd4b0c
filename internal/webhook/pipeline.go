// Package webhook ingests provider callbacks: verify, parse, claim, handle, log.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/interfaces"
	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/provider"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

var (
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrInvalidPayload   = errors.New("webhook payload invalid")
)

type ProviderLookup interface {
	Get(name string) (provider.Provider, error)
}

type LedgerWriter interface {
	AppendIfAbsent(ctx context.Context, entry *models.TransactionLog) (bool, error)
	HasEvent(ctx context.Context, provider, eventID string) (bool, error)
}

type Config struct {
	DedupeTTL      time.Duration
	HandlerTimeout time.Duration
}

type Outcome struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Duplicate bool   `json:"duplicate"`
	Logged    bool   `json:"logged"`
}

type Pipeline struct {
	providers ProviderLookup
	claims    interfaces.WebhookClaimStore
	ledger    LedgerWriter
	cfg       Config
}

func NewPipeline(providers ProviderLookup, claims interfaces.WebhookClaimStore, ledger LedgerWriter, cfg Config) *Pipeline {
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 7 * 24 * time.Hour
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 20 * time.Second
	}
	return &Pipeline{providers: providers, claims: claims, ledger: ledger, cfg: cfg}
}

// Ingest processes one delivery. Signature and payload failures are terminal
// and touch nothing. A redelivered event id is acknowledged without effects,
// whether it is caught by a live claim or by the row the ledger kept for it.
// Failing to write the ledger row is logged but does not fail the delivery.
func (p *Pipeline) Ingest(ctx context.Context, providerName string, payload []byte, signature string) (*Outcome, error) {
	prov, err := p.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	if !prov.VerifyWebhook(payload, signature) {
		telemetry.WebhookEvents.WithLabelValues(providerName, "invalid_signature").Inc()
		telemetry.Logger.Warn("Rejected webhook with invalid signature", zap.String("provider", providerName))
		return nil, ErrSignatureInvalid
	}

	event, err := prov.ParseWebhook(payload)
	if err != nil {
		telemetry.WebhookEvents.WithLabelValues(providerName, "invalid_payload").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	event.Provider = providerName
	out := &Outcome{EventID: event.ID, Type: event.Type}

	claimed, err := p.claims.Claim(ctx, providerName, event.ID, p.cfg.DedupeTTL)
	if err != nil {
		telemetry.WebhookEvents.WithLabelValues(providerName, "error").Inc()
		return nil, fmt.Errorf("claim event %s: %w", event.ID, err)
	}
	if !claimed {
		return p.duplicate(out, providerName), nil
	}

	// Claims expire; the ledger row does not.
	seen, err := p.ledger.HasEvent(ctx, providerName, event.ID)
	if err != nil {
		p.release(ctx, providerName, event.ID)
		telemetry.WebhookEvents.WithLabelValues(providerName, "error").Inc()
		return nil, fmt.Errorf("look up event %s: %w", event.ID, err)
	}
	if seen {
		return p.duplicate(out, providerName), nil
	}

	if err := p.handle(ctx, prov, event); err != nil {
		p.release(ctx, providerName, event.ID)
		telemetry.WebhookEvents.WithLabelValues(providerName, "handler_error").Inc()
		return nil, &provider.ProviderError{Provider: providerName, Stage: "handle_webhook", Err: err}
	}

	out.Logged = p.log(ctx, event, payload)
	telemetry.WebhookEvents.WithLabelValues(providerName, "processed").Inc()
	return out, nil
}

func (p *Pipeline) duplicate(out *Outcome, providerName string) *Outcome {
	telemetry.WebhookEvents.WithLabelValues(providerName, "duplicate").Inc()
	telemetry.Logger.Info("Duplicate webhook delivery ignored",
		zap.String("provider", providerName),
		zap.String("event_id", out.EventID),
	)
	out.Duplicate = true
	return out
}

func (p *Pipeline) release(ctx context.Context, providerName, eventID string) {
	if err := p.claims.Release(context.WithoutCancel(ctx), providerName, eventID); err != nil {
		telemetry.Logger.Error("Failed to release webhook claim",
			zap.String("provider", providerName),
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) handle(ctx context.Context, prov provider.Provider, event *models.WebhookEvent) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.HandlerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in webhook handler: %v", r)
		}
	}()
	return prov.HandleWebhook(ctx, event)
}

func (p *Pipeline) log(ctx context.Context, event *models.WebhookEvent, payload []byte) bool {
	entry, ok := EntryForEvent(event)
	if !ok {
		telemetry.Logger.Warn("Webhook event carries no transaction reference",
			zap.String("provider", event.Provider),
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
		)
		return false
	}
	if json.Valid(payload) {
		entry.Response = json.RawMessage(payload)
	}

	written, err := p.ledger.AppendIfAbsent(ctx, entry)
	if err != nil {
		telemetry.WebhookEvents.WithLabelValues(event.Provider, "log_error").Inc()
		telemetry.Logger.Error("Failed to log webhook event",
			zap.String("provider", event.Provider),
			zap.String("event_id", event.ID),
			zap.String("transaction_id", entry.TransactionID),
			zap.Error(err),
		)
		return false
	}
	return written
}

// EntryForEvent maps a webhook event onto a ledger row. Refund events that did
// not result in a refund are recorded against the refund itself so they do
// not change the status of the original payment.
func EntryForEvent(event *models.WebhookEvent) (*models.TransactionLog, bool) {
	status := models.StatusForEvent(event.Type)
	kind := models.TypeForEvent(event.Type)
	txID := event.TransactionID

	if kind == models.TypeRefund && status != models.StatusRefunded {
		txID = dataString(event.Data, "refund_id")
		if txID == "" {
			if id := dataString(event.Data, "id"); id != event.TransactionID {
				txID = id
			}
		}
	}
	if txID == "" {
		return nil, false
	}

	entry := &models.TransactionLog{
		TransactionID: txID,
		Type:          kind,
		Provider:      event.Provider,
		Status:        status,
		CustomerID:    event.CustomerID,
		EventID:       event.ID,
	}
	if event.Amount != nil {
		entry.Amount = *event.Amount
	}
	return entry, true
}

func dataString(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
