// Package fraud implements the pre-transaction fraud gate: a deterministic
// weighted-rule engine over the request and the customer's recent history.
package fraud

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/interfaces"
	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

var ErrInvalidBlacklistEntry = errors.New("invalid blacklist entry")

type ListKind string

const (
	ListEmail  ListKind = "email"
	ListIP     ListKind = "ip"
	ListDomain ListKind = "domain"
)

type Gate struct {
	cfg      Config
	history  interfaces.FraudHistoryStore
	blocks   interfaces.FraudBlockRepository
	notifier interfaces.Notifier
	now      func() time.Time

	mu        sync.RWMutex
	blacklist map[ListKind]map[string]struct{}
}

func NewGate(cfg Config, history interfaces.FraudHistoryStore, blocks interfaces.FraudBlockRepository, notifier interfaces.Notifier) *Gate {
	g := &Gate{
		cfg:      cfg,
		history:  history,
		blocks:   blocks,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		blacklist: map[ListKind]map[string]struct{}{
			ListEmail:  {},
			ListIP:     {},
			ListDomain: {},
		},
	}
	for _, e := range cfg.BlacklistEmails {
		_ = g.AddToBlacklist(ListEmail, e)
	}
	for _, ip := range cfg.BlacklistIPs {
		_ = g.AddToBlacklist(ListIP, ip)
	}
	for _, d := range cfg.BlacklistDomains {
		_ = g.AddToBlacklist(ListDomain, d)
	}
	return g
}

// WithClock replaces the time source, for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

func (g *Gate) Threshold() int { return g.cfg.Threshold }

// Evaluate scores a payment attempt. It reads customer history but never
// modifies it; RecordOutcome does that once the attempt has been made.
// A blocked result is persisted and alerted before returning.
func (g *Gate) Evaluate(ctx context.Context, check *models.FraudCheckContext) (*models.FraudCheckResult, error) {
	key := check.Customer.Key()
	hist, err := g.history.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load fraud history: %w", err)
	}

	in := ruleInput{check: check, history: hist, now: g.now()}
	score := 0
	flags := make([]string, 0, len(rules))
	for _, r := range rules {
		if h, fired := r(g, in); fired {
			score += h.weight
			flags = append(flags, h.flag)
		}
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	blacklisted := containsFlag(flags, FlagBlacklisted)
	passed := score < g.cfg.Threshold && !blacklisted
	result := &models.FraudCheckResult{
		RiskScore:       score,
		Passed:          passed,
		Flags:           flags,
		Recommendations: recommend(flags, passed),
	}

	telemetry.FraudRiskScore.Observe(float64(score))
	if passed {
		telemetry.FraudChecks.WithLabelValues("passed").Inc()
		return result, nil
	}

	telemetry.FraudChecks.WithLabelValues("blocked").Inc()
	telemetry.Logger.Warn("Payment blocked by fraud gate",
		zap.String("customer", key),
		zap.String("amount", check.Amount.String()),
		zap.Int("risk_score", score),
		zap.Strings("flags", flags),
	)
	g.recordBlock(ctx, check, result)
	return result, nil
}

// RecordOutcome folds a completed attempt into the customer's history. A success
// clears the failed-attempt counter, a failure increments it.
func (g *Gate) RecordOutcome(ctx context.Context, customer models.CustomerInfo, amount models.Money, success bool) error {
	now := g.now()
	window := g.cfg.VelocityWindow
	return g.history.Update(ctx, customer.Key(), func(h *models.CustomerHistory) {
		if h.WindowStart.IsZero() || now.Sub(h.WindowStart) >= window {
			h.WindowStart = now
			h.Count = 0
			h.TotalAmount = decimal.Zero
		}
		h.Count++
		h.TotalAmount = h.TotalAmount.Add(amount.Amount)
		h.LastTransaction = now
		if success {
			h.FailedAttempts = 0
		} else {
			h.FailedAttempts++
		}
	})
}

func (g *Gate) History(ctx context.Context, customer models.CustomerInfo) (models.CustomerHistory, error) {
	return g.history.Get(ctx, customer.Key())
}

func (g *Gate) AddToBlacklist(kind ListKind, value string) error {
	v, err := normalizeEntry(kind, value)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.blacklist[kind][v] = struct{}{}
	g.mu.Unlock()
	return nil
}

func (g *Gate) RemoveFromBlacklist(kind ListKind, value string) error {
	v, err := normalizeEntry(kind, value)
	if err != nil {
		return err
	}
	g.mu.Lock()
	delete(g.blacklist[kind], v)
	g.mu.Unlock()
	return nil
}

// Blacklist returns a sorted snapshot of every list.
func (g *Gate) Blacklist() map[ListKind][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[ListKind][]string, len(g.blacklist))
	for kind, entries := range g.blacklist {
		list := make([]string, 0, len(entries))
		for e := range entries {
			list = append(list, e)
		}
		sort.Strings(list)
		out[kind] = list
	}
	return out
}

func (g *Gate) isBlacklisted(email, ip string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.blacklist[ListEmail][email]; ok && email != "" {
		return true
	}
	if ip != "" {
		if _, ok := g.blacklist[ListIP][strings.TrimSpace(ip)]; ok {
			return true
		}
	}
	if _, domain, ok := strings.Cut(email, "@"); ok {
		if _, hit := g.blacklist[ListDomain][domain]; hit {
			return true
		}
	}
	return false
}

func (g *Gate) recordBlock(ctx context.Context, check *models.FraudCheckContext, result *models.FraudCheckResult) {
	block := &models.FraudBlock{
		ID:          uuid.NewString(),
		CustomerKey: check.Customer.Key(),
		Email:       check.Customer.Email,
		Amount:      check.Amount,
		IPAddress:   check.IPAddress,
		Result:      *result,
		CreatedAt:   g.now(),
	}
	if g.blocks != nil {
		if err := g.blocks.Save(ctx, block); err != nil {
			telemetry.Logger.Error("Failed to persist fraud block",
				zap.String("customer", block.CustomerKey),
				zap.Error(err),
			)
		}
	}
	if g.notifier == nil {
		return
	}
	alert := models.Alert{
		ID:       uuid.NewString(),
		Kind:     models.AlertFraud,
		Severity: models.SeverityHigh,
		Title:    "Payment blocked by fraud gate",
		Message:  fmt.Sprintf("customer %s blocked with risk score %d", block.CustomerKey, result.RiskScore),
		Data: map[string]any{
			"block_id":   block.ID,
			"customer":   block.CustomerKey,
			"amount":     check.Amount.String(),
			"risk_score": result.RiskScore,
			"flags":      result.Flags,
		},
		CreatedAt: block.CreatedAt,
	}
	if err := g.notifier.Notify(ctx, alert); err != nil {
		telemetry.Logger.Error("Failed to send fraud alert", zap.String("customer", block.CustomerKey), zap.Error(err))
	}
}

func normalizeEntry(kind ListKind, value string) (string, error) {
	v := strings.TrimSpace(value)
	if kind != ListIP {
		v = strings.ToLower(v)
	}
	if v == "" {
		return "", fmt.Errorf("%w: empty %s", ErrInvalidBlacklistEntry, kind)
	}
	switch kind {
	case ListEmail:
		if !strings.Contains(v, "@") {
			return "", fmt.Errorf("%w: %q is not an email", ErrInvalidBlacklistEntry, value)
		}
	case ListIP, ListDomain:
	default:
		return "", fmt.Errorf("%w: unknown list %q", ErrInvalidBlacklistEntry, kind)
	}
	return v, nil
}

func containsFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
