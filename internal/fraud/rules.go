package fraud

import (
	"strings"
	"time"
	"unicode"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

const (
	FlagBlacklisted       = "blacklisted"
	FlagHighAmount        = "high_amount"
	FlagElevatedAmount    = "elevated_amount"
	FlagHighVelocity      = "high_velocity"
	FlagMultipleFailures  = "multiple_failed_attempts"
	FlagExcessiveFailures = "excessive_failed_attempts"
	FlagIncompleteData    = "incomplete_customer_data"
	FlagSuspiciousEmail   = "suspicious_email"
	FlagUnusualHour       = "unusual_hour"
)

type hit struct {
	flag   string
	weight int
}

type ruleInput struct {
	check   *models.FraudCheckContext
	history models.CustomerHistory
	now     time.Time
}

type rule func(g *Gate, in ruleInput) (hit, bool)

// rules run in order; each contributes at most one hit.
var rules = []rule{
	blacklistRule,
	amountRule,
	velocityRule,
	failedAttemptsRule,
	incompleteDataRule,
	suspiciousEmailRule,
	unusualHourRule,
}

var disposableDomains = map[string]struct{}{
	"mailinator.com":    {},
	"tempmail.com":      {},
	"10minutemail.com":  {},
	"guerrillamail.com": {},
	"yopmail.com":       {},
	"trashmail.com":     {},
	"throwawaymail.com": {},
}

func blacklistRule(g *Gate, in ruleInput) (hit, bool) {
	if g.isBlacklisted(in.check.Customer.Email, in.check.IPAddress) {
		return hit{FlagBlacklisted, g.cfg.Weights.Blacklist}, true
	}
	return hit{}, false
}

func amountRule(g *Gate, in ruleInput) (hit, bool) {
	amount := in.check.Amount.Amount
	switch {
	case amount.GreaterThanOrEqual(g.cfg.HighAmount):
		return hit{FlagHighAmount, g.cfg.Weights.HighAmount}, true
	case amount.GreaterThanOrEqual(g.cfg.ElevatedAmount):
		return hit{FlagElevatedAmount, g.cfg.Weights.ElevatedAmount}, true
	}
	return hit{}, false
}

func velocityRule(g *Gate, in ruleInput) (hit, bool) {
	h := in.history
	if h.WindowStart.IsZero() || in.now.Sub(h.WindowStart) >= g.cfg.VelocityWindow {
		return hit{}, false
	}
	if h.Count >= g.cfg.MaxTxPerWindow {
		return hit{FlagHighVelocity, g.cfg.Weights.Velocity}, true
	}
	return hit{}, false
}

func failedAttemptsRule(g *Gate, in ruleInput) (hit, bool) {
	switch n := in.history.FailedAttempts; {
	case n >= g.cfg.ExcessiveFailuresThreshold:
		return hit{FlagExcessiveFailures, g.cfg.Weights.ExcessiveFailedAttempts}, true
	case n >= g.cfg.FailedAttemptsThreshold:
		return hit{FlagMultipleFailures, g.cfg.Weights.FailedAttempts}, true
	}
	return hit{}, false
}

func incompleteDataRule(g *Gate, in ruleInput) (hit, bool) {
	c := in.check.Customer
	if strings.TrimSpace(c.Name) == "" || (c.Phone == "" && c.Address == nil) {
		return hit{FlagIncompleteData, g.cfg.Weights.IncompleteData}, true
	}
	return hit{}, false
}

func suspiciousEmailRule(g *Gate, in ruleInput) (hit, bool) {
	local, domain, ok := strings.Cut(strings.ToLower(strings.TrimSpace(in.check.Customer.Email)), "@")
	if !ok || local == "" || domain == "" {
		return hit{FlagSuspiciousEmail, g.cfg.Weights.SuspiciousEmail}, true
	}
	if _, disposable := disposableDomains[domain]; disposable {
		return hit{FlagSuspiciousEmail, g.cfg.Weights.SuspiciousEmail}, true
	}
	digits := 0
	for _, r := range local {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits >= 5 {
		return hit{FlagSuspiciousEmail, g.cfg.Weights.SuspiciousEmail}, true
	}
	return hit{}, false
}

func unusualHourRule(g *Gate, in ruleInput) (hit, bool) {
	ts := in.check.Timestamp
	if ts.IsZero() {
		ts = in.now
	}
	hour := ts.UTC().Hour()
	if hour >= g.cfg.UnusualHourStart && hour < g.cfg.UnusualHourEnd {
		return hit{FlagUnusualHour, g.cfg.Weights.UnusualHour}, true
	}
	return hit{}, false
}

var recommendations = map[string]string{
	FlagBlacklisted:       "Contact compliance team before processing",
	FlagHighAmount:        "Verify customer identity for high-value transaction",
	FlagElevatedAmount:    "Verify customer identity for high-value transaction",
	FlagHighVelocity:      "Review recent transaction history for this customer",
	FlagMultipleFailures:  "Require additional authentication",
	FlagExcessiveFailures: "Require additional authentication",
	FlagIncompleteData:    "Request complete customer contact details",
	FlagSuspiciousEmail:   "Verify email address ownership",
	FlagUnusualHour:       "Monitor for unusual activity patterns",
}

func recommend(flags []string, passed bool) []string {
	seen := make(map[string]struct{}, len(flags))
	out := make([]string, 0, len(flags)+1)
	for _, f := range flags {
		r, ok := recommendations[f]
		if !ok {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if !passed {
		out = append(out, "Manual review required")
	}
	return out
}
