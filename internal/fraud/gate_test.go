package fraud

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

type recordingBlocks struct {
	mu     sync.Mutex
	blocks []models.FraudBlock
}

func (r *recordingBlocks) Save(_ context.Context, b *models.FraudBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, *b)
	return nil
}

func (r *recordingBlocks) ListByCustomer(_ context.Context, key string) ([]models.FraudBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FraudBlock
	for _, b := range r.blocks {
		if b.CustomerKey == key {
			out = append(out, b)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (r *recordingNotifier) Notify(_ context.Context, a models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

// noon keeps the unusual-hour rule quiet.
var noon = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestGate(cfg Config) (*Gate, *recordingBlocks, *recordingNotifier) {
	blocks := &recordingBlocks{}
	notifier := &recordingNotifier{}
	g := NewGate(cfg, NewMemoryHistory(), blocks, notifier).WithClock(func() time.Time { return noon })
	return g, blocks, notifier
}

func completeCustomer(email string) models.CustomerInfo {
	return models.CustomerInfo{Email: email, Name: "Alex Doe", Phone: "+15550100"}
}

func check(c models.CustomerInfo, amount string) *models.FraudCheckContext {
	return &models.FraudCheckContext{
		Customer:  c,
		Amount:    models.NewMoney(amount, models.CurrencyEUR),
		Timestamp: noon,
	}
}

func TestEvaluate_CleanCustomerPasses(t *testing.T) {
	g, blocks, _ := newTestGate(DefaultConfig())

	res, err := g.Evaluate(context.Background(), check(completeCustomer("alex@example.com"), "100"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Passed || res.RiskScore != 0 || len(res.Flags) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(blocks.blocks) != 0 {
		t.Fatal("passing check must not be persisted")
	}
}

func TestEvaluate_BlacklistedEmailAlwaysBlocked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlacklistEmails = []string{"Bad@Example.com"}
	g, blocks, notifier := newTestGate(cfg)

	for _, amount := range []string{"1", "100", "50000"} {
		res, err := g.Evaluate(context.Background(), check(completeCustomer("bad@example.com"), amount))
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if res.RiskScore != 100 || res.Passed {
			t.Fatalf("amount %s: got score=%d passed=%v", amount, res.RiskScore, res.Passed)
		}
		if res.Recommendations[0] != "Contact compliance team before processing" {
			t.Errorf("recommendations = %v", res.Recommendations)
		}
	}
	if len(blocks.blocks) != 3 || len(notifier.alerts) != 3 {
		t.Fatalf("blocks=%d alerts=%d, want 3 each", len(blocks.blocks), len(notifier.alerts))
	}
	if notifier.alerts[0].Kind != models.AlertFraud {
		t.Errorf("alert kind = %s", notifier.alerts[0].Kind)
	}
}

func TestEvaluate_BlacklistForcesBlockEvenWithZeroWeight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Blacklist = 0
	cfg.BlacklistIPs = []string{"10.0.0.9"}
	g, _, _ := newTestGate(cfg)

	c := check(completeCustomer("alex@example.com"), "10")
	c.IPAddress = "10.0.0.9"
	res, _ := g.Evaluate(context.Background(), c)
	if res.Passed {
		t.Fatal("blacklisted IP passed")
	}
}

func TestEvaluate_SixthAttemptAfterFiveFailuresBlocked(t *testing.T) {
	g, _, _ := newTestGate(DefaultConfig())
	ctx := context.Background()
	customer := completeCustomer("a@x.com")

	for i := 1; i <= 5; i++ {
		res, err := g.Evaluate(ctx, check(customer, "100"))
		if err != nil {
			t.Fatalf("Evaluate #%d: %v", i, err)
		}
		if !res.Passed {
			t.Fatalf("attempt %d blocked early with score %d flags %v", i, res.RiskScore, res.Flags)
		}
		if err := g.RecordOutcome(ctx, customer, models.NewMoney("100", models.CurrencyEUR), false); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	res, err := g.Evaluate(ctx, check(customer, "100"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Passed {
		t.Fatalf("sixth attempt passed with score %d flags %v", res.RiskScore, res.Flags)
	}
	if !containsFlag(res.Flags, FlagExcessiveFailures) || !containsFlag(res.Flags, FlagHighVelocity) {
		t.Errorf("flags = %v", res.Flags)
	}
}

func TestRecordOutcome_SuccessResetsFailures(t *testing.T) {
	g, _, _ := newTestGate(DefaultConfig())
	ctx := context.Background()
	customer := completeCustomer("reset@example.com")
	amount := models.NewMoney("10", models.CurrencyEUR)

	_ = g.RecordOutcome(ctx, customer, amount, false)
	_ = g.RecordOutcome(ctx, customer, amount, false)
	_ = g.RecordOutcome(ctx, customer, amount, true)

	h, _ := g.History(ctx, customer)
	if h.FailedAttempts != 0 || h.Count != 3 {
		t.Fatalf("history = %+v", h)
	}
	if !h.TotalAmount.Equal(models.NewMoney("30", models.CurrencyEUR).Amount) {
		t.Fatalf("total = %s", h.TotalAmount)
	}
}

func TestRecordOutcome_WindowExpiryResetsVelocity(t *testing.T) {
	now := noon
	g, _, _ := newTestGate(DefaultConfig())
	g.WithClock(func() time.Time { return now })
	ctx := context.Background()
	customer := completeCustomer("window@example.com")
	amount := models.NewMoney("10", models.CurrencyEUR)

	for i := 0; i < 5; i++ {
		_ = g.RecordOutcome(ctx, customer, amount, true)
	}
	now = now.Add(2 * time.Hour)
	res, _ := g.Evaluate(ctx, check(customer, "10"))
	if containsFlag(res.Flags, FlagHighVelocity) {
		t.Fatal("velocity flag should not fire after the window expired")
	}
}

func TestRecordOutcome_ConcurrentSameKey(t *testing.T) {
	g, _, _ := newTestGate(DefaultConfig())
	ctx := context.Background()
	customer := completeCustomer("busy@example.com")
	amount := models.NewMoney("1", models.CurrencyEUR)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.RecordOutcome(ctx, customer, amount, false)
		}()
	}
	wg.Wait()

	h, _ := g.History(ctx, customer)
	if h.FailedAttempts != 50 || h.Count != 50 {
		t.Fatalf("lost updates: %+v", h)
	}
}

func TestRules(t *testing.T) {
	tests := []struct {
		name     string
		customer models.CustomerInfo
		amount   string
		at       time.Time
		wantFlag string
	}{
		{"high amount", completeCustomer("a@example.com"), "10000", noon, FlagHighAmount},
		{"elevated amount", completeCustomer("a@example.com"), "5000", noon, FlagElevatedAmount},
		{"incomplete data", models.CustomerInfo{Email: "a@example.com", Name: "A"}, "10", noon, FlagIncompleteData},
		{"disposable email", completeCustomer("x@mailinator.com"), "10", noon, FlagSuspiciousEmail},
		{"digit heavy email", completeCustomer("user12345@example.com"), "10", noon, FlagSuspiciousEmail},
		{"unusual hour", completeCustomer("a@example.com"), "10", time.Date(2024, 3, 10, 3, 30, 0, 0, time.UTC), FlagUnusualHour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _, _ := newTestGate(DefaultConfig())
			c := check(tt.customer, tt.amount)
			c.Timestamp = tt.at
			res, err := g.Evaluate(context.Background(), c)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if !containsFlag(res.Flags, tt.wantFlag) {
				t.Fatalf("flags = %v, want %s", res.Flags, tt.wantFlag)
			}
			if !res.Passed {
				t.Fatalf("single rule should not block: %+v", res)
			}
		})
	}
}

func TestBlacklistAdmin(t *testing.T) {
	g, _, _ := newTestGate(DefaultConfig())

	if err := g.AddToBlacklist(ListDomain, "Evil.test"); err != nil {
		t.Fatalf("AddToBlacklist: %v", err)
	}
	res, _ := g.Evaluate(context.Background(), check(completeCustomer("me@evil.test"), "10"))
	if res.Passed {
		t.Fatal("blacklisted domain passed")
	}

	if err := g.RemoveFromBlacklist(ListDomain, "evil.test"); err != nil {
		t.Fatalf("RemoveFromBlacklist: %v", err)
	}
	res, _ = g.Evaluate(context.Background(), check(completeCustomer("me@evil.test"), "10"))
	if !res.Passed {
		t.Fatal("domain still blocked after removal")
	}

	if err := g.AddToBlacklist(ListEmail, "not-an-email"); !errors.Is(err, ErrInvalidBlacklistEntry) {
		t.Fatalf("err = %v", err)
	}
	if err := g.AddToBlacklist("phone", "123"); !errors.Is(err, ErrInvalidBlacklistEntry) {
		t.Fatalf("err = %v", err)
	}
}
