package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string { return s.name }
func (s stubProvider) CreatePayment(context.Context, *models.PaymentIntent) (*models.PaymentResult, error) {
	return nil, nil
}
func (s stubProvider) GetPaymentStatus(context.Context, string) (*models.PaymentResult, error) {
	return nil, nil
}
func (s stubProvider) Refund(context.Context, *models.RefundRequest) (*models.RefundResult, error) {
	return nil, nil
}
func (s stubProvider) VerifyWebhook([]byte, string) bool { return false }
func (s stubProvider) ParseWebhook([]byte) (*models.WebhookEvent, error) { return nil, nil }
func (s stubProvider) HandleWebhook(context.Context, *models.WebhookEvent) error { return nil }
func (s stubProvider) HealthCheck(context.Context) HealthStatus { return HealthStatus{Healthy: true} }

func names(ps []Provider) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name())
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCandidatesOrdering(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "b", 2, true)
	mustRegister(t, r, "a", 1, true)
	mustRegister(t, r, "c", 2, true)
	mustRegister(t, r, "off", 0, false)

	if got := names(r.Candidates("")); !equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("Candidates() = %v", got)
	}
	if got := names(r.Candidates("c")); !equal(got, []string{"c", "a", "b"}) {
		t.Fatalf("Candidates(c) = %v", got)
	}
	// a disabled preference is ignored
	if got := names(r.Candidates("off")); !equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("Candidates(off) = %v", got)
	}
	if got := names(r.Candidates("unknown")); !equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("Candidates(unknown) = %v", got)
	}
}

func TestConfigureAppliesToNextCall(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "a", 1, true)
	mustRegister(t, r, "b", 2, true)

	prio := 0
	if _, err := r.Configure("b", &prio, nil); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	disabled := false
	if _, err := r.Configure("a", nil, &disabled); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if got := names(r.Candidates("")); !equal(got, []string{"b"}) {
		t.Fatalf("Candidates() = %v", got)
	}
	if len(r.Providers()) != 2 {
		t.Fatalf("Providers should include disabled entries")
	}

	if _, err := r.Configure("zzz", &prio, nil); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("err = %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, "a", 1, true)
	if err := r.Register(stubProvider{name: "a"}, 1, true); err == nil {
		t.Fatal("expected duplicate error")
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("Get err = %v", err)
	}
}

func TestCapabilityHelpers(t *testing.T) {
	p := stubProvider{name: "basic"}
	if len(Capabilities(p)) != 0 {
		t.Fatal("stub should have no optional capabilities")
	}
	_, err := CapturePayment(context.Background(), p, "tx", nil)
	if !errors.Is(err, ErrCapabilityNotSupported) {
		t.Fatalf("err = %v", err)
	}
	var capErr *CapabilityError
	if !errors.As(err, &capErr) || capErr.Capability != CapCapturePayment {
		t.Fatalf("err = %#v", err)
	}
	if _, err := ListSubscriptions(context.Background(), p, "c"); !errors.Is(err, ErrCapabilityNotSupported) {
		t.Fatalf("err = %v", err)
	}
}

func TestSignature(t *testing.T) {
	payload := []byte(`{"id":"evt"}`)
	sig := SignPayload("k", payload)
	if !VerifyPayload("k", payload, sig) {
		t.Fatal("valid signature rejected")
	}
	if !VerifyPayload("k", payload, sig[len("sha256="):]) {
		t.Fatal("unprefixed signature rejected")
	}
	if VerifyPayload("", payload, sig) || VerifyPayload("k", payload, "") || VerifyPayload("k", payload, "sha256=zz") {
		t.Fatal("invalid input accepted")
	}
}

func mustRegister(t *testing.T, r *Registry, name string, priority int, enabled bool) {
	t.Helper()
	if err := r.Register(stubProvider{name: name}, priority, enabled); err != nil {
		t.Fatalf("Register(%s): %v", name, err)
	}
}
