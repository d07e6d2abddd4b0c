package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/provider"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{Name: "acme", BaseURL: srv.URL, APIKey: "sk_test", WebhookSecret: "whsec"})
}

func testIntent() *models.PaymentIntent {
	return &models.PaymentIntent{
		Amount:   models.NewMoney("42.50", models.CurrencyUSD),
		Customer: models.CustomerInfo{Email: "jane@example.com", Name: "Jane"},
	}
}

func TestCreatePayment_Success(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("Authorization = %q", got)
		}
		var body paymentRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !body.Amount.Equal(decimal.RequireFromString("42.50")) || body.Currency != "USD" {
			t.Errorf("body amount = %s %s", body.Amount, body.Currency)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pay_1","status":"succeeded","amount":"42.50","currency":"USD"}`))
	})

	res, err := a.CreatePayment(context.Background(), testIntent())
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if !res.Success || res.TransactionID != "pay_1" || res.Status != models.StatusCompleted {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Provider != "acme" {
		t.Errorf("Provider = %q", res.Provider)
	}
}

func TestCreatePayment_DeclineIsNotAnError(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"code":"card_declined","message":"Card declined"}}`))
	})

	res, err := a.CreatePayment(context.Background(), testIntent())
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if res.Success || res.Status != models.StatusFailed {
		t.Fatalf("expected failed result, got %+v", res)
	}
	if res.Error != "Card declined (card_declined)" {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestCreatePayment_ServerErrorIsAnError(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := a.CreatePayment(context.Background(), testIntent()); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestGetPaymentStatus_NotFound(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := a.GetPaymentStatus(context.Background(), "pay_missing")
	if !errors.Is(err, provider.ErrTransactionNotFound) {
		t.Fatalf("err = %v, want ErrTransactionNotFound", err)
	}
}

func TestRefund_PartialAmount(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/pay_1/refunds" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"re_1","payment_id":"pay_1","status":"succeeded","amount":"10.00","currency":"USD"}`))
	})

	amount := models.NewMoney("10.00", models.CurrencyUSD)
	res, err := a.Refund(context.Background(), &models.RefundRequest{TransactionID: "pay_1", Amount: &amount})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if !res.Success || res.RefundID != "re_1" || res.Status != "" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRefund_PassesThroughReportedStatus(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"re_2","payment_id":"pay_1","status":"partially_refunded","amount":"25.00","currency":"USD"}`))
	})

	res, err := a.Refund(context.Background(), &models.RefundRequest{TransactionID: "pay_1"})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if !res.Success || res.Status != models.StatusPartiallyRefunded {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestWebhook_VerifyAndParse(t *testing.T) {
	a := New(Config{Name: "acme", WebhookSecret: "whsec"})
	payload := []byte(`{"id":"evt_1","type":"refund.created","created":1700000000,"data":{"object":{"id":"re_1","payment_id":"pay_1","amount":"5.00","currency":"usd","customer":"cus_1"}}}`)

	if !a.VerifyWebhook(payload, provider.SignPayload("whsec", payload)) {
		t.Fatal("valid signature rejected")
	}
	if a.VerifyWebhook(payload, provider.SignPayload("other", payload)) {
		t.Fatal("foreign signature accepted")
	}

	event, err := a.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if event.Type != models.EventRefundCreated || event.TransactionID != "pay_1" || event.CustomerID != "cus_1" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Amount == nil || event.Amount.Currency != models.CurrencyUSD {
		t.Fatalf("amount = %+v", event.Amount)
	}
}

func TestParseWebhook_RejectsMissingID(t *testing.T) {
	a := New(Config{Name: "acme"})
	if _, err := a.ParseWebhook([]byte(`{"type":"charge.succeeded"}`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestCapabilities(t *testing.T) {
	a := New(Config{Name: "acme"})
	if got := len(provider.Capabilities(a)); got != 7 {
		t.Fatalf("capabilities = %d, want 7", got)
	}
	if provider.SignatureHeader(a) != provider.DefaultSignatureHeader {
		t.Errorf("default signature header not used")
	}
}

func TestHealthCheck(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if a.HealthCheck(context.Background()).Healthy {
		t.Fatal("expected unhealthy")
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[string]models.PaymentStatus{
		"succeeded":          models.StatusCompleted,
		"Authorized":         models.StatusProcessing,
		"declined":           models.StatusFailed,
		"voided":             models.StatusCancelled,
		"partially_refunded": models.StatusPartiallyRefunded,
		"requires_action":    models.StatusPending,
	}
	for in, want := range cases {
		if got := mapStatus(in); got != want {
			t.Errorf("mapStatus(%q) = %s, want %s", in, got, want)
		}
	}
}
