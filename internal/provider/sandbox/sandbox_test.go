package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/provider"
)

func intent(meta map[string]string) *models.PaymentIntent {
	return &models.PaymentIntent{
		Amount:   models.NewMoney("100.00", models.CurrencyEUR),
		Customer: models.CustomerInfo{Email: "a@example.com", Name: "A"},
		Metadata: meta,
	}
}

func TestCreateAndQuery(t *testing.T) {
	ctx := context.Background()
	p := New("sandbox", "secret")

	res, err := p.CreatePayment(ctx, intent(nil))
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if !res.Success || res.Status != models.StatusCompleted {
		t.Fatalf("unexpected result %+v", res)
	}

	got, err := p.GetPaymentStatus(ctx, res.TransactionID)
	if err != nil {
		t.Fatalf("GetPaymentStatus: %v", err)
	}
	if got.Status != models.StatusCompleted || !got.Amount.Amount.Equal(res.Amount.Amount) {
		t.Fatalf("status = %+v", got)
	}

	if _, err := p.GetPaymentStatus(ctx, "nope"); !errors.Is(err, provider.ErrTransactionNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestFailureModes(t *testing.T) {
	ctx := context.Background()
	p := New("sandbox", "secret")

	p.FailWith(errors.New("connection reset"))
	if _, err := p.CreatePayment(ctx, intent(nil)); err == nil {
		t.Fatal("expected error")
	}

	p.FailWith(nil)
	p.DeclineWith("insufficient funds")
	res, err := p.CreatePayment(ctx, intent(nil))
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if res.Success || res.Error != "insufficient funds" {
		t.Fatalf("unexpected result %+v", res)
	}
	if p.Calls() != 2 {
		t.Errorf("Calls = %d, want 2", p.Calls())
	}
}

func TestManualCaptureAndCancel(t *testing.T) {
	ctx := context.Background()
	p := New("sandbox", "secret")

	res, _ := p.CreatePayment(ctx, intent(map[string]string{ManualCaptureKey: "manual"}))
	if res.Status != models.StatusProcessing {
		t.Fatalf("status = %s, want PROCESSING", res.Status)
	}

	captured, err := provider.CapturePayment(ctx, p, res.TransactionID, nil)
	if err != nil || !captured.Success || captured.Status != models.StatusCompleted {
		t.Fatalf("capture = %+v, %v", captured, err)
	}

	cancelled, err := provider.CancelPayment(ctx, p, res.TransactionID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Success {
		t.Fatal("cancelling a completed payment should not succeed")
	}
}

func TestPartialRefund(t *testing.T) {
	ctx := context.Background()
	p := New("sandbox", "secret")
	res, _ := p.CreatePayment(ctx, intent(nil))

	part := models.NewMoney("40.00", models.CurrencyEUR)
	ref, err := p.Refund(ctx, &models.RefundRequest{TransactionID: res.TransactionID, Amount: &part})
	if err != nil || !ref.Success || ref.Status != models.StatusPartiallyRefunded {
		t.Fatalf("refund = %+v, %v", ref, err)
	}

	tooMuch := models.NewMoney("500.00", models.CurrencyEUR)
	ref, err = p.Refund(ctx, &models.RefundRequest{TransactionID: res.TransactionID, Amount: &tooMuch})
	if err != nil || ref.Success {
		t.Fatalf("over-refund = %+v, %v", ref, err)
	}
}

func TestRefundsDrawDownRemainingAmount(t *testing.T) {
	ctx := context.Background()
	p := New("sandbox", "secret")
	res, _ := p.CreatePayment(ctx, intent(nil))
	sixty := models.NewMoney("60.00", models.CurrencyEUR)

	ref, err := p.Refund(ctx, &models.RefundRequest{TransactionID: res.TransactionID, Amount: &sixty})
	if err != nil || !ref.Success || ref.Status != models.StatusPartiallyRefunded {
		t.Fatalf("first refund = %+v, %v", ref, err)
	}
	ref, err = p.Refund(ctx, &models.RefundRequest{TransactionID: res.TransactionID, Amount: &sixty})
	if err != nil || ref.Success {
		t.Fatalf("second refund of 60 on 40 left = %+v, %v", ref, err)
	}

	// A refund without an amount takes what is left.
	ref, err = p.Refund(ctx, &models.RefundRequest{TransactionID: res.TransactionID})
	if err != nil || !ref.Success || ref.Status != models.StatusRefunded || ref.Amount.String() != "40.00 EUR" {
		t.Fatalf("final refund = %+v, %v", ref, err)
	}
	status, _ := p.GetPaymentStatus(ctx, res.TransactionID)
	if status.Status != models.StatusRefunded || status.Amount.String() != "100.00 EUR" {
		t.Fatalf("status = %+v", status)
	}
}

func TestSignedEventRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := New("sandbox", "secret")
	res, _ := p.CreatePayment(ctx, intent(nil))

	body, sig, err := p.SignedEvent(models.WebhookEvent{ID: "evt_1", Type: models.EventPaymentFailed, TransactionID: res.TransactionID})
	if err != nil {
		t.Fatalf("SignedEvent: %v", err)
	}
	if !p.VerifyWebhook(body, sig) {
		t.Fatal("signature rejected")
	}
	if p.VerifyWebhook(append(body, ' '), sig) {
		t.Fatal("tampered body accepted")
	}

	event, err := p.ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if event.Provider != "sandbox" {
		t.Errorf("Provider = %q", event.Provider)
	}
	if err := p.HandleWebhook(ctx, event); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	got, _ := p.GetPaymentStatus(ctx, res.TransactionID)
	if got.Status != models.StatusFailed {
		t.Fatalf("status after webhook = %s", got.Status)
	}
}
