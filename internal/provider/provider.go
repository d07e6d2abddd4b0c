// Package provider defines the contract every payment backend satisfies and the
// registry the orchestrator reads candidate ordering from.
//
// The mandatory surface is the Provider interface. Optional operations are
// separate single-method interfaces; callers go through the package-level
// helpers (CapturePayment, CreateSubscription, ...) which check support first
// and return a *CapabilityError instead of calling a missing method.
package provider

import (
	"context"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

// DefaultSignatureHeader is used when a provider does not name its own header.
const DefaultSignatureHeader = "X-Signature"

type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Provider is the capability set every payment backend must implement.
// Implementations normalize their wire format into the shared models so that
// nothing above this package sees provider-specific types.
type Provider interface {
	Name() string
	CreatePayment(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentResult, error)
	GetPaymentStatus(ctx context.Context, transactionID string) (*models.PaymentResult, error)
	Refund(ctx context.Context, req *models.RefundRequest) (*models.RefundResult, error)
	VerifyWebhook(payload []byte, signature string) bool
	ParseWebhook(payload []byte) (*models.WebhookEvent, error)
	HandleWebhook(ctx context.Context, event *models.WebhookEvent) error
	HealthCheck(ctx context.Context) HealthStatus
}

type Capability string

const (
	CapCapturePayment     Capability = "capturePayment"
	CapCancelPayment      Capability = "cancelPayment"
	CapCreateCustomer     Capability = "createCustomer"
	CapCreateSubscription Capability = "createSubscription"
	CapCancelSubscription Capability = "cancelSubscription"
	CapGetSubscription    Capability = "getSubscription"
	CapListSubscriptions  Capability = "listSubscriptions"
)

type PaymentCapturer interface {
	CapturePayment(ctx context.Context, transactionID string, amount *models.Money) (*models.PaymentResult, error)
}

type PaymentCanceller interface {
	CancelPayment(ctx context.Context, transactionID string) (*models.PaymentResult, error)
}

type CustomerCreator interface {
	CreateCustomer(ctx context.Context, customer *models.CustomerInfo) (*models.CustomerResult, error)
}

type SubscriptionCreator interface {
	CreateSubscription(ctx context.Context, req *models.SubscriptionRequest) (*models.SubscriptionResult, error)
}

type SubscriptionCanceller interface {
	CancelSubscription(ctx context.Context, subscriptionID string) (*models.SubscriptionResult, error)
}

type SubscriptionGetter interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*models.SubscriptionResult, error)
}

type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context, customerID string) ([]models.SubscriptionResult, error)
}

// SignatureHeaderer lets a provider name the HTTP header carrying its webhook signature.
type SignatureHeaderer interface {
	SignatureHeader() string
}

// Supports reports whether p implements the optional capability.
func Supports(p Provider, capability Capability) bool {
	var ok bool
	switch capability {
	case CapCapturePayment:
		_, ok = p.(PaymentCapturer)
	case CapCancelPayment:
		_, ok = p.(PaymentCanceller)
	case CapCreateCustomer:
		_, ok = p.(CustomerCreator)
	case CapCreateSubscription:
		_, ok = p.(SubscriptionCreator)
	case CapCancelSubscription:
		_, ok = p.(SubscriptionCanceller)
	case CapGetSubscription:
		_, ok = p.(SubscriptionGetter)
	case CapListSubscriptions:
		_, ok = p.(SubscriptionLister)
	}
	return ok
}

// Capabilities lists the optional capabilities p implements.
func Capabilities(p Provider) []Capability {
	all := []Capability{
		CapCapturePayment, CapCancelPayment, CapCreateCustomer,
		CapCreateSubscription, CapCancelSubscription, CapGetSubscription, CapListSubscriptions,
	}
	out := make([]Capability, 0, len(all))
	for _, c := range all {
		if Supports(p, c) {
			out = append(out, c)
		}
	}
	return out
}

func SignatureHeader(p Provider) string {
	if h, ok := p.(SignatureHeaderer); ok && h.SignatureHeader() != "" {
		return h.SignatureHeader()
	}
	return DefaultSignatureHeader
}

func CapturePayment(ctx context.Context, p Provider, transactionID string, amount *models.Money) (*models.PaymentResult, error) {
	c, ok := p.(PaymentCapturer)
	if !ok {
		return nil, &CapabilityError{Provider: p.Name(), Capability: CapCapturePayment}
	}
	return c.CapturePayment(ctx, transactionID, amount)
}

func CancelPayment(ctx context.Context, p Provider, transactionID string) (*models.PaymentResult, error) {
	c, ok := p.(PaymentCanceller)
	if !ok {
		return nil, &CapabilityError{Provider: p.Name(), Capability: CapCancelPayment}
	}
	return c.CancelPayment(ctx, transactionID)
}

func CreateCustomer(ctx context.Context, p Provider, customer *models.CustomerInfo) (*models.CustomerResult, error) {
	c, ok := p.(CustomerCreator)
	if !ok {
		return nil, &CapabilityError{Provider: p.Name(), Capability: CapCreateCustomer}
	}
	return c.CreateCustomer(ctx, customer)
}

func CreateSubscription(ctx context.Context, p Provider, req *models.SubscriptionRequest) (*models.SubscriptionResult, error) {
	c, ok := p.(SubscriptionCreator)
	if !ok {
		return nil, &CapabilityError{Provider: p.Name(), Capability: CapCreateSubscription}
	}
	return c.CreateSubscription(ctx, req)
}

func CancelSubscription(ctx context.Context, p Provider, subscriptionID string) (*models.SubscriptionResult, error) {
	c, ok := p.(SubscriptionCanceller)
	if !ok {
		return nil, &CapabilityError{Provider: p.Name(), Capability: CapCancelSubscription}
	}
	return c.CancelSubscription(ctx, subscriptionID)
}

func GetSubscription(ctx context.Context, p Provider, subscriptionID string) (*models.SubscriptionResult, error) {
	c, ok := p.(SubscriptionGetter)
	if !ok {
		return nil, &CapabilityError{Provider: p.Name(), Capability: CapGetSubscription}
	}
	return c.GetSubscription(ctx, subscriptionID)
}

func ListSubscriptions(ctx context.Context, p Provider, customerID string) ([]models.SubscriptionResult, error) {
	c, ok := p.(SubscriptionLister)
	if !ok {
		return nil, &CapabilityError{Provider: p.Name(), Capability: CapListSubscriptions}
	}
	return c.ListSubscriptions(ctx, customerID)
}
