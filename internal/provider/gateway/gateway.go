// Package gateway adapts a JSON/REST payment gateway that signs its webhooks
// with HMAC-SHA256. One Adapter instance serves one configured gateway account.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/provider"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

const maxResponseBytes = 1 << 20

type Config struct {
	Name            string
	BaseURL         string
	APIKey          string
	WebhookSecret   string
	SignatureHeader string
	Timeout         time.Duration
}

// EventHandler applies business effects of a verified, parsed webhook event.
type EventHandler func(ctx context.Context, event *models.WebhookEvent) error

type Adapter struct {
	cfg        Config
	httpClient *http.Client
	onEvent    EventHandler
}

var (
	_ provider.Provider              = (*Adapter)(nil)
	_ provider.PaymentCapturer       = (*Adapter)(nil)
	_ provider.PaymentCanceller      = (*Adapter)(nil)
	_ provider.CustomerCreator       = (*Adapter)(nil)
	_ provider.SubscriptionCreator   = (*Adapter)(nil)
	_ provider.SubscriptionCanceller = (*Adapter)(nil)
	_ provider.SubscriptionGetter    = (*Adapter)(nil)
	_ provider.SubscriptionLister    = (*Adapter)(nil)
)

func New(cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// WithHTTPClient swaps the client, mainly for tests.
func (a *Adapter) WithHTTPClient(c *http.Client) *Adapter {
	a.httpClient = c
	return a
}

// OnEvent registers the business handler invoked from HandleWebhook.
func (a *Adapter) OnEvent(h EventHandler) *Adapter {
	a.onEvent = h
	return a
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) SignatureHeader() string {
	if a.cfg.SignatureHeader != "" {
		return a.cfg.SignatureHeader
	}
	return provider.DefaultSignatureHeader
}

func (a *Adapter) CreatePayment(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentResult, error) {
	req := paymentRequest{
		Amount:      intent.Amount.Amount,
		Currency:    string(intent.Amount.Currency),
		Customer:    toCustomerPayload(intent.Customer),
		Description: intent.Description,
		Metadata:    intent.Metadata,
		ReturnURL:   intent.ReturnURL,
		CancelURL:   intent.CancelURL,
		WebhookURL:  intent.WebhookURL,
		Method:      intent.PaymentMethod,
	}

	var obj paymentObject
	apiErr, err := a.do(ctx, http.MethodPost, "/v1/payments", req, &obj)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		return a.declined(intent.Amount, apiErr), nil
	}
	return a.paymentResult(obj), nil
}

func (a *Adapter) GetPaymentStatus(ctx context.Context, transactionID string) (*models.PaymentResult, error) {
	var obj paymentObject
	apiErr, err := a.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(transactionID), nil, &obj)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		if apiErr.status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", provider.ErrTransactionNotFound, transactionID)
		}
		res := a.declined(models.Money{}, apiErr)
		res.TransactionID = transactionID
		return res, nil
	}
	return a.paymentResult(obj), nil
}

func (a *Adapter) Refund(ctx context.Context, req *models.RefundRequest) (*models.RefundResult, error) {
	body := amountRequest{Reason: req.Reason}
	if req.Amount != nil {
		body.Amount = &req.Amount.Amount
	}

	var obj paymentObject
	apiErr, err := a.do(ctx, http.MethodPost, "/v1/payments/"+url.PathEscape(req.TransactionID)+"/refunds", body, &obj)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		res := &models.RefundResult{
			Success:       false,
			TransactionID: req.TransactionID,
			Provider:      a.cfg.Name,
			Status:        models.StatusFailed,
			Error:         apiErr.Error(),
		}
		if req.Amount != nil {
			res.Amount = *req.Amount
		}
		return res, nil
	}

	// A bare "succeeded" describes the refund, not the payment; the payment
	// status is left empty unless the API reports it.
	status := mapStatus(obj.Status)
	if status == models.StatusCompleted {
		status = ""
	}
	return &models.RefundResult{
		Success:          !status.IsFailure(),
		RefundID:         obj.ID,
		TransactionID:    req.TransactionID,
		Provider:         a.cfg.Name,
		Status:           status,
		Amount:           models.Money{Amount: obj.Amount, Currency: models.Currency(obj.Currency)},
		Error:            obj.FailureMsg,
		ProviderResponse: objectResponse(obj),
	}, nil
}

func (a *Adapter) CapturePayment(ctx context.Context, transactionID string, amount *models.Money) (*models.PaymentResult, error) {
	body := amountRequest{}
	if amount != nil {
		body.Amount = &amount.Amount
	}
	return a.paymentAction(ctx, transactionID, "capture", body)
}

func (a *Adapter) CancelPayment(ctx context.Context, transactionID string) (*models.PaymentResult, error) {
	return a.paymentAction(ctx, transactionID, "cancel", amountRequest{})
}

func (a *Adapter) paymentAction(ctx context.Context, transactionID, action string, body amountRequest) (*models.PaymentResult, error) {
	var obj paymentObject
	apiErr, err := a.do(ctx, http.MethodPost, "/v1/payments/"+url.PathEscape(transactionID)+"/"+action, body, &obj)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		res := a.declined(models.Money{}, apiErr)
		res.TransactionID = transactionID
		return res, nil
	}
	return a.paymentResult(obj), nil
}

func (a *Adapter) CreateCustomer(ctx context.Context, customer *models.CustomerInfo) (*models.CustomerResult, error) {
	var obj struct {
		ID string `json:"id"`
	}
	apiErr, err := a.do(ctx, http.MethodPost, "/v1/customers", toCustomerPayload(*customer), &obj)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		return &models.CustomerResult{Success: false, Provider: a.cfg.Name, Error: apiErr.Error()}, nil
	}
	return &models.CustomerResult{Success: true, CustomerID: obj.ID, Provider: a.cfg.Name}, nil
}

func (a *Adapter) CreateSubscription(ctx context.Context, req *models.SubscriptionRequest) (*models.SubscriptionResult, error) {
	body := subscriptionRequest{
		Customer:  toCustomerPayload(req.Customer),
		PlanID:    req.PlanID,
		Amount:    req.Amount.Amount,
		Currency:  string(req.Amount.Currency),
		Interval:  string(req.Interval),
		TrialDays: req.TrialDays,
		Metadata:  req.Metadata,
	}
	var obj subscriptionObject
	apiErr, err := a.do(ctx, http.MethodPost, "/v1/subscriptions", body, &obj)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		return &models.SubscriptionResult{Success: false, Provider: a.cfg.Name, Status: models.StatusFailed, Amount: req.Amount, Error: apiErr.Error()}, nil
	}
	return a.subscriptionResult(obj), nil
}

func (a *Adapter) CancelSubscription(ctx context.Context, subscriptionID string) (*models.SubscriptionResult, error) {
	return a.subscriptionCall(ctx, http.MethodDelete, subscriptionID)
}

func (a *Adapter) GetSubscription(ctx context.Context, subscriptionID string) (*models.SubscriptionResult, error) {
	return a.subscriptionCall(ctx, http.MethodGet, subscriptionID)
}

func (a *Adapter) subscriptionCall(ctx context.Context, method, subscriptionID string) (*models.SubscriptionResult, error) {
	var obj subscriptionObject
	apiErr, err := a.do(ctx, method, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil, &obj)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		return &models.SubscriptionResult{Success: false, SubscriptionID: subscriptionID, Provider: a.cfg.Name, Status: models.StatusFailed, Error: apiErr.Error()}, nil
	}
	return a.subscriptionResult(obj), nil
}

func (a *Adapter) ListSubscriptions(ctx context.Context, customerID string) ([]models.SubscriptionResult, error) {
	var list struct {
		Data []subscriptionObject `json:"data"`
	}
	apiErr, err := a.do(ctx, http.MethodGet, "/v1/customers/"+url.PathEscape(customerID)+"/subscriptions", nil, &list)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		return nil, apiErr
	}
	out := make([]models.SubscriptionResult, 0, len(list.Data))
	for _, obj := range list.Data {
		out = append(out, *a.subscriptionResult(obj))
	}
	return out, nil
}

func (a *Adapter) VerifyWebhook(payload []byte, signature string) bool {
	return provider.VerifyPayload(a.cfg.WebhookSecret, payload, signature)
}

func (a *Adapter) ParseWebhook(payload []byte) (*models.WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, errors.New("webhook missing id or type")
	}

	obj := env.Data.Object
	event := &models.WebhookEvent{
		ID:         env.ID,
		Type:       normalizeEventType(env.Type),
		Provider:   a.cfg.Name,
		CustomerID: stringField(obj, "customer"),
		Data:       obj,
		Timestamp:  time.Now().UTC(),
	}
	if env.Created > 0 {
		event.Timestamp = time.Unix(env.Created, 0).UTC()
	}

	event.TransactionID = stringField(obj, "id")
	if paymentID := stringField(obj, "payment_id"); paymentID != "" {
		event.TransactionID = paymentID
	}
	if raw, ok := obj["amount"]; ok {
		if amount, err := decimal.NewFromString(fmt.Sprint(raw)); err == nil {
			event.Amount = &models.Money{Amount: amount, Currency: models.Currency(strings.ToUpper(stringField(obj, "currency")))}
		}
	}
	return event, nil
}

func (a *Adapter) HandleWebhook(ctx context.Context, event *models.WebhookEvent) error {
	if a.onEvent != nil {
		return a.onEvent(ctx, event)
	}
	telemetry.Logger.Debug("Webhook event has no business handler",
		zap.String("provider", a.cfg.Name),
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
	)
	return nil
}

func (a *Adapter) HealthCheck(ctx context.Context) provider.HealthStatus {
	apiErr, err := a.do(ctx, http.MethodGet, "/v1/health", nil, nil)
	if err != nil {
		return provider.HealthStatus{Healthy: false, Message: err.Error()}
	}
	if apiErr != nil {
		return provider.HealthStatus{Healthy: false, Message: apiErr.Error()}
	}
	return provider.HealthStatus{Healthy: true}
}

type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("%s (%s)", e.message, e.code)
	}
	return e.message
}

// do performs one API call. Transport failures, 5xx and undecodable bodies come
// back as err; 4xx responses are business outcomes and come back as *apiError.
func (a *Adapter) do(ctx context.Context, method, path string, body, out any) (*apiError, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s encode request: %w", a.cfg.Name, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s build request: %w", a.cfg.Name, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s %s: %w", a.cfg.Name, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s read response: %w", a.cfg.Name, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%s %s %s: http=%d body=%s", a.cfg.Name, method, path, resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var env errorEnvelope
		_ = json.Unmarshal(raw, &env)
		msg := env.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &apiError{status: resp.StatusCode, code: env.Error.Code, message: msg}, nil
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("%s decode response: %w body=%s", a.cfg.Name, err, string(raw))
		}
	}
	return nil, nil
}

func (a *Adapter) paymentResult(obj paymentObject) *models.PaymentResult {
	status := mapStatus(obj.Status)
	return &models.PaymentResult{
		Success:          !status.IsFailure(),
		TransactionID:    obj.ID,
		Provider:         a.cfg.Name,
		Status:           status,
		Amount:           models.Money{Amount: obj.Amount, Currency: models.Currency(obj.Currency)},
		Error:            obj.FailureMsg,
		RedirectURL:      obj.RedirectURL,
		ProviderResponse: objectResponse(obj),
	}
}

func (a *Adapter) declined(amount models.Money, apiErr *apiError) *models.PaymentResult {
	return &models.PaymentResult{
		Success:  false,
		Provider: a.cfg.Name,
		Status:   models.StatusFailed,
		Amount:   amount,
		Error:    apiErr.Error(),
		ProviderResponse: map[string]any{
			"http_status": apiErr.status,
			"code":        apiErr.code,
		},
	}
}

func (a *Adapter) subscriptionResult(obj subscriptionObject) *models.SubscriptionResult {
	status := mapStatus(obj.Status)
	res := &models.SubscriptionResult{
		Success:        !status.IsFailure() || obj.Status == "canceled",
		SubscriptionID: obj.ID,
		CustomerID:     obj.CustomerID,
		Provider:       a.cfg.Name,
		Status:         status,
		Amount:         models.Money{Amount: obj.Amount, Currency: models.Currency(obj.Currency)},
	}
	if obj.CurrentPeriodEnd > 0 {
		end := time.Unix(obj.CurrentPeriodEnd, 0).UTC()
		res.CurrentPeriodEnd = &end
	}
	return res
}

func objectResponse(obj paymentObject) map[string]any {
	resp := map[string]any{"id": obj.ID, "status": obj.Status}
	if obj.FailureCode != "" {
		resp["failure_code"] = obj.FailureCode
	}
	return resp
}

func toCustomerPayload(c models.CustomerInfo) customerPayload {
	return customerPayload{ID: c.ID, Email: c.Email, Name: c.Name, Phone: c.Phone}
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}
