package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/service"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type refundBody struct {
	TransactionID string            `json:"transaction_id"`
	Provider      string            `json:"provider,omitempty"`
	Amount        *models.Money     `json:"amount,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type captureBody struct {
	Amount *models.Money `json:"amount,omitempty"`
}

type customerBody struct {
	Provider string              `json:"provider"`
	Customer models.CustomerInfo `json:"customer"`
}

// CreatePayment handles POST /v1/payments. A charge every provider declined is
// answered with 402 and the full attempt list.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	ctx := c.Request.Context()
	span := trace.SpanFromContext(ctx)

	var intent models.PaymentIntent
	if err := c.ShouldBindJSON(&intent); err != nil {
		telemetry.Logger.Warn("Invalid payment request", zap.Error(err))
		badRequest(c, "invalid request body")
		return
	}
	if intent.IPAddress == "" {
		intent.IPAddress = c.ClientIP()
	}
	if intent.UserAgent == "" {
		intent.UserAgent = c.Request.UserAgent()
	}

	telemetry.Logger.Info("Creating payment",
		zap.String("customer", intent.Customer.Key()),
		zap.String("amount", intent.Amount.String()),
		zap.String("preferred_provider", intent.PreferredProvider),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	result, err := h.payments.CreatePayment(ctx, &intent)
	if err != nil {
		respondError(c, err)
		return
	}
	if !result.Success {
		c.JSON(http.StatusPaymentRequired, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// GetPaymentStatus handles GET /v1/payments/:provider/:id/status
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	result, err := h.payments.GetPaymentStatus(c.Request.Context(), c.Param("id"), c.Param("provider"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Refund handles POST /v1/payments/:provider/:id/refund
func (h *PaymentHandler) Refund(c *gin.Context) {
	var body refundBody
	if err := bindOptionalJSON(c, &body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	body.TransactionID = c.Param("id")
	body.Provider = c.Param("provider")
	h.refund(c, body)
}

// CreateRefund handles POST /v1/refunds, where the provider may be omitted and
// is then taken from the ledger.
func (h *PaymentHandler) CreateRefund(c *gin.Context) {
	var body refundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	h.refund(c, body)
}

func (h *PaymentHandler) refund(c *gin.Context, body refundBody) {
	result, err := h.payments.Refund(c.Request.Context(), &models.RefundRequest{
		TransactionID: body.TransactionID,
		Amount:        body.Amount,
		Reason:        body.Reason,
		Metadata:      body.Metadata,
	}, body.Provider)
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, result.Success, result)
}

// Capture handles POST /v1/payments/:provider/:id/capture
func (h *PaymentHandler) Capture(c *gin.Context) {
	var body captureBody
	if err := bindOptionalJSON(c, &body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	result, err := h.payments.CapturePayment(c.Request.Context(), c.Param("provider"), c.Param("id"), body.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, result.Success, result)
}

// Cancel handles POST /v1/payments/:provider/:id/cancel
func (h *PaymentHandler) Cancel(c *gin.Context) {
	result, err := h.payments.CancelPayment(c.Request.Context(), c.Param("provider"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, result.Success, result)
}

// CreateCustomer handles POST /v1/customers
func (h *PaymentHandler) CreateCustomer(c *gin.Context) {
	var body customerBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Provider == "" {
		badRequest(c, "provider and customer are required")
		return
	}
	result, err := h.payments.CreateCustomer(c.Request.Context(), body.Provider, &body.Customer)
	if err != nil {
		respondError(c, err)
		return
	}
	if !result.Success {
		c.JSON(http.StatusBadGateway, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// respondResult answers provider-scoped operations: a declined or failed call
// is a 422 carrying the provider's result.
func respondResult(c *gin.Context, success bool, result any) {
	if !success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}
