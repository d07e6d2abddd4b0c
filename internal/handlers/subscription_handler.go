package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/service"
)

type SubscriptionHandler struct {
	payments *service.PaymentService
}

func NewSubscriptionHandler(payments *service.PaymentService) *SubscriptionHandler {
	return &SubscriptionHandler{payments: payments}
}

// Create handles POST /v1/subscriptions
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req models.SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	result, err := h.payments.CreateSubscription(c.Request.Context(), &req)
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

// Get handles GET /v1/subscriptions/:provider/:id
func (h *SubscriptionHandler) Get(c *gin.Context) {
	result, err := h.payments.GetSubscription(c.Request.Context(), c.Param("provider"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Cancel handles DELETE /v1/subscriptions/:provider/:id
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	result, err := h.payments.CancelSubscription(c.Request.Context(), c.Param("provider"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, result.Success, result)
}

// ListForCustomer handles GET /v1/customers/:provider/:id/subscriptions
func (h *SubscriptionHandler) ListForCustomer(c *gin.Context) {
	subs, err := h.payments.ListSubscriptions(c.Request.Context(), c.Param("provider"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if subs == nil {
		subs = []models.SubscriptionResult{}
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}
