package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/provider"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
	"github.com/akylbek/payment-system/payment-core/internal/webhook"
)

const defaultMaxWebhookBytes = 1 << 20

type webhookResponse struct {
	Received bool `json:"received"`
	*webhook.Outcome
}

type WebhookHandler struct {
	registry *provider.Registry
	pipeline *webhook.Pipeline
	maxBytes int64
}

func NewWebhookHandler(registry *provider.Registry, pipeline *webhook.Pipeline, maxBytes int64) *WebhookHandler {
	if maxBytes <= 0 {
		maxBytes = defaultMaxWebhookBytes
	}
	return &WebhookHandler{registry: registry, pipeline: pipeline, maxBytes: maxBytes}
}

// Receive handles POST /webhooks/:provider. The raw body is verified before
// it is parsed.
func (h *WebhookHandler) Receive(c *gin.Context) {
	name := c.Param("provider")
	p, err := h.registry.Get(name)
	if err != nil {
		respondError(c, err)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large"})
			return
		}
		badRequest(c, "unreadable body")
		return
	}

	out, err := h.pipeline.Ingest(c.Request.Context(), name, payload, c.GetHeader(provider.SignatureHeader(p)))
	if err != nil {
		// Anything but a rejected delivery asks the provider to retry.
		status := mapErrorToHTTPStatus(err)
		if status >= http.StatusInternalServerError {
			telemetry.Logger.Error("Webhook processing failed", zap.String("provider", name), zap.Error(err))
			status = http.StatusInternalServerError
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, webhookResponse{Received: true, Outcome: out})
}
