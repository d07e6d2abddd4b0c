package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/fraud"
	"github.com/akylbek/payment-system/payment-core/internal/health"
	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/provider"
	"github.com/akylbek/payment-system/payment-core/internal/service"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

// AdminHandler serves provider configuration, fraud blacklists and
// reconciliation runs.
type AdminHandler struct {
	registry *provider.Registry
	monitor  *health.Monitor
	gate     *fraud.Gate
	payments *service.PaymentService
}

func NewAdminHandler(registry *provider.Registry, monitor *health.Monitor, gate *fraud.Gate, payments *service.PaymentService) *AdminHandler {
	return &AdminHandler{registry: registry, monitor: monitor, gate: gate, payments: payments}
}

type providerView struct {
	models.ProviderPriority
	Capabilities []provider.Capability `json:"capabilities"`
	Health       *health.Snapshot      `json:"health,omitempty"`
}

// ListProviders handles GET /v1/providers
func (h *AdminHandler) ListProviders(c *gin.Context) {
	snapshots := map[string]health.Snapshot{}
	if h.monitor != nil {
		for _, s := range h.monitor.Latest() {
			snapshots[s.Provider] = s
		}
	}

	out := make([]providerView, 0)
	for _, prio := range h.registry.Priorities() {
		view := providerView{ProviderPriority: prio}
		if p, err := h.registry.Get(prio.Provider); err == nil {
			view.Capabilities = provider.Capabilities(p)
		}
		if s, ok := snapshots[prio.Provider]; ok {
			view.Health = &s
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

type configureBody struct {
	Priority *int  `json:"priority"`
	Enabled  *bool `json:"enabled"`
}

// ConfigureProvider handles PUT /v1/providers/:name
func (h *AdminHandler) ConfigureProvider(c *gin.Context) {
	var body configureBody
	if err := c.ShouldBindJSON(&body); err != nil || (body.Priority == nil && body.Enabled == nil) {
		badRequest(c, "priority or enabled is required")
		return
	}
	updated, err := h.registry.Configure(c.Param("name"), body.Priority, body.Enabled)
	if err != nil {
		respondError(c, err)
		return
	}
	telemetry.Logger.Info("Provider configuration changed",
		zap.String("provider", updated.Provider),
		zap.Int("priority", updated.Priority),
		zap.Bool("enabled", updated.Enabled),
	)
	c.JSON(http.StatusOK, updated)
}

type blacklistBody struct {
	Kind  fraud.ListKind `json:"kind"`
	Value string         `json:"value"`
}

// GetBlacklist handles GET /v1/fraud/blacklist
func (h *AdminHandler) GetBlacklist(c *gin.Context) {
	c.JSON(http.StatusOK, h.gate.Blacklist())
}

// AddToBlacklist handles POST /v1/fraud/blacklist
func (h *AdminHandler) AddToBlacklist(c *gin.Context) {
	var body blacklistBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := h.gate.AddToBlacklist(body.Kind, body.Value); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, body)
}

// RemoveFromBlacklist handles DELETE /v1/fraud/blacklist
func (h *AdminHandler) RemoveFromBlacklist(c *gin.Context) {
	var body blacklistBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := h.gate.RemoveFromBlacklist(body.Kind, body.Value); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reconcileBody struct {
	Provider string    `json:"provider"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Reconcile handles POST /v1/reconciliations. Without a provider every
// registered provider is reconciled.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	var body reconcileBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "start and end must be RFC 3339 timestamps")
		return
	}
	ctx := c.Request.Context()

	if body.Provider != "" {
		report, err := h.payments.Reconcile(ctx, body.Provider, body.Start, body.End)
		if report == nil {
			respondError(c, err)
			return
		}
		if err != nil {
			telemetry.Logger.Error("Reconciliation report not saved", zap.String("provider", body.Provider), zap.Error(err))
		}
		c.JSON(http.StatusOK, report)
		return
	}

	reports, err := h.payments.ReconcileAll(ctx, body.Start, body.End)
	if err != nil && len(reports) == 0 {
		respondError(c, err)
		return
	}
	resp := gin.H{"reports": reports}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// ListReconciliations handles GET /v1/reconciliations?provider=&limit=
func (h *AdminHandler) ListReconciliations(c *gin.Context) {
	reports, err := h.payments.ReconciliationReports(c.Request.Context(), c.Query("provider"), queryInt(c, "limit", 30))
	if err != nil {
		respondError(c, err)
		return
	}
	if reports == nil {
		reports = []models.ReconciliationReport{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}
