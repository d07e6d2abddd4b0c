package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/payment-core/internal/handlers"
	"github.com/akylbek/payment-system/payment-core/internal/interfaces"
	"github.com/akylbek/payment-system/payment-core/internal/middleware"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

const serviceName = "payment-core"

type RouterDeps struct {
	Payments      *handlers.PaymentHandler
	Subscriptions *handlers.SubscriptionHandler
	Transactions  *handlers.TransactionHandler
	Admin         *handlers.AdminHandler
	Webhooks      *handlers.WebhookHandler

	IdempotencyStore interfaces.IdempotencyStore
	Locker           interfaces.Locker
	NewRelicApp      *newrelic.Application
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())
	if deps.NewRelicApp != nil {
		r.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})

	// Webhooks carry their own event ids and are deduplicated by the pipeline.
	r.POST("/webhooks/:provider", deps.Webhooks.Receive)

	idem := middleware.Idempotency(deps.IdempotencyStore, deps.Locker)

	v1 := r.Group("/v1")
	{
		payments := v1.Group("/payments")
		{
			payments.POST("", idem, deps.Payments.CreatePayment)
			payments.GET("/:provider/:id/status", deps.Payments.GetPaymentStatus)
			payments.POST("/:provider/:id/refund", idem, deps.Payments.Refund)
			payments.POST("/:provider/:id/capture", idem, deps.Payments.Capture)
			payments.POST("/:provider/:id/cancel", idem, deps.Payments.Cancel)
		}

		v1.POST("/refunds", idem, deps.Payments.CreateRefund)

		customers := v1.Group("/customers")
		{
			customers.POST("", idem, deps.Payments.CreateCustomer)
			customers.GET("/:provider/:id/subscriptions", deps.Subscriptions.ListForCustomer)
		}

		subs := v1.Group("/subscriptions")
		{
			subs.POST("", idem, deps.Subscriptions.Create)
			subs.GET("/:provider/:id", deps.Subscriptions.Get)
			subs.DELETE("/:provider/:id", idem, deps.Subscriptions.Cancel)
		}

		v1.GET("/transactions", deps.Transactions.List)
		v1.GET("/transactions/:id", deps.Transactions.Get)
		v1.GET("/statistics", deps.Transactions.Statistics)

		v1.POST("/reconciliations", deps.Admin.Reconcile)
		v1.GET("/reconciliations", deps.Admin.ListReconciliations)

		v1.GET("/providers", deps.Admin.ListProviders)
		v1.PUT("/providers/:name", deps.Admin.ConfigureProvider)

		fraud := v1.Group("/fraud/blacklist")
		{
			fraud.GET("", deps.Admin.GetBlacklist)
			fraud.POST("", deps.Admin.AddToBlacklist)
			fraud.DELETE("", deps.Admin.RemoveFromBlacklist)
		}
	}

	return r
}
