package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/service"
)

type TransactionHandler struct {
	payments *service.PaymentService
}

func NewTransactionHandler(payments *service.PaymentService) *TransactionHandler {
	return &TransactionHandler{payments: payments}
}

// Get handles GET /v1/transactions/:id and returns the full row history.
func (h *TransactionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	rows, err := h.payments.Transaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transaction_id": id,
		"latest":         models.LatestByTransaction(rows)[id],
		"history":        rows,
	})
}

// List handles GET /v1/transactions?provider=|customer=|from=&to=
func (h *TransactionHandler) List(c *gin.Context) {
	start, end, err := timeRange(c, 0)
	if err != nil {
		respondError(c, err)
		return
	}
	rows, err := h.payments.Transactions(c.Request.Context(), service.TransactionFilter{
		Provider: c.Query("provider"),
		Customer: c.Query("customer"),
		Start:    start,
		End:      end,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if rows == nil {
		rows = []models.TransactionLog{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": rows, "count": len(rows)})
}

// Statistics handles GET /v1/statistics?from=&to=, defaulting to the last 24 hours.
func (h *TransactionHandler) Statistics(c *gin.Context) {
	start, end, err := timeRange(c, 24*time.Hour)
	if err != nil {
		respondError(c, err)
		return
	}
	stats, err := h.payments.GetStatistics(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
