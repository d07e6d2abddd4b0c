package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/payment-core/internal/fraud"
	"github.com/akylbek/payment-system/payment-core/internal/ledger"
	"github.com/akylbek/payment-system/payment-core/internal/models"
	"github.com/akylbek/payment-system/payment-core/internal/provider"
	"github.com/akylbek/payment-system/payment-core/internal/reconciliation"
	"github.com/akylbek/payment-system/payment-core/internal/service"
	"github.com/akylbek/payment-system/payment-core/internal/webhook"
)

var errBadRequest = errors.New("bad request")

type ErrorResponse struct {
	Error  string                   `json:"error"`
	Fields map[string]string        `json:"fields,omitempty"`
	Fraud  *models.FraudCheckResult `json:"fraud,omitempty"`
}

func respondError(c *gin.Context, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	var blocked *service.FraudBlockedError
	if errors.As(err, &blocked) {
		resp.Fraud = blocked.Result
	}

	c.JSON(mapErrorToHTTPStatus(err), resp)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, errBadRequest),
		errors.Is(err, fraud.ErrInvalidBlacklistEntry),
		errors.Is(err, reconciliation.ErrInvalidWindow),
		errors.Is(err, webhook.ErrSignatureInvalid),
		errors.Is(err, webhook.ErrInvalidPayload):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrFraudBlocked):
		return http.StatusForbidden

	case errors.Is(err, provider.ErrUnknownProvider),
		errors.Is(err, service.ErrTransactionNotFound),
		errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, provider.ErrCapabilityNotSupported):
		return http.StatusNotImplemented

	case errors.Is(err, provider.ErrProviderFailed):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// timeRange reads RFC 3339 from/to query parameters. When both are absent it
// falls back to the trailing window ending now.
func timeRange(c *gin.Context, fallback time.Duration) (time.Time, time.Time, error) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" && to == "" {
		if fallback == 0 {
			return time.Time{}, time.Time{}, nil
		}
		end := time.Now().UTC()
		return end.Add(-fallback), end, nil
	}
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from must be an RFC 3339 timestamp", errBadRequest)
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to must be an RFC 3339 timestamp", errBadRequest)
	}
	return start.UTC(), end.UTC(), nil
}

// bindOptionalJSON decodes the body into v and treats an empty body as no input.
func bindOptionalJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
