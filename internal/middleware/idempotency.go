package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-core/internal/interfaces"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayHeader      = "Idempotent-Replayed"
	idempotencyTTL    = 24 * time.Hour
)

type cachedResponse struct {
	StatusCode  int             `json:"status_code"`
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body"`
}

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response when a mutating request repeats an
// Idempotency-Key. Requests with the same key are serialized so a retry that
// races the original waits for it instead of charging twice. Requests without
// the header pass through.
func Idempotency(store interfaces.IdempotencyStore, locker interfaces.Locker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut && c.Request.Method != http.MethodDelete {
			c.Next()
			return
		}
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := c.Request.Method + ":" + c.FullPath() + ":" + key

		release, err := locker.Acquire(ctx, "idempotency:"+cacheKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this Idempotency-Key is in progress"})
			return
		}
		defer release()

		if data, ok, err := store.Get(ctx, cacheKey); err != nil {
			telemetry.Logger.Warn("Idempotency lookup failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			var cached cachedResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				c.Header(ReplayHeader, "true")
				c.Data(cached.StatusCode, cached.ContentType, cached.Body)
				c.Abort()
				return
			}
		}

		w := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w
		c.Set("idempotency_key", key)

		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 500 {
			return
		}
		data, err := json.Marshal(cachedResponse{
			StatusCode:  status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
		if err != nil {
			return
		}
		if err := store.Set(ctx, cacheKey, data, idempotencyTTL); err != nil {
			telemetry.Logger.Warn("Failed to store idempotent response", zap.String("key", key), zap.Error(err))
		}
	}
}
