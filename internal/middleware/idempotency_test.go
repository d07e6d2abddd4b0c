package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/payment-core/internal/lock"
	"github.com/akylbek/payment-system/payment-core/internal/repository/memory"
)

func newTestRouter(calls *atomic.Int32) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Idempotency(memory.NewIdempotencyStore(), lock.NewKeyedMutex()))
	r.POST("/charge", func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(http.StatusCreated, gin.H{"call": n})
	})
	r.GET("/charge", func(c *gin.Context) {
		calls.Add(1)
		c.Status(http.StatusOK)
	})
	return r
}

func do(r *gin.Engine, method, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/charge", nil)
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	var calls atomic.Int32
	r := newTestRouter(&calls)

	first := do(r, http.MethodPost, "k1")
	second := do(r, http.MethodPost, "k1")

	if calls.Load() != 1 {
		t.Fatalf("handler calls = %d, want 1", calls.Load())
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("replay = %d %s, original = %s", second.Code, second.Body.String(), first.Body.String())
	}
	if second.Header().Get(ReplayHeader) != "true" {
		t.Fatal("replay header missing")
	}

	do(r, http.MethodPost, "k2")
	if calls.Load() != 2 {
		t.Fatalf("different key should run the handler, calls = %d", calls.Load())
	}
}

func TestIdempotencyPassThrough(t *testing.T) {
	var calls atomic.Int32
	r := newTestRouter(&calls)

	do(r, http.MethodPost, "")
	do(r, http.MethodPost, "")
	do(r, http.MethodGet, "k1")
	do(r, http.MethodGet, "k1")
	if calls.Load() != 4 {
		t.Fatalf("calls = %d, want 4", calls.Load())
	}
}
