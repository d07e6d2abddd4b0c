package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/payment-core/internal/fraud"
	"github.com/akylbek/payment-system/payment-core/internal/handlers"
	"github.com/akylbek/payment-system/payment-core/internal/ledger"
	"github.com/akylbek/payment-system/payment-core/internal/lock"
	"github.com/akylbek/payment-system/payment-core/internal/middleware"
	"github.com/akylbek/payment-system/payment-core/internal/provider"
	"github.com/akylbek/payment-system/payment-core/internal/provider/sandbox"
	"github.com/akylbek/payment-system/payment-core/internal/reconciliation"
	"github.com/akylbek/payment-system/payment-core/internal/repository/memory"
	"github.com/akylbek/payment-system/payment-core/internal/service"
	"github.com/akylbek/payment-system/payment-core/internal/webhook"
)

func newTestRouter(t *testing.T) (*gin.Engine, *sandbox.Provider) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sb := sandbox.New("sandbox", "whsec_test")
	reg := provider.NewRegistry()
	if err := reg.Register(sb, 1, true); err != nil {
		t.Fatal(err)
	}
	l := ledger.New(memory.NewTransactionLogRepository(), lock.NewKeyedMutex(), nil)
	gate := fraud.NewGate(fraud.DefaultConfig(), fraud.NewMemoryHistory(), memory.NewFraudBlockRepository(), nil)
	engine := reconciliation.NewEngine(reg, l, memory.NewReportRepository(), nil, reconciliation.DefaultConfig())
	orch := service.NewOrchestrator(reg, service.OrchestratorConfig{FailoverEnabled: true, AttemptTimeout: time.Second})
	svc := service.NewPaymentService(reg, orch, gate, l, engine)

	r := NewRouter(RouterDeps{
		Payments:         handlers.NewPaymentHandler(svc),
		Subscriptions:    handlers.NewSubscriptionHandler(svc),
		Transactions:     handlers.NewTransactionHandler(svc),
		Admin:            handlers.NewAdminHandler(reg, nil, gate, svc),
		Webhooks:         handlers.NewWebhookHandler(reg, webhook.NewPipeline(reg, webhook.NewMemoryClaims(), l, webhook.Config{}), 0),
		IdempotencyStore: memory.NewIdempotencyStore(),
		Locker:           lock.NewKeyedMutex(),
	})
	return r, sb
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), serviceName) {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestCreatePaymentIsIdempotent(t *testing.T) {
	r, sb := newTestRouter(t)
	body := `{"amount":{"amount":"12.50","currency":"USD"},"customer":{"email":"sam@example.com","name":"Sam Lee"}}`

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/payments", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.IdempotencyHeader, "order-42")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := post()
	if first.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", first.Code, first.Body.String())
	}
	second := post()
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("replay status = %d body = %s", second.Code, second.Body.String())
	}
	if second.Header().Get(middleware.ReplayHeader) == "" {
		t.Fatal("replayed response not marked")
	}
	if sb.Calls() != 1 {
		t.Fatalf("provider calls = %d", sb.Calls())
	}
}

func TestUnknownProviderIsNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/payments/unknown/tx/status", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
