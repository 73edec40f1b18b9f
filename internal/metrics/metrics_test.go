package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiagenz/billing/pkg/payment"
)

func TestInstrumentGateway_PassesThrough(t *testing.T) {
	mock := payment.NewMockGateway("whsec")
	gw := InstrumentGateway(mock)
	ctx := context.Background()

	res, err := gw.CreateOrder(ctx, payment.OrderRequest{OrderID: "ORDER_1", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, "session_ORDER_1", res.PaymentSessionID)
	assert.Len(t, mock.Orders(), 1)

	mock.FailWith(errors.New("down"))
	_, err = gw.CreatePlan(ctx, payment.PlanRequest{PlanID: "p"})
	assert.EqualError(t, err, "down")

	body := []byte(`{}`)
	assert.True(t, gw.VerifyWebhookSignature(mock.Sign("1", body), body, "1"))
	assert.False(t, gw.VerifyWebhookSignature("nope", body, "1"))

	assert.GreaterOrEqual(t, testutil.CollectAndCount(gatewayCallDuration), 2,
		"one series per operation and outcome")
}

func TestRecorders(t *testing.T) {
	pruned := testutil.ToFloat64(webhookEventsPruned)
	RecordWebhookEventsPruned(3)
	assert.Equal(t, pruned+3, testutil.ToFloat64(webhookEventsPruned))

	allowed := guardDecisionsTotal.WithLabelValues("allow", "free_trial")
	before := testutil.ToFloat64(allowed)
	RecordGuardDecision(true, "free_trial")
	assert.Equal(t, before+1, testutil.ToFloat64(allowed))

	settled := usageSettledTotal.WithLabelValues("free_trial", "false")
	before = testutil.ToFloat64(settled)
	RecordUsageSettled("free_trial", false)
	assert.Equal(t, before+1, testutil.ToFloat64(settled))

	events := webhookEventsTotal.WithLabelValues("PAYMENT_SUCCESS_WEBHOOK", "processed")
	before = testutil.ToFloat64(events)
	RecordWebhookEvent("PAYMENT_SUCCESS_WEBHOOK", "processed")
	assert.Equal(t, before+1, testutil.ToFloat64(events))
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/plans/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/plans/{id}", "418")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/plans/abc", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
