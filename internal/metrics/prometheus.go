package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "billing"

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)

	// Entitlement guard metrics
	guardDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Admission decisions for metered requests",
		},
		[]string{"outcome", "tag"},
	)

	usageSettledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "usage_settled_total",
			Help:      "Usage units consumed after successful metered calls",
		},
		[]string{"tag", "applied"},
	)

	// Webhook metrics
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Webhook deliveries by event type and outcome",
		},
		[]string{"type", "outcome"},
	)

	webhookEventsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_pruned_total",
			Help:      "Webhook log rows removed by retention",
		},
	)

	// Gateway metrics
	gatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Payment gateway call duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation", "outcome"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns a middleware that records Prometheus metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		status := strconv.Itoa(wrapped.statusCode)
		httpRequestsTotal.WithLabelValues(r.Method, routePattern, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern, status).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordGuardDecision counts one admission decision.
func RecordGuardDecision(allowed bool, tag string) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	guardDecisionsTotal.WithLabelValues(outcome, tag).Inc()
}

// RecordUsageSettled counts one post-call decrement attempt.
func RecordUsageSettled(tag string, applied bool) {
	usageSettledTotal.WithLabelValues(tag, strconv.FormatBool(applied)).Inc()
}

// RecordWebhookEvent counts one webhook delivery.
func RecordWebhookEvent(eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordWebhookEventsPruned counts rows removed by retention.
func RecordWebhookEventsPruned(n int64) {
	webhookEventsPruned.Add(float64(n))
}

// RecordGatewayCall records the duration of one gateway call.
func RecordGatewayCall(operation string, err error, d time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	gatewayCallDuration.WithLabelValues(operation, outcome).Observe(d.Seconds())
}
