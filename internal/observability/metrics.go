package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "code"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	transactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_transactions_total",
			Help: "Transactions reaching a status.",
		},
		[]string{"status"},
	)
	refundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_refunds_total",
			Help: "Refunds reaching a status.",
		},
		[]string{"status"},
	)
	payoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_payouts_total",
			Help: "Payouts reaching a status.",
		},
		[]string{"status"},
	)
	gatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payments_gateway_duration_seconds",
			Help:    "Latency of calls to the card processor and payout rail.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "outcome"},
	)
)

// RecordTransaction counts a transaction reaching status.
func RecordTransaction(status string) { transactionsTotal.WithLabelValues(status).Inc() }

// RecordRefund counts a refund reaching status.
func RecordRefund(status string) { refundsTotal.WithLabelValues(status).Inc() }

// RecordPayout counts a payout reaching status.
func RecordPayout(status string) { payoutsTotal.WithLabelValues(status).Inc() }

// ObserveGateway records the latency of one outbound call.
func ObserveGateway(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	gatewayDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

// NewMetricsMiddleware Creates HTTP middleware for collecting Prometheus metrics.
// Paths are labelled with the chi route pattern to keep cardinality bounded.
func NewMetricsMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				path := r.URL.Path
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					path = rctx.RoutePattern()
				}
				httpRequestDuration.WithLabelValues(serviceName, r.Method, path).Observe(time.Since(start).Seconds())
				httpRequestsTotal.WithLabelValues(serviceName, r.Method, path, strconv.Itoa(ww.Status())).Inc()
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
