// Package metrics exposes Prometheus collectors for the HTTP surface and the
// ticket inventory.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const serviceName = "ticket-marketplace"

var (
	// HTTP request counter
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status", "service"},
	)

	// HTTP request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	// TicketOperations counts inventory and lifecycle operations by outcome.
	TicketOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_operations_total",
			Help: "Total number of ticket inventory and transaction operations",
		},
		[]string{"operation", "outcome", "service"},
	)

	// QuotaUnits counts units moved in and out of inventory.
	QuotaUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_quota_units_total",
			Help: "Ticket units reserved and restored",
		},
		[]string{"direction", "service"},
	)

	// QuotaRestoreClamped counts restorations that would have pushed
	// available quota above quota. Any non-zero value is a bug.
	QuotaRestoreClamped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticket_quota_restore_clamped_total",
			Help: "Quota restorations clamped at the ticket type's quota",
		},
	)

	// NotificationsTotal counts notification deliveries per sink.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications delivered per sink and outcome",
		},
		[]string{"sink", "outcome"},
	)

	// ExpiredTransactions counts transactions moved to EXPIRED by the sweeper.
	ExpiredTransactions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transactions_expired_total",
			Help: "Transactions expired by the background sweeper",
		},
	)
)

// RecordOperation increments TicketOperations for op with the given outcome.
func RecordOperation(op, outcome string) {
	TicketOperations.WithLabelValues(op, outcome, serviceName).Inc()
}

// RecordQuota adds units to the reserved or restored counter.
func RecordQuota(direction string, units int) {
	QuotaUnits.WithLabelValues(direction, serviceName).Add(float64(units))
}

// Middleware records HTTP metrics, labelled by chi route pattern so path
// parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status), serviceName).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint, serviceName).Observe(time.Since(start).Seconds())
	})
}
