package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plateful_http_request_duration_seconds",
		Help:    "Time spent serving HTTP requests",
		Buckets: prometheus.DefBuckets,
	})

	statusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plateful_order_status_changes_total",
		Help: "Order status transitions applied through the API",
	}, []string{"status"})

	ordersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plateful_orders_created_total",
		Help: "Orders created through the API",
	})
)

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		requestDuration.Observe(time.Since(start).Seconds())
	})
}
