package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mediadl",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latencies in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediadl",
		Name:      "http_requests_in_flight",
		Help:      "Current number of HTTP requests being served",
	})

	fileRequestsDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediadl",
		Name:      "file_requests_denied_total",
		Help:      "Retrieval requests denied by the file guard",
	}, []string{"reason"})

	filesServed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mediadl",
		Name:      "files_served_total",
		Help:      "Files streamed to callers and scheduled for deletion",
	})
)

// Metrics records request duration and in-flight gauge per route pattern.
// Labeling by route pattern instead of raw path avoids cardinality explosion
// from attacker-supplied filenames.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}
			httpRequestDuration.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).
				Observe(time.Since(start).Seconds())
		})
	}
}
