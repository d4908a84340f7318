package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docvault_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docvault_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	itemsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docvault_items_total",
		Help: "Number of live vault items.",
	})

	shareLinksTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docvault_share_links_total",
		Help: "Number of share links.",
	})

	uploadsRegistered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docvault_uploads_registered_total",
		Help: "Uploads registered through the quarantine pipeline.",
	})

	downloadURLsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docvault_download_urls_issued_total",
		Help: "Download URLs handed out, cached reuse included.",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, itemsTotal,
		shareLinksTotal, uploadsRegistered, downloadURLsIssued)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// metricsMiddleware records request metrics.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		dur := time.Since(start).Seconds()
		status := strconv.Itoa(rr.statusCode)
		requestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		requestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(dur)
	})
}
