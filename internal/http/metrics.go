package httpx

import (
	"fmt"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// promHTTPInFlightGauge is a gauge of requests currently being served
	promHTTPInFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "A gauge of requests currently being served",
	})

	// promHTTPRequestCounter is a counter for served requests, by status class
	promHTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_api_requests_total",
			Help: "A counter for served requests",
		},
		[]string{"code"},
	)

	// promHTTPResponseDurations is a histogram of request latencies
	promHTTPResponseDurations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "http_response_duration_seconds",
			Help:    "A histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
	)

	// promHTTPResponseSizes is a histogram of response sizes
	promHTTPResponseSizes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "A histogram of response sizes for responses",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		},
	)
)

// RegisterMetrics registers the HTTP metrics and any extra collectors on reg.
func RegisterMetrics(reg prometheus.Registerer, extra ...prometheus.Collector) {
	reg.MustRegister(
		promHTTPInFlightGauge,
		promHTTPRequestCounter,
		promHTTPResponseDurations,
		promHTTPResponseSizes,
	)
	reg.MustRegister(extra...)
}

// NewMetricsHandler returns the handler served on the metrics listener.
func NewMetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func monitoringMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		promHTTPInFlightGauge.Inc()
		defer promHTTPInFlightGauge.Dec()

		m := httpsnoop.CaptureMetrics(h, w, r)

		promHTTPRequestCounter.With(prometheus.Labels{
			"code": fmt.Sprintf("%dXX", m.Code/100),
		}).Inc()
		promHTTPResponseDurations.Observe(m.Duration.Seconds())
		promHTTPResponseSizes.Observe(float64(m.Written))
	})
}
