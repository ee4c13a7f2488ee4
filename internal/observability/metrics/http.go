package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics is the api-side registry: request plumbing plus the
// retrieval, cache and golden-set counters.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrieveTotal         *prometheus.CounterVec
	retrieveDegradedTotal *prometheus.CounterVec
	retrievedChunks       *prometheus.HistogramVec
	retrieveDuration      *prometheus.HistogramVec

	cacheLookupsTotal *prometheus.CounterVec
	goldenChecksTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kb",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kb",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kb",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrieveTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kb",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrieval requests served.",
		},
		[]string{"service"},
	)
	retrieveDegradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kb",
			Subsystem: "retrieval",
			Name:      "degraded_total",
			Help:      "Total retrieval requests where every source failed.",
		},
		[]string{"service"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kb",
			Subsystem: "retrieval",
			Name:      "chunks",
			Help:      "Distribution of fused chunks returned per request.",
			Buckets:   []float64{0, 1, 3, 5, 10, 15, 25, 40},
		},
		[]string{"service"},
	)
	retrieveDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kb",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval fan-out duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kb",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total answer cache lookups by tier and result.",
		},
		[]string{"service", "result"},
	)
	goldenChecksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kb",
			Subsystem: "golden",
			Name:      "checks_total",
			Help:      "Total golden-set checks by result.",
		},
		[]string{"service", "result"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrieveTotal,
		retrieveDegradedTotal,
		retrievedChunks,
		retrieveDuration,
		cacheLookupsTotal,
		goldenChecksTotal,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		retrieveTotal:         retrieveTotal,
		retrieveDegradedTotal: retrieveDegradedTotal,
		retrievedChunks:       retrievedChunks,
		retrieveDuration:      retrieveDuration,
		cacheLookupsTotal:     cacheLookupsTotal,
		goldenChecksTotal:     goldenChecksTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{item_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordRetrieval(service string, chunkCount int, degraded bool, duration time.Duration) {
	m.retrieveTotal.WithLabelValues(service).Inc()
	m.retrievedChunks.WithLabelValues(service).Observe(float64(chunkCount))
	m.retrieveDuration.WithLabelValues(service).Observe(duration.Seconds())
	if degraded {
		m.retrieveDegradedTotal.WithLabelValues(service).Inc()
	}
}

// RecordCacheLookup takes result one of "exact", "semantic", "miss".
func (m *HTTPServerMetrics) RecordCacheLookup(service, result string) {
	if result == "" {
		result = "miss"
	}
	m.cacheLookupsTotal.WithLabelValues(service, result).Inc()
}

// RecordGoldenCheck takes result one of "exact", "semantic", "miss".
func (m *HTTPServerMetrics) RecordGoldenCheck(service, result string) {
	if result == "" {
		result = "miss"
	}
	m.goldenChecksTotal.WithLabelValues(service, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
