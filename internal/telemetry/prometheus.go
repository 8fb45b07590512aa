package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "willitrain"

// PrometheusMetrics records to collectors registered on its own registry, so
// several instances (one per test) can coexist.
type PrometheusMetrics struct {
	gatherer prometheus.Gatherer

	requests         *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
	providerCalls    *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	cacheResults     *prometheus.CounterVec
	insufficientData *prometheus.CounterVec
	prefetch         *prometheus.CounterVec
}

var _ Recorder = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the collectors on reg. reg must also be a
// prometheus.Gatherer for Handler to serve anything; *prometheus.Registry is.
func NewPrometheusMetrics(reg *prometheus.Registry) *PrometheusMetrics {
	m := &PrometheusMetrics{
		gatherer: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "endpoint", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: promNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Upstream provider calls by provider and result.",
		}, []string{"provider", "result"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: promNamespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Upstream provider latency including retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"provider"}),
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "history_cache",
			Name:      "lookups_total",
			Help:      "History cache lookups by result (hit, miss, stale, error).",
		}, []string{"result"}),
		insufficientData: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "outlook",
			Name:      "insufficient_data_total",
			Help:      "Outlook requests with no matching historical observations, by month.",
		}, []string{"month"}),
		prefetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "prefetch",
			Name:      "processed_total",
			Help:      "Prefetch jobs by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.requests,
		m.requestLatency,
		m.providerCalls,
		m.providerLatency,
		m.cacheResults,
		m.insufficientData,
		m.prefetch,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) RecordRequest(method, endpoint, status string, d time.Duration) {
	m.requests.WithLabelValues(method, endpoint, status).Inc()
	m.requestLatency.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

func (m *PrometheusMetrics) RecordProviderCall(provider, result string, d time.Duration) {
	m.providerCalls.WithLabelValues(provider, result).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *PrometheusMetrics) RecordCacheResult(result string) {
	m.cacheResults.WithLabelValues(result).Inc()
}

// RecordInsufficientData labels by month only; a per-day label would create
// 366 series.
func (m *PrometheusMetrics) RecordInsufficientData(mmdd string) {
	month := mmdd
	if len(mmdd) >= 2 {
		month = mmdd[:2]
	}
	m.insufficientData.WithLabelValues(month).Inc()
}

func (m *PrometheusMetrics) RecordPrefetch(result string) {
	m.prefetch.WithLabelValues(result).Inc()
}
