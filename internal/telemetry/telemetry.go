// Package telemetry records request, provider, cache and prefetch metrics to
// Prometheus or CloudWatch. Both backends use the metric and dimension names
// in internal/types/telemetry.go.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"willitrain/internal/config"
)

// Backend names accepted by METRICS_BACKEND.
const (
	BackendPrometheus = "prometheus"
	BackendCloudWatch = "cloudwatch"
	BackendNone       = "none"
)

// Recorder is the union of the metric sinks the service components accept:
// core.MetricsCollector, external.CallRecorder, history.CacheMetrics,
// outlook.Metrics and scheduler.PrefetchMetrics.
type Recorder interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
	RecordProviderCall(provider, result string, duration time.Duration)
	RecordCacheResult(result string)
	RecordInsufficientData(mmdd string)
	RecordPrefetch(result string)
}

// Metrics is a configured backend.
type Metrics struct {
	Recorder Recorder
	// Handler serves the Prometheus exposition; nil for other backends.
	Handler http.Handler
	// Flush publishes buffered datums; a no-op for pull-based backends.
	Flush func(ctx context.Context) error
}

// New builds the backend named in cfg.MetricsBackend. cw is only used, and
// only required, for the CloudWatch backend.
func New(cfg config.ObservabilityConfig, cw CloudWatchClient, logger *slog.Logger) (*Metrics, error) {
	noFlush := func(context.Context) error { return nil }

	switch cfg.MetricsBackend {
	case BackendPrometheus, "":
		p := NewPrometheusMetrics(prometheus.NewRegistry())
		return &Metrics{Recorder: p, Handler: p.Handler(), Flush: noFlush}, nil
	case BackendCloudWatch:
		if cw == nil {
			return nil, fmt.Errorf("telemetry: cloudwatch backend requires a CloudWatch client")
		}
		c := NewCloudWatchMetrics(cw, cfg.MetricNamespace, nil, logger)
		return &Metrics{Recorder: c, Flush: c.Flush}, nil
	case BackendNone:
		return &Metrics{Recorder: Nop{}, Flush: noFlush}, nil
	default:
		return nil, fmt.Errorf("telemetry: unknown metrics backend %q", cfg.MetricsBackend)
	}
}

// Nop discards every metric.
type Nop struct{}

func (Nop) RecordRequest(string, string, string, time.Duration) {}
func (Nop) RecordProviderCall(string, string, time.Duration) {}
func (Nop) RecordCacheResult(string) {}
func (Nop) RecordInsufficientData(string) {}
func (Nop) RecordPrefetch(string) {}
