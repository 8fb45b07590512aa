package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"willitrain/internal/types"
)

// maxDatumsPerPut is the PutMetricData per-request limit.
const maxDatumsPerPut = 1000

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics buffers datums in memory and publishes them on Flush.
// Callers flush at the end of each Lambda invocation and on shutdown.
//
// Metrics emitted:
//   - APIRequestCount / APILatency: Dims {Endpoint, Method, Status}
//   - ProviderCall / ProviderLatency: Dims {Provider, Result}
//   - HistoryCacheResult: Dims {Result}
//   - InsufficientData: no dims
//   - PrefetchProcessed: Dims {Result}
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	clock     types.Clock
	logger    *slog.Logger

	mu     sync.Mutex
	buffer []cwtypes.MetricDatum
}

var _ Recorder = (*CloudWatchMetrics)(nil)

func NewCloudWatchMetrics(client CloudWatchClient, namespace string, clock types.Clock, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		clock:     clock,
		logger:    logger,
	}
}

func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, d time.Duration) {
	dims := dimensions(types.DimEndpoint, endpoint, types.DimMethod, method, types.DimStatus, status)
	m.add(
		m.datum(types.MetricAPIRequestCount, 1, cwtypes.StandardUnitCount, dims),
		m.datum(types.MetricAPILatency, float64(d.Milliseconds()), cwtypes.StandardUnitMilliseconds, dims),
	)
}

func (m *CloudWatchMetrics) RecordProviderCall(provider, result string, d time.Duration) {
	m.add(
		m.datum(types.MetricProviderCall, 1, cwtypes.StandardUnitCount,
			dimensions(types.DimProvider, provider, types.DimResult, result)),
		m.datum(types.MetricProviderLatency, float64(d.Milliseconds()), cwtypes.StandardUnitMilliseconds,
			dimensions(types.DimProvider, provider)),
	)
}

func (m *CloudWatchMetrics) RecordCacheResult(result string) {
	m.add(m.datum(types.MetricHistoryCacheResult, 1, cwtypes.StandardUnitCount,
		dimensions(types.DimResult, result)))
}

func (m *CloudWatchMetrics) RecordInsufficientData(string) {
	m.add(m.datum(types.MetricInsufficientData, 1, cwtypes.StandardUnitCount, nil))
}

func (m *CloudWatchMetrics) RecordPrefetch(result string) {
	m.add(m.datum(types.MetricPrefetchProcessed, 1, cwtypes.StandardUnitCount,
		dimensions(types.DimResult, result)))
}

// Flush publishes every buffered datum. Datums from a failed chunk are
// dropped and logged; metrics never block or fail a request.
func (m *CloudWatchMetrics) Flush(ctx context.Context) error {
	m.mu.Lock()
	pending := m.buffer
	m.buffer = nil
	m.mu.Unlock()

	var firstErr error
	for start := 0; start < len(pending); start += maxDatumsPerPut {
		end := min(start+maxDatumsPerPut, len(pending))
		_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(m.namespace),
			MetricData: pending[start:end],
		})
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to publish metrics",
				"error", err.Error(),
				"datums", end-start,
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("telemetry: put metric data: %w", err)
			}
		}
	}
	return firstErr
}

// Pending returns the number of buffered datums.
func (m *CloudWatchMetrics) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffer)
}

func (m *CloudWatchMetrics) add(datums ...cwtypes.MetricDatum) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(m.buffer, datums...)
}

func (m *CloudWatchMetrics) datum(name string, value float64, unit cwtypes.StandardUnit, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(m.clock.Now()),
		Dimensions: dims,
	}
}

// dimensions builds Dimension pairs from alternating name, value arguments.
func dimensions(kv ...string) []cwtypes.Dimension {
	dims := make([]cwtypes.Dimension, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		dims = append(dims, cwtypes.Dimension{
			Name:  aws.String(kv[i]),
			Value: aws.String(kv[i+1]),
		})
	}
	return dims
}
