// Package main is the entry point for the prefetch worker.
//
// The worker keeps the S3 history cache warm so that outlook requests for
// saved queries rarely wait on NASA POWER. Inside Lambda it accepts two event
// shapes on one function:
//
//   - SQS batches of PrefetchMessage, sent by the API when a query is saved.
//     Failed messages are reported as batch item failures so SQS retries only
//     those.
//   - EventBridge SchedulePayload events that refresh every saved query.
//
// Outside Lambda it runs the refresh sweep on PREFETCH_SCHEDULE with gocron
// until SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"willitrain/internal/config"
	"willitrain/internal/db"
	"willitrain/internal/external"
	"willitrain/internal/queue"
	"willitrain/internal/scheduler"
	"willitrain/internal/telemetry"
	"willitrain/internal/types"
)

// MessageProcessor warms the cache for one queued message.
type MessageProcessor interface {
	Process(ctx context.Context, msg types.PrefetchMessage) error
}

// Handler dispatches Lambda invocations to the prefetch service.
type Handler struct {
	processor MessageProcessor
	sweeper   scheduler.Sweeper
	clock     types.Clock
	flush     func(context.Context) error
	logger    *slog.Logger
}

// Handle accepts either an SQS event or a SchedulePayload.
func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) (any, error) {
	if h.flush != nil {
		defer func() {
			if err := h.flush(ctx); err != nil {
				h.logger.WarnContext(ctx, "metrics flush failed", "error", err)
			}
		}()
	}

	var probe struct {
		Records []json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("unrecognized event: %w", err)
	}

	if len(probe.Records) > 0 {
		var ev events.SQSEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("invalid SQS event: %w", err)
		}
		return h.HandleSQS(ctx, ev), nil
	}

	var payload scheduler.SchedulePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid schedule payload: %w", err)
	}
	res, err := h.HandleSchedule(ctx, payload)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// HandleSQS processes each record independently. Undecodable bodies are
// acknowledged and dropped; processing failures are returned for retry.
func (h *Handler) HandleSQS(ctx context.Context, ev events.SQSEvent) events.SQSEventResponse {
	resp := events.SQSEventResponse{}

	for _, record := range ev.Records {
		logger := h.logger.With("message_id", record.MessageId)

		msg, err := queue.DecodePrefetchMessage(record.Body)
		if err != nil {
			logger.ErrorContext(ctx, "dropping malformed prefetch message", "error", err)
			continue
		}

		if err := h.processor.Process(ctx, msg); err != nil {
			logger.WarnContext(ctx, "prefetch failed, returning message to queue", "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	h.logger.InfoContext(ctx, "prefetch batch complete",
		"records", len(ev.Records),
		"failures", len(resp.BatchItemFailures),
	)
	return resp
}

// HandleSchedule runs the refresh sweep. Partial failures are logged; the
// invocation fails only when nothing could be refreshed.
func (h *Handler) HandleSchedule(ctx context.Context, p scheduler.SchedulePayload) (scheduler.SweepResult, error) {
	if p.Task != scheduler.TaskRefreshSavedQueries {
		return scheduler.SweepResult{}, fmt.Errorf("unknown task %q", p.Task)
	}

	now := h.clock.Now()
	if p.ReferenceTime != nil {
		now = *p.ReferenceTime
	}

	res, err := h.sweeper.RefreshAll(ctx, now)
	if err != nil {
		if res.Warmed == 0 {
			return res, err
		}
		h.logger.WarnContext(ctx, "refresh sweep had failures", "failed", res.Failed, "error", err)
	}
	return res, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("prefetch worker initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	ctx := context.Background()

	if cfg.AWS.HistoryCacheBucket == "" {
		return errors.New("HISTORY_CACHE_BUCKET is required for the prefetch worker")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	endpoint := cfg.AWS.EndpointURL

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	var cw telemetry.CloudWatchClient
	if cfg.Observability.MetricsBackend == telemetry.BackendCloudWatch {
		cw = cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
	}
	metrics, err := telemetry.New(cfg.Observability, cw, logger)
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	registry, err := external.NewClientRegistry(cfg, logger,
		external.WithHistoryCacheS3(s3Client),
		external.WithProviderMetrics(metrics.Recorder, metrics.Recorder),
	)
	if err != nil {
		return fmt.Errorf("building weather clients: %w", err)
	}

	queries, closeStore, err := newSavedQueryLister(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := scheduler.NewPrefetchService(registry.Cache, queries, metrics.Recorder, scheduler.PrefetchConfig{
		HistoryStart: cfg.History.Start,
		HistoryEnd:   cfg.History.End,
		Limit:        cfg.Prefetch.Limit,
	}, logger.With("component", "prefetch"))

	if isLambdaEnvironment() {
		h := &Handler{
			processor: svc,
			sweeper:   svc,
			clock:     types.RealClock{},
			flush:     metrics.Flush,
			logger:    logger,
		}
		lambda.Start(h.Handle)
		return nil
	}

	return runScheduler(svc, cfg.Prefetch.Schedule, metrics.Flush, logger)
}

// runScheduler runs one sweep immediately, then on schedule until a signal.
func runScheduler(sweeper scheduler.Sweeper, schedule string, flush func(context.Context) error, logger *slog.Logger) error {
	runner := scheduler.NewCronRunner(sweeper, schedule, types.RealClock{}, logger)
	if err := runner.Start(); err != nil {
		return err
	}
	runner.RunOnce()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info("shutdown signal received", "signal", sig.String())

	runner.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return flush(ctx)
}

// newSavedQueryLister opens the saved query database. Without one, the
// worker can still serve SQS messages but sweeps find nothing to refresh.
func newSavedQueryLister(ctx context.Context, cfg *config.Config, logger *slog.Logger) (scheduler.SavedQueryLister, func(), error) {
	if !cfg.Database.Enabled() {
		logger.Warn("DATABASE_URL not set; scheduled sweeps will find no saved queries")
		return db.NewMemoryStore(types.RealClock{}), func() {}, nil
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db.NewSavedQueryRepository(pool), pool.Close, nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// newLogger creates a structured JSON logger for the given LOG_LEVEL value.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
