// Package main implements the job-runner CLI for running prefetch jobs
// directly, bypassing the Lambda and SQS plumbing.
//
// It is intended for local development, manual cache backfills, and
// operational debugging.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=refresh_saved_queries
//	go run ./cmd/tools/job-runner --task=refresh_saved_queries --reference-time=2026-01-15T02:00:00Z
//	go run ./cmd/tools/job-runner --task=warm_location --lat=30.27 --lon=-97.74
//	go run ./cmd/tools/job-runner --dry-run --task=warm_location --lat=30.27 --lon=-97.74
//	go run ./cmd/tools/job-runner --list
//
// Configuration comes from the environment (or a .env file via godotenv), the
// same as the prefetch worker. HISTORY_CACHE_BUCKET is required. In --dry-run
// mode the tool prints the JSON event the worker would receive and exits.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"willitrain/internal/config"
	"willitrain/internal/db"
	"willitrain/internal/external"
	"willitrain/internal/scheduler"
	"willitrain/internal/telemetry"
	"willitrain/internal/types"
)

// TaskWarmLocation warms one location, as if a query had just been saved
// there. It has no EventBridge equivalent; the worker receives it over SQS.
const TaskWarmLocation scheduler.TaskType = "warm_location"

var validTasks = map[scheduler.TaskType]string{
	scheduler.TaskRefreshSavedQueries: "Refresh cached history for every saved query",
	TaskWarmLocation:                  "Warm cached history for --lat/--lon",
}

// jobRequest is a parsed invocation. Exactly one of Schedule and Message is
// set.
type jobRequest struct {
	Schedule *scheduler.SchedulePayload
	Message  *types.PrefetchMessage
}

type requestFlags struct {
	task    string
	refTime string
	lat     float64
	lon     float64
	date    string
	hasLat  bool
	hasLon  bool
}

// parseRequest validates the flags and builds the worker event for them.
func parseRequest(f requestFlags, now time.Time) (jobRequest, error) {
	task := scheduler.TaskType(f.task)
	if _, ok := validTasks[task]; !ok {
		return jobRequest{}, fmt.Errorf("unknown task type %q", f.task)
	}

	switch task {
	case scheduler.TaskRefreshSavedQueries:
		if f.hasLat || f.hasLon {
			return jobRequest{}, errors.New("--lat/--lon only apply to warm_location")
		}
		p := &scheduler.SchedulePayload{Task: task}
		if f.refTime != "" {
			t, err := time.Parse(time.RFC3339, f.refTime)
			if err != nil {
				return jobRequest{}, fmt.Errorf("invalid --reference-time %q (expected RFC3339, e.g. 2026-01-15T02:00:00Z): %w", f.refTime, err)
			}
			p.ReferenceTime = &t
		}
		return jobRequest{Schedule: p}, nil

	default:
		if !f.hasLat || !f.hasLon {
			return jobRequest{}, errors.New("warm_location requires --lat and --lon")
		}
		if !types.ValidCoordinates(f.lat, f.lon) {
			return jobRequest{}, fmt.Errorf("coordinates out of range: (%g, %g)", f.lat, f.lon)
		}
		if f.date != "" {
			if _, err := time.Parse(types.DateLayout, f.date); err != nil {
				return jobRequest{}, fmt.Errorf("invalid --date %q (expected YYYY-MM-DD): %w", f.date, err)
			}
		}
		return jobRequest{Message: &types.PrefetchMessage{
			QueryID:    "job-runner-" + uuid.New().String(),
			Lat:        f.lat,
			Lon:        f.lon,
			Date:       f.date,
			EnqueuedAt: now.UTC(),
		}}, nil
	}
}

// payload returns the event the worker would receive for req.
func (r jobRequest) payload() any {
	if r.Schedule != nil {
		return r.Schedule
	}
	return r.Message
}

// prefetchRunner is the subset of *scheduler.PrefetchService the tool drives.
type prefetchRunner interface {
	Process(ctx context.Context, msg types.PrefetchMessage) error
	RefreshAll(ctx context.Context, now time.Time) (scheduler.SweepResult, error)
}

// execute runs req against svc and summarizes the outcome.
func execute(ctx context.Context, req jobRequest, svc prefetchRunner, clock types.Clock) (string, error) {
	if req.Message != nil {
		if err := svc.Process(ctx, *req.Message); err != nil {
			return "", err
		}
		return fmt.Sprintf("warmed %.4f,%.4f", req.Message.Lat, req.Message.Lon), nil
	}

	now := clock.Now()
	if req.Schedule.ReferenceTime != nil {
		now = *req.Schedule.ReferenceTime
	}
	res, err := svc.RefreshAll(ctx, now)
	return fmt.Sprintf("warmed=%d skipped=%d failed=%d", res.Warmed, res.Skipped, res.Failed), err
}

func main() {
	taskFlag := flag.String("task", "", "Task type to execute (e.g., refresh_saved_queries)")
	refTimeFlag := flag.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-01-15T02:00:00Z)")
	latFlag := flag.Float64("lat", 0, "Latitude for warm_location")
	lonFlag := flag.Float64("lon", 0, "Longitude for warm_location")
	dateFlag := flag.String("date", "", "Query date for warm_location (YYYY-MM-DD), informational")
	listFlag := flag.Bool("list", false, "List all available task types and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Print the JSON payload without executing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Run prefetch jobs directly, bypassing Lambda.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nUse --list to see all available task types.\n")
	}
	flag.Parse()

	if *listFlag {
		printAvailableTasks(os.Stderr)
		return
	}
	if *taskFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --task is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	req, err := parseRequest(requestFlags{
		task:    *taskFlag,
		refTime: *refTimeFlag,
		lat:     *latFlag,
		lon:     *lonFlag,
		date:    *dateFlag,
		hasLat:  set["lat"],
		hasLon:  set["lon"],
	}, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		printAvailableTasks(os.Stderr)
		os.Exit(1)
	}

	if *dryRunFlag {
		if err := printPayload(os.Stdout, req); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	dotenvErr := godotenv.Load()

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	if dotenvErr != nil {
		logger.Debug("no .env file loaded (this is fine in production)", "error", dotenvErr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closeFn, err := buildService(ctx, cfg, logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	result, err := execute(ctx, req, svc, types.RealClock{})
	if err != nil {
		logger.Error("task execution failed", "task", *taskFlag, "result", result, "error", err)
		closeFn()
		os.Exit(1)
	}
	logger.Info("task execution succeeded", "task", *taskFlag, "result", result)
}

// buildService mirrors the prefetch worker's cold-start wiring, minus
// metrics.
func buildService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*scheduler.PrefetchService, func(), error) {
	if cfg.AWS.HistoryCacheBucket == "" {
		return nil, nil, errors.New("HISTORY_CACHE_BUCKET is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("loading AWS config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			o.UsePathStyle = true
		}
	})

	registry, err := external.NewClientRegistry(cfg, logger, external.WithHistoryCacheS3(s3Client))
	if err != nil {
		return nil, nil, fmt.Errorf("building weather clients: %w", err)
	}

	var queries scheduler.SavedQueryLister = db.NewMemoryStore(types.RealClock{})
	closeFn := func() {}
	if cfg.Database.Enabled() {
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		queries = db.NewSavedQueryRepository(pool)
		closeFn = pool.Close
	} else {
		logger.Warn("DATABASE_URL not set; refresh_saved_queries will find nothing")
	}

	svc := scheduler.NewPrefetchService(registry.Cache, queries, telemetry.Nop{}, scheduler.PrefetchConfig{
		HistoryStart: cfg.History.Start,
		HistoryEnd:   cfg.History.End,
		Limit:        cfg.Prefetch.Limit,
	}, logger)
	return svc, closeFn, nil
}

// printAvailableTasks writes the task table sorted by name.
func printAvailableTasks(w io.Writer) {
	fmt.Fprintf(w, "Available task types:\n\n")

	tasks := make([]scheduler.TaskType, 0, len(validTasks))
	for t := range validTasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i] < tasks[j] })

	maxLen := 0
	for _, t := range tasks {
		maxLen = max(maxLen, len(t))
	}
	for _, t := range tasks {
		fmt.Fprintf(w, "  %-*s  %s\n", maxLen, string(t), validTasks[t])
	}
	fmt.Fprintln(w)
}

// printPayload writes the worker event as indented JSON.
func printPayload(w io.Writer, req jobRequest) error {
	data, err := json.MarshalIndent(req.payload(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
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
