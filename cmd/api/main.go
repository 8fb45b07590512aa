// Package main is the entry point for the WillItRain API server.
//
// It loads configuration, builds the weather clients, saved query store and
// metrics backend, mounts the v1 handlers on the core chassis and serves.
//
// Locally (or anywhere outside Lambda) it runs a standard HTTP server with
// graceful shutdown on SIGINT/SIGTERM. Inside Lambda it serves API Gateway
// HTTP API events through core.LambdaAdapter and flushes buffered metrics
// after every invocation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
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
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"willitrain/internal/api/handlers"
	"willitrain/internal/config"
	"willitrain/internal/core"
	"willitrain/internal/db"
	"willitrain/internal/external"
	"willitrain/internal/geo"
	"willitrain/internal/outlook"
	"willitrain/internal/queue"
	"willitrain/internal/telemetry"
	"willitrain/internal/types"
)

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
	logger.Info("willitrain API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	clients, err := newAWSClients(ctx, cfg)
	if err != nil {
		return err
	}

	app, err := buildApp(ctx, cfg, clients, logger)
	if err != nil {
		return err
	}

	if isLambdaEnvironment() {
		return runLambda(app, logger)
	}
	return runHTTPServer(app.server, cfg, logger)
}

// awsClients holds the SDK clients for the optional AWS-backed features. A
// nil field means the feature is not configured.
type awsClients struct {
	s3         *s3.Client
	sqs        *sqs.Client
	cloudwatch *cloudwatch.Client
}

// newAWSClients loads the SDK config only when a feature needs it, so a
// purely local setup runs without credentials. AWS_ENDPOINT_URL points every
// client at LocalStack.
func newAWSClients(ctx context.Context, cfg *config.Config) (awsClients, error) {
	var clients awsClients

	needS3 := cfg.AWS.HistoryCacheBucket != ""
	needSQS := cfg.AWS.PrefetchQueueURL != ""
	needCW := cfg.Observability.MetricsBackend == telemetry.BackendCloudWatch
	if !needS3 && !needSQS && !needCW {
		return clients, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return clients, fmt.Errorf("loading AWS config: %w", err)
	}

	endpoint := cfg.AWS.EndpointURL
	if needS3 {
		clients.s3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			}
		})
	}
	if needSQS {
		clients.sqs = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
	}
	if needCW {
		clients.cloudwatch = cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
	}
	return clients, nil
}

// app is the fully wired server plus the pieces main needs after MountRoutes.
type app struct {
	server  *core.Server
	metrics *telemetry.Metrics
}

// buildApp wires every dependency and mounts the routes.
func buildApp(ctx context.Context, cfg *config.Config, clients awsClients, logger *slog.Logger) (*app, error) {
	// Interface-typed so an unset client stays a true nil.
	var cw telemetry.CloudWatchClient
	if clients.cloudwatch != nil {
		cw = clients.cloudwatch
	}
	metrics, err := telemetry.New(cfg.Observability, cw, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = metrics.Recorder
	srv.MetricsHandler = metrics.Handler
	srv.OnShutdown(metrics.Flush)

	store, err := newSavedQueryStore(ctx, cfg, srv, logger)
	if err != nil {
		return nil, err
	}

	registryOpts := []external.RegistryOption{
		external.WithProviderMetrics(metrics.Recorder, metrics.Recorder),
	}
	if clients.s3 != nil {
		registryOpts = append(registryOpts, external.WithHistoryCacheS3(clients.s3))
	}
	registry, err := external.NewClientRegistry(cfg, logger, registryOpts...)
	if err != nil {
		return nil, fmt.Errorf("building weather clients: %w", err)
	}
	if registry.Cache != nil {
		srv.HealthProbes = append(srv.HealthProbes, registry.Cache)
	}

	tz, err := geo.NewDefaultTimezoneResolver()
	if err != nil {
		return nil, err
	}

	outlookSvc := outlook.NewService(
		registry.History,
		registry.Current,
		tz,
		metrics.Recorder,
		outlook.Config{HistoryStart: cfg.History.Start, HistoryEnd: cfg.History.End},
		logger.With("component", "outlook"),
	)

	var prefetch handlers.PrefetchEnqueuer
	if clients.sqs != nil {
		prefetch = queue.NewPrefetchQueue(clients.sqs, cfg.AWS.PrefetchQueueURL, types.RealClock{}, logger)
	} else {
		logger.Info("prefetch queue not configured; saved queries will not be prefetched")
	}

	outlookHandler := handlers.NewOutlookHandler(outlookSvc, srv.Validator, logger)
	savedQueryHandler := handlers.NewSavedQueryHandler(store, prefetch, srv.Validator, logger)
	conditionsHandler := handlers.NewConditionsHandler(outlookSvc, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		outlookHandler.RegisterRoutes,
		savedQueryHandler.RegisterRoutes,
		conditionsHandler.RegisterRoutes,
	)

	srv.MountRoutes()
	return &app{server: srv, metrics: metrics}, nil
}

// newSavedQueryStore returns the Postgres repository when DATABASE_URL is set
// and the in-memory store otherwise.
func newSavedQueryStore(ctx context.Context, cfg *config.Config, srv *core.Server, logger *slog.Logger) (handlers.SavedQueryStore, error) {
	if !cfg.Database.Enabled() {
		logger.Warn("DATABASE_URL not set; saved queries are kept in memory")
		return db.NewMemoryStore(types.RealClock{}), nil
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	srv.OnShutdown(func(context.Context) error {
		pool.Close()
		return nil
	})
	srv.HealthProbes = append(srv.HealthProbes, db.NewHealthProbe(pool))

	repo := db.NewSavedQueryRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runLambda serves API Gateway events. Lambda freezes the process between
// invocations, so metrics are flushed before each response returns.
func runLambda(a *app, logger *slog.Logger) error {
	adapter := core.LambdaAdapter(a.server.Handler())
	lambda.Start(func(ctx context.Context, ev events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		resp, err := adapter(ctx, ev)
		if ferr := a.metrics.Flush(ctx); ferr != nil {
			logger.WarnContext(ctx, "metrics flush failed", "error", ferr)
		}
		return resp, err
	})
	return nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured JSON logger for the given level.
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
