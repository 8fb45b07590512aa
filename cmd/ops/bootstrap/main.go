// Package main implements the bootstrap CLI for a WillItRain deployment.
//
// It verifies the operator's AWS identity, checks that the saved query
// database is reachable, writes the deployment's settings to SSM Parameter
// Store, and prints the *_SSM_PARAM variables the API and prefetch worker
// need so that config.LoadConfig can resolve them at cold start.
//
// Usage:
//
//	WILLITRAIN_DATABASE_URL=postgres://... go run ./cmd/ops/bootstrap --env=dev \
//	    --history-bucket=willitrain-dev-history \
//	    --prefetch-queue=https://sqs.us-east-1.amazonaws.com/123456789012/willitrain-dev-prefetch
//	go run ./cmd/ops/bootstrap --env=prod --profile=willitrain-prod --dry-run
//
// When WILLITRAIN_DATABASE_URL is unset the URL is read from stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/jackc/pgx/v5"
)

var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

const databaseURLEnv = "WILLITRAIN_DATABASE_URL"

// Parameter is one SSM entry and the process variable it feeds.
type Parameter struct {
	Target string // env var read by config.LoadConfig, e.g. DATABASE_URL
	Path   string
	Value  string
	Type   ssmtypes.ParameterType
}

// Inputs are the operator-supplied values.
type Inputs struct {
	DatabaseURL   string
	HistoryBucket string
	PrefetchQueue string
}

// BuildPlan lists the parameters to write. Empty optional inputs are left
// out, which leaves the matching feature disabled.
func BuildPlan(m *SSMManager, in Inputs) []Parameter {
	var plan []Parameter
	if in.DatabaseURL != "" {
		plan = append(plan, Parameter{
			Target: "DATABASE_URL",
			Path:   m.SSMPath("database/url"),
			Value:  in.DatabaseURL,
			Type:   ssmtypes.ParameterTypeSecureString,
		})
	}
	if in.HistoryBucket != "" {
		plan = append(plan, Parameter{
			Target: "HISTORY_CACHE_BUCKET",
			Path:   m.SSMPath("history/cache_bucket"),
			Value:  in.HistoryBucket,
			Type:   ssmtypes.ParameterTypeString,
		})
	}
	if in.PrefetchQueue != "" {
		plan = append(plan, Parameter{
			Target: "SQS_PREFETCH_QUEUE",
			Path:   m.SSMPath("queue/prefetch_url"),
			Value:  in.PrefetchQueue,
			Type:   ssmtypes.ParameterTypeString,
		})
	}
	return plan
}

// ValidateInputs rejects values config.LoadConfig would later refuse.
func ValidateInputs(in Inputs) error {
	var errs []error
	if in.DatabaseURL != "" {
		u, err := url.Parse(in.DatabaseURL)
		if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") || u.Host == "" {
			errs = append(errs, errors.New("database URL must be a postgres:// URL with a host"))
		}
	}
	if in.PrefetchQueue != "" {
		u, err := url.Parse(in.PrefetchQueue)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, errors.New("prefetch queue must be an https SQS queue URL"))
		}
	}
	if b := in.HistoryBucket; b != "" && (len(b) < 3 || len(b) > 63 || strings.ToLower(b) != b) {
		errs = append(errs, fmt.Errorf("history bucket %q is not a valid S3 bucket name", b))
	}
	return errors.Join(errs...)
}

// DatabaseConnector checks a DSN. Abstracted for tests.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector opens, pings and closes one pgx connection.
type PgxConnector struct{}

var connector DatabaseConnector = PgxConnector{}

func (PgxConnector) Connect(ctx context.Context, dsn string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(ctx)
}

// Runner applies a plan.
type Runner struct {
	SSM       *SSMManager
	Overwrite bool
	DryRun    bool
	Out       io.Writer
	Logger    *slog.Logger
}

// Apply writes every parameter. Existing parameters are kept unless
// Overwrite is set. It returns the number written.
func (r *Runner) Apply(ctx context.Context, plan []Parameter) (int, error) {
	written := 0
	for _, p := range plan {
		if r.DryRun {
			fmt.Fprintf(r.Out, "would write %s (%s)\n", p.Path, p.Type)
			continue
		}

		exists, err := r.SSM.ParameterExists(ctx, p.Path)
		if err != nil {
			return written, err
		}
		if exists && !r.Overwrite {
			r.Logger.Info("SSM parameter exists, skipping", "path", p.Path)
			continue
		}
		if err := r.SSM.Put(ctx, p, exists); err != nil {
			return written, err
		}
		written++
	}

	fmt.Fprintln(r.Out)
	fmt.Fprintln(r.Out, "Add these to the API and prefetch worker environment:")
	for _, p := range plan {
		fmt.Fprintf(r.Out, "  %s_SSM_PARAM=%s\n", p.Target, p.Path)
	}
	return written, nil
}

func main() {
	envFlag := flag.String("env", "", "Target environment (dev/staging/prod) [required]")
	profileFlag := flag.String("profile", "", "AWS CLI profile (default: uses default credential chain)")
	regionFlag := flag.String("region", "us-east-1", "AWS region")
	bucketFlag := flag.String("history-bucket", "", "S3 bucket for the history cache")
	queueFlag := flag.String("prefetch-queue", "", "SQS queue URL for prefetch messages")
	overwriteFlag := flag.Bool("overwrite", false, "Replace parameters that already exist")
	dryRunFlag := flag.Bool("dry-run", false, "Print the plan without writing to SSM")
	skipDBFlag := flag.Bool("skip-db-check", false, "Do not connect to the database before writing its URL")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "WillItRain Bootstrap Tool\n\n")
		fmt.Fprintf(os.Stderr, "Writes deployment settings to AWS SSM Parameter Store.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if !validEnvironments[*envFlag] {
		fmt.Fprintf(os.Stderr, "error: --env must be dev, staging, or prod\n\n")
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	in := Inputs{
		DatabaseURL:   os.Getenv(databaseURLEnv),
		HistoryBucket: *bucketFlag,
		PrefetchQueue: *queueFlag,
	}
	if in.DatabaseURL == "" {
		fmt.Fprint(os.Stderr, "Database URL (empty to keep saved queries in memory): ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			logger.Error("failed to read database URL", "error", err)
			os.Exit(1)
		}
		in.DatabaseURL = strings.TrimSpace(line)
	}

	if err := ValidateInputs(in); err != nil {
		logger.Error("invalid input", "error", err)
		os.Exit(1)
	}
	if in.DatabaseURL != "" && !*skipDBFlag {
		if err := connector.Connect(ctx, in.DatabaseURL); err != nil {
			logger.Error("database is not reachable", "error", err)
			os.Exit(1)
		}
		logger.Info("database connection verified")
	}

	awsCfg, account, err := initializeSession(ctx, *profileFlag, *regionFlag, logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	if *envFlag == "prod" && !*dryRunFlag && !confirmProduction(account, *regionFlag) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		return
	}

	mgr := NewSSMManager(ssm.NewFromConfig(awsCfg), *envFlag, logger)
	runner := &Runner{
		SSM:       mgr,
		Overwrite: *overwriteFlag,
		DryRun:    *dryRunFlag,
		Out:       os.Stdout,
		Logger:    logger,
	}

	written, err := runner.Apply(ctx, BuildPlan(mgr, in))
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	logger.Info("bootstrap complete", "env", *envFlag, "account", account, "written", written)
}

// initializeSession loads the SDK config and confirms the caller identity
// with STS before anything is written.
func initializeSession(ctx context.Context, profile, region string, logger *slog.Logger) (aws.Config, string, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, "", fmt.Errorf("loading AWS config: %w", err)
	}

	identityCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(identityCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return aws.Config{}, "", fmt.Errorf("verifying AWS identity (profile %q, region %q): %w", profile, region, err)
	}

	account := aws.ToString(identity.Account)
	logger.Info("AWS identity verified",
		"account_id", account,
		"arn", aws.ToString(identity.Arn),
		"region", region,
	)
	return cfg, account, nil
}

// confirmProduction requires the operator to type "yes".
func confirmProduction(account, region string) bool {
	fmt.Fprintf(os.Stderr, "\nWARNING: writing PRODUCTION parameters to account %s (%s).\n", account, region)
	fmt.Fprint(os.Stderr, "Type 'yes' to continue: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}
