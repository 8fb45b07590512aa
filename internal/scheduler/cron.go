package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"willitrain/internal/types"
)

// sweepTimeout bounds one scheduled RefreshAll run.
const sweepTimeout = 10 * time.Minute

// Sweeper is satisfied by *PrefetchService.
type Sweeper interface {
	RefreshAll(ctx context.Context, now time.Time) (SweepResult, error)
}

// CronRunner drives RefreshAll on a cron schedule in local deployments,
// where there is no EventBridge rule.
type CronRunner struct {
	scheduler *gocron.Scheduler
	sweeper   Sweeper
	schedule  string
	clock     types.Clock
	logger    *slog.Logger
}

func NewCronRunner(sweeper Sweeper, schedule string, clock types.Clock, logger *slog.Logger) *CronRunner {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &CronRunner{
		scheduler: s,
		sweeper:   sweeper,
		schedule:  schedule,
		clock:     clock,
		logger:    logger,
	}
}

// Start registers the sweep and starts the scheduler in the background.
// A run is skipped if the previous one is still in progress.
func (r *CronRunner) Start() error {
	if _, err := r.scheduler.Cron(r.schedule).Tag(string(TaskRefreshSavedQueries)).Do(r.RunOnce); err != nil {
		return fmt.Errorf("scheduler: invalid prefetch schedule %q: %w", r.schedule, err)
	}
	r.scheduler.StartAsync()
	r.logger.Info("prefetch scheduler started", "schedule", r.schedule)
	return nil
}

// RunOnce executes a single sweep. Exposed for the job runner and tests.
func (r *CronRunner) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	start := r.clock.Now()
	res, err := r.sweeper.RefreshAll(ctx, start)
	if err != nil {
		r.logger.Error("prefetch sweep finished with errors",
			"failed", res.Failed,
			"error", err,
		)
		return
	}
	r.logger.Info("prefetch sweep finished",
		"warmed", res.Warmed,
		"skipped", res.Skipped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop stops the scheduler. In-flight sweeps run to completion.
func (r *CronRunner) Stop() {
	r.scheduler.Stop()
}
