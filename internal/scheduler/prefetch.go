package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"willitrain/internal/history"
	"willitrain/internal/types"
)

// DefaultConcurrency bounds in-flight provider fetches during a sweep.
const DefaultConcurrency = 4

// CacheWarmer is satisfied by *history.CachedProvider.
type CacheWarmer interface {
	Warm(ctx context.Context, q history.Query) error
	Refresh(ctx context.Context, q history.Query) error
}

// SavedQueryLister returns saved queries newest first.
type SavedQueryLister interface {
	List(ctx context.Context, limit int) ([]*types.SavedQuery, error)
}

// PrefetchMetrics receives one outcome per processed location.
type PrefetchMetrics interface {
	RecordPrefetch(result string)
}

// PrefetchConfig configures PrefetchService.
type PrefetchConfig struct {
	HistoryStart string
	HistoryEnd   string
	Limit        int
	Concurrency  int
}

// PrefetchService warms the history cache ahead of user requests.
type PrefetchService struct {
	cache   CacheWarmer
	queries SavedQueryLister
	metrics PrefetchMetrics
	cfg     PrefetchConfig
	logger  *slog.Logger
}

func NewPrefetchService(
	cache CacheWarmer,
	queries SavedQueryLister,
	metrics PrefetchMetrics,
	cfg PrefetchConfig,
	logger *slog.Logger,
) *PrefetchService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PrefetchService{
		cache:   cache,
		queries: queries,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
	}
}

// Process warms the cache for one queued message. A fresh entry is left
// untouched.
func (s *PrefetchService) Process(ctx context.Context, msg types.PrefetchMessage) error {
	if !types.ValidCoordinates(msg.Lat, msg.Lon) {
		s.record(PrefetchSkipped)
		return fmt.Errorf("prefetch %s: invalid coordinates (%g, %g)", msg.QueryID, msg.Lat, msg.Lon)
	}

	logger := s.logger.With("query_id", msg.QueryID, "trace_id", msg.TraceID)
	if err := s.cache.Warm(ctx, s.query(msg.Lat, msg.Lon)); err != nil {
		s.record(PrefetchFailed)
		logger.ErrorContext(ctx, "prefetch failed", "error", err)
		return fmt.Errorf("prefetch %s: %w", msg.QueryID, err)
	}

	s.record(PrefetchWarmed)
	logger.InfoContext(ctx, "prefetch complete", "lat", msg.Lat, "lon", msg.Lon)
	return nil
}

// SweepResult summarizes one RefreshAll run.
type SweepResult struct {
	Warmed  int
	Skipped int
	Failed  int
}

// RefreshAll re-fetches history for every saved query whose date is on or
// after now's calendar day. Queries sharing a cache key are fetched once.
// Individual failures do not stop the sweep; they are joined into the
// returned error.
func (s *PrefetchService) RefreshAll(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult

	saved, err := s.queries.List(ctx, s.cfg.Limit)
	if err != nil {
		return res, fmt.Errorf("prefetch: list saved queries: %w", err)
	}

	today := now.UTC().Format(types.DateLayout)
	pending := make(map[string]history.Query)
	for _, sq := range saved {
		if sq.Date != "" && sq.Date < today {
			res.Skipped++
			s.record(PrefetchSkipped)
			continue
		}
		q := s.query(sq.Lat, sq.Lon)
		pending[q.Key()] = q
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for key, q := range pending {
		g.Go(func() error {
			err := s.cache.Refresh(gctx, q)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				errs = append(errs, fmt.Errorf("refresh %s: %w", key, err))
				s.record(PrefetchFailed)
				return nil
			}
			res.Warmed++
			s.record(PrefetchWarmed)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.InfoContext(ctx, "prefetch sweep complete",
		"saved_queries", len(saved),
		"locations", len(pending),
		"warmed", res.Warmed,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, errors.Join(errs...)
}

func (s *PrefetchService) query(lat, lon float64) history.Query {
	return history.Query{
		Lat:   lat,
		Lon:   lon,
		Start: s.cfg.HistoryStart,
		End:   s.cfg.HistoryEnd,
	}.WithDefaults()
}

func (s *PrefetchService) record(result string) {
	if s.metrics != nil {
		s.metrics.RecordPrefetch(result)
	}
}
