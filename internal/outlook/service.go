// Package outlook orchestrates one outlook evaluation: resolve the target
// day, fetch the multi-year history (and live conditions in parallel), then
// run the climate engine over the matched sample.
package outlook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"willitrain/internal/climate"
	"willitrain/internal/external"
	"willitrain/internal/history"
	"willitrain/internal/types"
)

// WarningCurrentUnavailable is attached to results whose live conditions
// could not be fetched.
const WarningCurrentUnavailable = "current conditions unavailable"

// TimezoneResolver picks the local calendar day for a coordinate.
type TimezoneResolver interface {
	Today(lat, lon float64) (date string, zone string)
	Timezone(lat, lon float64) (string, error)
}

// Metrics receives engine-level outcomes.
type Metrics interface {
	RecordInsufficientData(mmdd string)
}

// Request identifies the location and day to evaluate.
type Request struct {
	Lat  float64
	Lon  float64
	Date string // YYYY-MM-DD; empty means today at the location
	Name string // optional display name echoed back
}

// Result is one evaluated outlook.
type Result struct {
	Location    types.Location                   `json:"location"`
	Date        string                           `json:"date"`
	Outlook     climate.Outlook                  `json:"outlook"`
	Activities  []climate.ActivityRecommendation `json:"activities"`
	Gear        []climate.ClothingItem           `json:"gear"`
	Summary     string                           `json:"summary"`
	Temperature climate.Band                     `json:"temperature_band"`
	Current     *types.CurrentConditions         `json:"current,omitempty"`
	Source      history.Meta                     `json:"source"`

	// Sample is kept for the CSV export.
	Sample   climate.Sample `json:"-"`
	Warnings []string       `json:"-"`
}

// Config configures the history window.
type Config struct {
	HistoryStart string
	HistoryEnd   string
}

// Service evaluates outlooks. Current and Metrics may be nil.
type Service struct {
	history  history.Provider
	current  external.CurrentConditionsProvider
	timezone TimezoneResolver
	metrics  Metrics
	cfg      Config
	logger   *slog.Logger
}

func NewService(
	hist history.Provider,
	current external.CurrentConditionsProvider,
	tz TimezoneResolver,
	metrics Metrics,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		history:  hist,
		current:  current,
		timezone: tz,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

// Evaluate runs the full pipeline for req. Engine failures are translated to
// AppErrors:
//   - no matching observations: insufficient_data (422)
//   - provider failures: passed through (upstream_*, 502)
//
// A live-conditions failure only adds WarningCurrentUnavailable.
func (s *Service) Evaluate(ctx context.Context, req Request) (*Result, error) {
	if !types.ValidCoordinates(req.Lat, req.Lon) {
		return nil, coordinateError(req.Lat, req.Lon)
	}
	logger := types.LoggerFromContext(ctx, s.logger)

	date, zone := s.resolveDate(req)
	target, err := time.Parse(types.DateLayout, date)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidDate,
			fmt.Sprintf("date must be YYYY-MM-DD, got %q", req.Date), err)
	}

	var (
		hist    *history.Response
		current *types.CurrentConditions
		result  = &Result{Date: date}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := s.history.Fetch(gctx, history.Query{
			Lat:   req.Lat,
			Lon:   req.Lon,
			Start: s.cfg.HistoryStart,
			End:   s.cfg.HistoryEnd,
		})
		if err != nil {
			return err
		}
		hist = resp
		return nil
	})
	if s.current != nil {
		g.Go(func() error {
			cur, err := s.current.Current(gctx, req.Lat, req.Lon)
			if err != nil {
				if gctx.Err() == nil {
					logger.WarnContext(ctx, "current conditions unavailable", "error", err)
				}
				result.Warnings = append(result.Warnings, WarningCurrentUnavailable)
				return nil
			}
			current = cur
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sample, err := climate.Extract(hist.Series, target)
	if len(sample.Skipped) > 0 {
		logger.WarnContext(ctx, "skipped malformed series keys",
			"count", len(sample.Skipped),
			"first", sample.Skipped[0].Error(),
		)
	}
	if err != nil {
		return nil, s.engineError(ctx, target, err)
	}

	o, err := climate.Classify(sample)
	if err != nil {
		return nil, s.engineError(ctx, target, err)
	}

	if zone == "" && current != nil {
		zone = current.Timezone
	}
	result.Location = types.Location{Lat: req.Lat, Lon: req.Lon, DisplayName: req.Name, Timezone: zone}
	result.Outlook = o
	result.Activities = climate.Plan(o)
	result.Gear = climate.RecommendGear(o)
	result.Summary = climate.Summarize(o)
	result.Temperature = climate.TemperatureBand(o.Climate.MeanF)
	result.Current = current
	result.Source = hist.Meta
	result.Sample = sample

	logger.DebugContext(ctx, "outlook evaluated",
		"date", date,
		"years", o.Climate.Years,
		"rain", o.Probability(climate.ConditionRain),
		"snow", o.Probability(climate.ConditionSnow),
		"wind", o.Probability(climate.ConditionWind),
	)
	return result, nil
}

// Current returns live conditions at lat/lon, with the location's timezone
// filled in when the provider omits it.
func (s *Service) Current(ctx context.Context, lat, lon float64) (*types.CurrentConditions, error) {
	if !types.ValidCoordinates(lat, lon) {
		return nil, coordinateError(lat, lon)
	}
	if s.current == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamCurrent, "current conditions are disabled", nil)
	}

	cur, err := s.current.Current(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	if cur.Timezone == "" && s.timezone != nil {
		if zone, tzErr := s.timezone.Timezone(lat, lon); tzErr == nil {
			cur.Timezone = zone
		}
	}
	return cur, nil
}

func (s *Service) resolveDate(req Request) (date, zone string) {
	if s.timezone == nil {
		if req.Date == "" {
			return time.Now().UTC().Format(types.DateLayout), ""
		}
		return req.Date, ""
	}

	if req.Date == "" {
		return s.timezone.Today(req.Lat, req.Lon)
	}
	zone, _ = s.timezone.Timezone(req.Lat, req.Lon)
	return req.Date, zone
}

func (s *Service) engineError(ctx context.Context, target time.Time, err error) error {
	mmdd := target.Format("0102")
	switch {
	case errors.Is(err, climate.ErrInsufficientData):
		if s.metrics != nil {
			s.metrics.RecordInsufficientData(mmdd)
		}
		return types.NewAppErrorWithDetails(types.ErrCodeInsufficientData,
			"not enough historical observations for this date", err,
			map[string]any{"mmdd": mmdd},
		)
	case errors.Is(err, climate.ErrInvalidTarget):
		return types.NewAppError(types.ErrCodeValidationInvalidDate, "date has no month/day in the calendar", err)
	default:
		types.LoggerFromContext(ctx, s.logger).ErrorContext(ctx, "outlook engine failed", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to evaluate outlook", err)
	}
}

func coordinateError(lat, lon float64) error {
	if lat < types.MinLat || lat > types.MaxLat {
		return types.NewAppError(types.ErrCodeValidationInvalidLat, "lat must be between -90 and 90", nil)
	}
	return types.NewAppError(types.ErrCodeValidationInvalidLon,
		fmt.Sprintf("lon must be between -180 and 180, got %g", lon), nil)
}
