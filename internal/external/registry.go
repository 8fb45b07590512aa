package external

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"willitrain/internal/config"
	"willitrain/internal/history"
	"willitrain/internal/types"
)

// ClientRegistry is the single place the binaries get their weather data
// clients from.
type ClientRegistry struct {
	// History is what the outlook service fetches from: the cache when a
	// bucket is configured, otherwise NASA POWER directly.
	History history.Provider
	// Cache is nil when no history bucket is configured.
	Cache *history.CachedProvider
	// Current is nil when FEATURE_CURRENT_CONDITIONS is off.
	Current CurrentConditionsProvider
}

// RegistryOption supplies dependencies that cannot come from config alone.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	s3           history.S3API
	recorder     CallRecorder
	cacheMetrics history.CacheMetrics
	clock        types.Clock
}

// WithHistoryCacheS3 provides the S3 client for the history cache. It is
// required when cfg.AWS.HistoryCacheBucket is set.
func WithHistoryCacheS3(api history.S3API) RegistryOption {
	return func(rc *registryConfig) { rc.s3 = api }
}

// WithProviderMetrics reports provider calls and cache results.
func WithProviderMetrics(recorder CallRecorder, cache history.CacheMetrics) RegistryOption {
	return func(rc *registryConfig) {
		rc.recorder = recorder
		rc.cacheMetrics = cache
	}
}

// WithClock overrides the clock used for fetch timestamps and cache expiry.
func WithClock(c types.Clock) RegistryOption {
	return func(rc *registryConfig) { rc.clock = c }
}

// NewClientRegistry builds the provider clients from cfg, each with its own
// http.Client timeout and circuit breaker.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger, opts ...RegistryOption) (*ClientRegistry, error) {
	if cfg == nil {
		return nil, errors.New("external: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	rc := &registryConfig{clock: types.RealClock{}}
	for _, opt := range opts {
		opt(rc)
	}

	var baseOpts []BaseClientOption
	if rc.recorder != nil {
		baseOpts = append(baseOpts, WithCallRecorder(rc.recorder))
	}

	reg := &ClientRegistry{}

	nasa := NewNASAPowerClient(&http.Client{Timeout: cfg.History.Timeout}, NASAPowerClientConfig{
		BaseURL: cfg.History.BaseURL,
		Logger:  logger.With("client", types.ProviderNASAPower),
		Clock:   rc.clock,
	}, baseOpts...)
	reg.History = nasa

	if bucket := cfg.AWS.HistoryCacheBucket; bucket != "" {
		if rc.s3 == nil {
			return nil, fmt.Errorf("external: history cache bucket %q configured without an S3 client", bucket)
		}
		cache, err := history.NewCachedProvider(history.CachedProviderConfig{
			S3:      rc.s3,
			Bucket:  bucket,
			Next:    nasa,
			TTL:     cfg.History.CacheTTL,
			Clock:   rc.clock,
			Metrics: rc.cacheMetrics,
			Logger:  logger.With("component", "history_cache"),
		})
		if err != nil {
			return nil, err
		}
		reg.Cache = cache
		reg.History = cache
	}

	if cfg.Current.Enabled {
		reg.Current = NewOpenMeteoClient(&http.Client{Timeout: cfg.Current.Timeout}, OpenMeteoClientConfig{
			BaseURL: cfg.Current.BaseURL,
			Logger:  logger.With("client", types.ProviderOpenMeteo),
		}, baseOpts...)
	}

	logger.Info("external clients initialized",
		"history_cache", reg.Cache != nil,
		"current_conditions", reg.Current != nil,
	)
	return reg, nil
}
