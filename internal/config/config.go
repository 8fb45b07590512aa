// Package config defines the process configuration for the WillItRain API and
// prefetch worker. Configuration is loaded once at startup (or Lambda cold
// start) and is read-only afterwards.
//
// Values are resolved in priority order:
//
//	OS environment -> .env file -> AWS SSM Parameter Store
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"willitrain/internal/types"
)

// SecretString is the redacted string type used for credentials.
type SecretString = types.SecretString

// Config is the top-level configuration. Components receive only the
// sub-struct they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"willitrain-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	History       HistoryConfig
	Current       CurrentConfig
	Observability ObservabilityConfig
	Prefetch      PrefetchConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s" validate:"gt=0"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds the saved-query database connection. An empty URL
// selects the in-memory store.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"omitempty,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// Enabled reports whether a database URL is configured.
func (d DatabaseConfig) Enabled() bool {
	return !d.URL.IsEmpty()
}

// AWSConfig holds AWS resource identifiers. Every resource is optional; the
// feature it backs is disabled when unset.
type AWSConfig struct {
	Region             string `envconfig:"AWS_REGION" default:"us-east-1"`
	HistoryCacheBucket string `envconfig:"HISTORY_CACHE_BUCKET"`
	PrefetchQueueURL   string `envconfig:"SQS_PREFETCH_QUEUE" validate:"omitempty,url"`

	// LocalStack support. Empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// HistoryConfig configures the NASA POWER historical provider and its cache.
type HistoryConfig struct {
	BaseURL  string        `envconfig:"NASA_POWER_BASE_URL" default:"https://power.larc.nasa.gov" validate:"required,url"`
	Start    string        `envconfig:"HISTORY_START" default:"20200101" validate:"len=8,numeric"`
	End      string        `envconfig:"HISTORY_END" default:"20250101" validate:"len=8,numeric"`
	Timeout  time.Duration `envconfig:"HISTORY_TIMEOUT" default:"20s" validate:"gt=0"`
	CacheTTL time.Duration `envconfig:"HISTORY_CACHE_TTL" default:"720h"`
}

// CurrentConfig configures the Open-Meteo current-conditions provider.
type CurrentConfig struct {
	BaseURL string        `envconfig:"OPEN_METEO_BASE_URL" default:"https://api.open-meteo.com" validate:"required,url"`
	Timeout time.Duration `envconfig:"CURRENT_TIMEOUT" default:"5s" validate:"gt=0"`
	Enabled bool          `envconfig:"FEATURE_CURRENT_CONDITIONS" default:"true"`
}

// ObservabilityConfig selects the metrics backend.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=prometheus cloudwatch none"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"WillItRain"`
}

// PrefetchConfig controls the cache-warming worker when run as a local
// scheduled process.
type PrefetchConfig struct {
	Schedule string `envconfig:"PREFETCH_SCHEDULE" default:"0 */6 * * *"`
	Limit    int    `envconfig:"PREFETCH_LIMIT" default:"100" validate:"min=1,max=1000"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
