package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig. Type classifies the failure.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix marks pointer variables: DATABASE_URL_SSM_PARAM holds the SSM
// path whose value becomes DATABASE_URL.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv skips SSM resolution entirely.
const localEnv = "local"

const ssmResolveTimeout = 30 * time.Second

// loaderDeps lets tests drive the loader without touching the process env.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig loads, resolves and validates the configuration:
//  1. pins time.Local to UTC
//  2. loads .env if present (never overrides the real environment)
//  3. resolves _SSM_PARAM pointers through provider unless APP_ENV=local
//  4. populates Config from envconfig tags
//  5. validates struct tags and cross-field rules
//
// provider may be nil in local mode or when no _SSM_PARAM variables are set.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	_ = godotenv.Load()

	appEnv, ok := deps.lookupEnv("APP_ENV")
	if !ok || appEnv == "" {
		return nil, &ConfigError{
			Type:    ErrMissingEnv,
			Message: "APP_ENV is not set",
		}
	}

	if appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	// Fixed-width YYYYMMDD strings compare correctly as text.
	if cfg.History.End <= cfg.History.Start {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("HISTORY_END (%s) must be after HISTORY_START (%s)", cfg.History.End, cfg.History.Start),
		}
	}

	return &cfg, nil
}

// ResolveSecrets runs only the SSM resolution step. Worker entry points call
// it before building their own config so that SSM-backed values are visible
// through os.Getenv. It is a no-op in local mode.
func ResolveSecrets(provider SecretProvider) error {
	if appEnv, _ := os.LookupEnv("APP_ENV"); appEnv == localEnv {
		return nil
	}
	return resolveSSMParams(provider, defaultDeps())
}

type ssmBinding struct {
	target string
	path   string
}

// resolveSSMParams fetches every *_SSM_PARAM pointer whose target variable is
// not already set and exports the results. Direct env values always win.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	var bindings []ssmBinding
	byPath := make(map[string]string)

	for _, entry := range deps.environ() {
		key, value, found := strings.Cut(entry, "=")
		if !found || !strings.HasSuffix(key, ssmParamSuffix) || value == "" {
			continue
		}

		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}

		bindings = append(bindings, ssmBinding{target: target, path: value})
		byPath[value] = target
	}

	if len(bindings) == 0 {
		return nil
	}

	if provider == nil {
		targets := make([]string, 0, len(bindings))
		for _, b := range bindings {
			targets = append(targets, b.target)
		}
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targets, ", ")),
		}
	}

	paths := make([]string, 0, len(bindings))
	for _, b := range bindings {
		paths = append(paths, b.path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmResolveTimeout)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	for path, value := range resolved {
		target, ok := byPath[path]
		if !ok {
			continue
		}
		if err := deps.setEnv(target, value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", target),
				Err:     err,
			}
		}
	}

	var missing []string
	for _, b := range bindings {
		if _, ok := resolved[b.path]; !ok {
			missing = append(missing, b.target)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}

	return nil
}
