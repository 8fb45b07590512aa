package config

import "context"

// SecretProvider resolves secret paths to plaintext. SSMProvider serves
// deployed environments; EnvVarProvider serves local runs and tests.
type SecretProvider interface {
	// GetParametersBatch returns path -> value for every key it could
	// resolve. Missing keys are omitted rather than reported as errors.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
