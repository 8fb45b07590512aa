package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMClient is the subset of the SSM API the bootstrap tool uses.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// ssmOperationTimeout bounds each SSM API call.
const ssmOperationTimeout = 15 * time.Second

// SSMManager writes WillItRain parameters under /{env}/willitrain/.
type SSMManager struct {
	client SSMClient
	env    string
	logger *slog.Logger
}

func NewSSMManager(client SSMClient, env string, logger *slog.Logger) *SSMManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSMManager{client: client, env: env, logger: logger}
}

// SSMPath returns /{env}/willitrain/{categoryAndKey}, e.g.
// "database/url" -> "/dev/willitrain/database/url".
func (m *SSMManager) SSMPath(categoryAndKey string) string {
	return fmt.Sprintf("/%s/willitrain/%s", m.env, categoryAndKey)
}

// ParameterExists probes path without decrypting it, so the check needs no
// kms:Decrypt permission.
func (m *SSMManager) ParameterExists(ctx context.Context, path string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := m.client.GetParameter(opCtx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(false),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking SSM parameter %q: %w", path, err)
	}
	return true, nil
}

// Put writes one parameter. SecureString values are never logged.
func (m *SSMManager) Put(ctx context.Context, p Parameter, overwrite bool) error {
	if p.Value == "" {
		return fmt.Errorf("SSM parameter value must not be empty for path %q", p.Path)
	}

	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := m.client.PutParameter(opCtx, &ssm.PutParameterInput{
		Name:      aws.String(p.Path),
		Value:     aws.String(p.Value),
		Type:      p.Type,
		Overwrite: aws.Bool(overwrite),
	})
	if err != nil {
		var exists *ssmtypes.ParameterAlreadyExists
		if errors.As(err, &exists) {
			return fmt.Errorf("SSM parameter %q already exists (use --overwrite to replace): %w", p.Path, err)
		}
		return fmt.Errorf("writing SSM parameter %q: %w", p.Path, err)
	}

	if p.Type == ssmtypes.ParameterTypeSecureString {
		m.logger.Info("SSM parameter written", "path", p.Path, "type", string(p.Type), "value_length", len(p.Value))
	} else {
		m.logger.Info("SSM parameter written", "path", p.Path, "type", string(p.Type), "value", p.Value)
	}
	return nil
}
