package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// TokenSource supplies the bearer token for API requests
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token
type StaticToken string

// Token implements TokenSource
func (s StaticToken) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("token is empty")
	}
	return string(s), nil
}

// SecretsManagerClient defines the interface for Secrets Manager operations
type SecretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerTokenSource reads the token from a secret. The value is
// cached until Invalidate is called.
type SecretsManagerTokenSource struct {
	client    SecretsManagerClient
	secretARN string

	mu    sync.Mutex
	token string
}

// NewSecretsManagerTokenSource creates a token source for a secret ARN
func NewSecretsManagerTokenSource(client SecretsManagerClient, secretARN string) *SecretsManagerTokenSource {
	return &SecretsManagerTokenSource{client: client, secretARN: secretARN}
}

// Token implements TokenSource
func (s *SecretsManagerTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return s.token, nil
	}

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretARN),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	if result.SecretString == nil || *result.SecretString == "" {
		return "", fmt.Errorf("secret value is empty")
	}

	s.token = *result.SecretString
	return s.token, nil
}

// Invalidate drops the cached token so the next call re-reads the secret
func (s *SecretsManagerTokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}
