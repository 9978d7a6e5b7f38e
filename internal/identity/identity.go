// Package identity verifies bearer credentials and resolves them to a
// stable user id. The verification scheme is fixed at process start: an
// external identity provider when one is configured, otherwise a local
// pre-shared JWT secret, otherwise an open placeholder identity for
// development and tests.
package identity

import (
	"context"
	"errors"
)

var (
	// ErrMissingToken is returned when no credential was presented at all.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken covers every verification failure: bad signature,
	// expiry, provider rejection, provider unreachable, unknown user.
	// Callers must not learn why a credential failed.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Verifier resolves a bearer token to a user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type Config struct {
	ProviderBaseURL   string
	ProviderAppID     string
	ProviderAppSecret string
	JWTSecret         string
}

// FromConfig picks the verification scheme once, by configuration
// precedence: external provider, then local secret, then open mode.
// The choice never depends on request content.
func FromConfig(cfg Config) Verifier {
	if cfg.ProviderBaseURL != "" && cfg.ProviderAppID != "" && cfg.ProviderAppSecret != "" {
		return NewProviderVerifier(cfg.ProviderBaseURL, cfg.ProviderAppID, cfg.ProviderAppSecret)
	}
	if cfg.JWTSecret != "" {
		return NewSecretVerifier(cfg.JWTSecret)
	}
	return OpenVerifier{}
}

// OpenVerifier accepts any non-empty token and returns a fixed placeholder
// identity. Reachable only when neither a provider nor a secret is
// configured.
type OpenVerifier struct{}

const openUserID = "test_user_id"

func (OpenVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	return openUserID, nil
}
