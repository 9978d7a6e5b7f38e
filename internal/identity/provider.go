package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProviderVerifier validates tokens against an external identity provider.
// Verification is two calls: resolve the token to a durable user id, then
// confirm the account still exists. Every provider-side failure collapses
// to ErrInvalidToken so callers cannot distinguish expired from revoked
// from unreachable.
type ProviderVerifier struct {
	baseURL   string
	appID     string
	appSecret string
	client    *http.Client
}

func NewProviderVerifier(baseURL, appID, appSecret string) *ProviderVerifier {
	return &ProviderVerifier{
		baseURL:   strings.TrimRight(baseURL, "/"),
		appID:     appID,
		appSecret: appSecret,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type verifyTokenRequest struct {
	Token string `json:"token"`
}

type verifyTokenResponse struct {
	UserID string `json:"user_id"`
}

func (v *ProviderVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}

	userID, err := v.verifyToken(ctx, token)
	if err != nil {
		return "", ErrInvalidToken
	}
	if err := v.lookupUser(ctx, userID); err != nil {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (v *ProviderVerifier) verifyToken(ctx context.Context, token string) (string, error) {
	body, err := json.Marshal(verifyTokenRequest{Token: token})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/v1/tokens/verify", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(v.appID, v.appSecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "chathub")

	res, err := v.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("token verify http %d", res.StatusCode)
	}

	var tr verifyTokenResponse
	if err := json.Unmarshal(b, &tr); err != nil {
		return "", err
	}
	userID := strings.TrimSpace(tr.UserID)
	if userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (v *ProviderVerifier) lookupUser(ctx context.Context, userID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/v1/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(v.appID, v.appSecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "chathub")

	res, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("user lookup http %d", res.StatusCode)
	}
	return nil
}
