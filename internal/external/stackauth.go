package external

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"formguard/internal/types"
)

const stackAuthAPIBase = "https://api.stack-auth.com"

// StackAuthConfig configures the Stack Auth identity client.
type StackAuthConfig struct {
	ProjectID       string
	SecretServerKey types.SecretString
	BaseURL         string // Override for testing; defaults to stackAuthAPIBase
	Logger          *slog.Logger
}

// StackAuthClient resolves session access tokens to identities through the
// Stack Auth server API.
type StackAuthClient struct {
	base      *BaseClient
	projectID string
	serverKey types.SecretString
	baseURL   string
	logger    *slog.Logger
}

// NewStackAuthClient creates a StackAuthClient. The http client timeout bounds
// every identity lookup.
func NewStackAuthClient(httpClient *http.Client, cfg StackAuthConfig) *StackAuthClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(
		httpClient,
		"stack-auth",
		RetryPolicy{MaxRetries: 1, MinWait: 200 * time.Millisecond, MaxWait: 2 * time.Second},
		"FormGuard/1.0",
		WithLogger(logger),
	)
	return NewStackAuthClientWithBase(base, cfg)
}

// NewStackAuthClientWithBase creates a StackAuthClient around a pre-built BaseClient.
func NewStackAuthClientWithBase(base *BaseClient, cfg StackAuthConfig) *StackAuthClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stackAuthAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StackAuthClient{
		base:      base,
		projectID: cfg.ProjectID,
		serverKey: cfg.SecretServerKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

type stackAuthUser struct {
	ID           string  `json:"id"`
	PrimaryEmail *string `json:"primary_email"`
	DisplayName  *string `json:"display_name"`
}

// CurrentUser returns the identity that owns accessToken. A rejected token
// yields auth_token_invalid; transport failures yield upstream_identity_unavailable.
func (c *StackAuthClient) CurrentUser(ctx context.Context, accessToken string) (*types.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/users/me", nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create identity request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Stack-Access-Type", "server")
	req.Header.Set("X-Stack-Project-Id", c.projectID)
	req.Header.Set("X-Stack-Secret-Server-Key", c.serverKey.Unmask())
	req.Header.Set("X-Stack-Access-Token", accessToken)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity, "identity provider unavailable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session token rejected", nil)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.WarnContext(ctx, "unexpected identity provider response",
			"status", resp.StatusCode,
			"body", string(body),
		)
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity, "identity provider returned an unexpected status", nil)
	}

	var user stackAuthUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity, "failed to decode identity response", err)
	}
	if user.ID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "identity response carried no user id", nil)
	}

	identity := &types.Identity{ID: user.ID}
	if user.PrimaryEmail != nil {
		identity.Email = *user.PrimaryEmail
	}
	if user.DisplayName != nil {
		identity.DisplayName = *user.DisplayName
	}
	return identity, nil
}
