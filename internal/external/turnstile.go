package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"formguard/internal/types"
)

const (
	turnstileVerifyURL      = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	turnstileDefaultTimeout = 5 * time.Second
)

// TurnstileConfig configures the Cloudflare Turnstile verifier.
type TurnstileConfig struct {
	Secret    types.SecretString
	VerifyURL string // Override for testing; defaults to turnstileVerifyURL
	Timeout   time.Duration
	Logger    *slog.Logger
}

// TurnstileVerifier checks captcha tokens against Cloudflare's siteverify API.
// Verify never returns an error: every non-pass outcome is reported as
// Success=false with a Kind describing why.
type TurnstileVerifier struct {
	base      *BaseClient
	secret    types.SecretString
	verifyURL string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewTurnstileVerifier creates a verifier with one retry on transient failures.
func NewTurnstileVerifier(httpClient *http.Client, cfg TurnstileConfig) *TurnstileVerifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(
		httpClient,
		"turnstile",
		RetryPolicy{MaxRetries: 1, MinWait: 100 * time.Millisecond, MaxWait: time.Second},
		"FormGuard/1.0",
		WithLogger(logger),
	)
	return NewTurnstileVerifierWithBase(base, cfg)
}

// NewTurnstileVerifierWithBase creates a verifier around a pre-built BaseClient.
func NewTurnstileVerifierWithBase(base *BaseClient, cfg TurnstileConfig) *TurnstileVerifier {
	verifyURL := cfg.VerifyURL
	if verifyURL == "" {
		verifyURL = turnstileVerifyURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = turnstileDefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TurnstileVerifier{
		base:      base,
		secret:    cfg.Secret,
		verifyURL: verifyURL,
		timeout:   timeout,
		logger:    logger,
	}
}

type turnstileResponse struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	Action      string   `json:"action"`
}

// Verify submits token (and the visitor IP when known) for verification.
func (v *TurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) types.VerificationResult {
	if v.secret.IsZero() {
		return types.VerificationResult{
			ErrorCodes: []string{"missing-input-secret"},
			Kind:       types.VerificationKindConfiguration,
			Message:    "turnstile secret is not configured",
		}
	}
	if strings.TrimSpace(token) == "" {
		return types.VerificationResult{
			ErrorCodes: []string{"missing-input-response"},
			Kind:       types.VerificationKindRejected,
			Message:    "captcha token is missing",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", v.secret.Unmask())
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return networkFailure(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.base.Do(req)
	if err != nil {
		v.logger.WarnContext(ctx, "turnstile verification unavailable", "error", err)
		return networkFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return networkFailure(fmt.Errorf("siteverify returned %d", resp.StatusCode))
	}

	var body turnstileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return networkFailure(fmt.Errorf("decode siteverify response: %w", err))
	}

	result := types.VerificationResult{
		Success:    body.Success,
		ErrorCodes: body.ErrorCodes,
		Hostname:   body.Hostname,
	}
	if ts, err := time.Parse(time.RFC3339, body.ChallengeTS); err == nil {
		result.ChallengeTS = &ts
	}
	if !body.Success {
		result.Kind = types.VerificationKindRejected
		result.Message = "captcha challenge failed"
	}
	return result
}

func networkFailure(err error) types.VerificationResult {
	return types.VerificationResult{
		ErrorCodes: []string{"network-error"},
		Kind:       types.VerificationKindNetwork,
		Message:    err.Error(),
	}
}
