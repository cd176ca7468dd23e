package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"formguard/internal/types"
)

const (
	defaultTimeout = 5 * time.Second
	userAgent      = "FormGuard-Webhook/1.0"
)

// Forwarder delivers submissions to form webhook URLs. The client is
// expected to refuse private destinations (see security.Guard).
type Forwarder struct {
	client  *http.Client
	secret  types.SecretString
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewForwarder creates a Forwarder. An empty secret disables signing.
func NewForwarder(client *http.Client, secret types.SecretString, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		client:  client,
		secret:  secret,
		timeout: defaultTimeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Forward posts sub to form.Settings.WebhookURL. It is a no-op when the form
// has no webhook. Non-2xx responses are errors; nothing is retried.
func (f *Forwarder) Forward(ctx context.Context, form *types.Form, sub *types.Submission) error {
	target := form.Settings.WebhookURL
	if target == "" {
		return nil
	}

	platform := Detect(target)
	body, err := Format(platform, form, sub)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-FormGuard-Event", EventSubmissionCreated)
	req.Header.Set("X-FormGuard-Delivery", sub.ID)
	if !f.secret.IsZero() {
		req.Header.Set(SignatureHeader, Sign(body, f.secret.Unmask(), f.now()))
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	f.logger.InfoContext(ctx, "webhook response received",
		"form_id", form.ID,
		"submission_id", sub.ID,
		"platform", platform,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
