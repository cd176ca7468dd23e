package external

import (
	"context"

	stripe "github.com/stripe/stripe-go/v82"

	"formguard/internal/types"
)

// CaptchaVerifier checks a visitor's captcha token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) types.VerificationResult
}

// IdentityProvider resolves a session access token to the identity behind it.
type IdentityProvider interface {
	CurrentUser(ctx context.Context, accessToken string) (*types.Identity, error)
}

// WebhookVerifier validates and decodes a signed Stripe webhook delivery.
type WebhookVerifier interface {
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

// Summarizer produces a natural-language digest of a form's submissions.
type Summarizer interface {
	Summarize(ctx context.Context, formName string, submissions []*types.Submission) (string, error)
}

var (
	_ CaptchaVerifier  = (*TurnstileVerifier)(nil)
	_ IdentityProvider = (*StackAuthClient)(nil)
	_ WebhookVerifier  = (*StripeVerifier)(nil)
	_ Summarizer       = (*CompletionClient)(nil)
)
