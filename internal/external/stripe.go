package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"formguard/internal/types"
)

const stripeAPIBase = "https://api.stripe.com"

// Stripe event types the webhook handler acts on.
const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripeSubDeleted        = "customer.subscription.deleted"
)

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey types.SecretString
	PriceIDs  map[types.PlanName]string
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient talks to the Stripe REST API through BaseClient.
type StripeClient struct {
	base      *BaseClient
	secretKey types.SecretString
	priceIDs  map[types.PlanName]string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a StripeClient with two retries on transient failures.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{MaxRetries: 2, MinWait: 500 * time.Millisecond, MaxWait: 5 * time.Second},
		"FormGuard/1.0",
		WithLogger(logger),
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient around a pre-built BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prices := make(map[types.PlanName]string, len(cfg.PriceIDs))
	for k, v := range cfg.PriceIDs {
		prices[k] = v
	}
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		priceIDs:  prices,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

type stripeCustomer struct {
	ID string `json:"id"`
}

type stripeSearchResult struct {
	Data []stripeCustomer `json:"data"`
}

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// EnsureCustomer finds the Stripe customer tagged with accountID or creates one.
// Searching first keeps retries from producing duplicate customers.
func (s *StripeClient) EnsureCustomer(ctx context.Context, accountID, email string) (string, error) {
	query := url.Values{}
	query.Set("query", fmt.Sprintf("metadata['account_id']:'%s'", accountID))

	resp, err := s.do(ctx, http.MethodGet, "/v1/customers/search", query)
	if err != nil {
		return "", s.wrapError("EnsureCustomer", err)
	}
	var found stripeSearchResult
	if err := s.decode(resp, "EnsureCustomer", &found); err != nil {
		return "", err
	}
	if len(found.Data) > 0 {
		return found.Data[0].ID, nil
	}

	params := url.Values{}
	params.Set("metadata[account_id]", accountID)
	if email != "" {
		params.Set("email", email)
	}
	resp, err = s.do(ctx, http.MethodPost, "/v1/customers", params)
	if err != nil {
		return "", s.wrapError("EnsureCustomer", err)
	}
	var created stripeCustomer
	if err := s.decode(resp, "EnsureCustomer", &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// CreateCheckoutSession starts a subscription checkout. The account id is
// sent as client_reference_id and the plan in metadata so the webhook can
// apply the change.
func (s *StripeClient) CreateCheckoutSession(
	ctx context.Context,
	customerID, accountID string,
	plan types.PlanName,
	urls types.RedirectURLs,
) (string, string, error) {
	priceID, ok := s.priceIDs[plan]
	if !ok || priceID == "" {
		return "", "", types.NewAppError(
			types.ErrCodeValidationInvalidPlan,
			fmt.Sprintf("no price configured for plan %q", plan),
			nil,
		)
	}

	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("mode", "subscription")
	params.Set("client_reference_id", accountID)
	params.Set("success_url", urls.Success)
	params.Set("cancel_url", urls.Cancel)
	params.Set("metadata[account_id]", accountID)
	params.Set("metadata[plan]", string(plan))
	params.Set("line_items[0][price]", priceID)
	params.Set("line_items[0][quantity]", "1")

	resp, err := s.do(ctx, http.MethodPost, "/v1/checkout/sessions", params)
	if err != nil {
		return "", "", s.wrapError("CreateCheckoutSession", err)
	}
	var session stripeCheckoutSession
	if err := s.decode(resp, "CreateCheckoutSession", &session); err != nil {
		return "", "", err
	}
	return session.URL, session.ID, nil
}

func (s *StripeClient) do(ctx context.Context, method, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey.Unmask())
	req.Header.Set("Stripe-Version", stripe.APIVersion)
	return s.base.Do(req)
}

// decode closes resp and maps non-200 responses to AppErrors.
func (s *StripeClient) decode(resp *http.Response, operation string, dest any) error {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var stripeErr stripeErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&stripeErr)
		s.logger.Warn("stripe request rejected",
			"operation", operation,
			"status", resp.StatusCode,
			"stripe_code", stripeErr.Error.Code,
		)
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, stripeErr.Error.Message),
			nil,
			map[string]any{"stripe_code": stripeErr.Error.Code},
		)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe, operation+": failed to decode Stripe response", err)
	}
	return nil
}

func (s *StripeClient) wrapError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(types.ErrCodeUpstreamStripe, operation+": Stripe request failed", err)
}

// StripeVerifier checks webhook signatures with stripe-go's webhook package.
type StripeVerifier struct {
	secret types.SecretString
}

// NewStripeVerifier creates a verifier bound to a signing secret.
func NewStripeVerifier(secret types.SecretString) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

// ConstructEvent validates the Stripe-Signature header and timestamp
// tolerance, then decodes the event.
func (v *StripeVerifier) ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	if v.secret.IsZero() {
		return stripe.Event{}, types.NewAppError(types.ErrCodeConfigMissingSecret, "stripe webhook secret is not configured", nil)
	}
	return webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret.Unmask(), webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// CheckoutCompletion is the plan change carried by a completed checkout.
type CheckoutCompletion struct {
	AccountID  string
	CustomerID string
	Plan       string
}

// ParseCheckoutCompletion extracts the plan change from a checkout.session.completed event.
func ParseCheckoutCompletion(event stripe.Event) (*CheckoutCompletion, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	out := &CheckoutCompletion{
		AccountID: session.ClientReferenceID,
		Plan:      session.Metadata["plan"],
	}
	if out.AccountID == "" {
		out.AccountID = session.Metadata["account_id"]
	}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}
	return out, nil
}

// ParseSubscriptionCustomer returns the customer id of a subscription event.
func ParseSubscriptionCustomer(event stripe.Event) (string, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return "", fmt.Errorf("decode subscription: %w", err)
	}
	if sub.Customer == nil {
		return "", fmt.Errorf("subscription %s has no customer", sub.ID)
	}
	return sub.Customer.ID, nil
}
