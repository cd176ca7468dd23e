package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	stripe "github.com/stripe/stripe-go/v82"

	"formguard/internal/billing"
	"formguard/internal/core"
	"formguard/internal/external"
	"formguard/internal/types"
)

// maxWebhookBodySize caps Stripe webhook payloads.
const maxWebhookBodySize = 64 * 1024

// Stripe event types that change plans.
const (
	eventCheckoutCompleted   = "checkout.session.completed"
	eventSubscriptionDeleted = "customer.subscription.deleted"
)

// BillingService starts checkouts and applies plan changes.
type BillingService interface {
	StartCheckout(ctx context.Context, accountID, planName string, urls types.RedirectURLs) (string, error)
	UpgradePlan(ctx context.Context, accountID, planName string) (*types.Account, error)
	DowngradeCustomer(ctx context.Context, customerID string) error
}

// WebhookVerifier validates Stripe signatures.
type WebhookVerifier interface {
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

// CheckoutRequest is the body of POST /v1/billing/checkout.
type CheckoutRequest struct {
	Plan       string `json:"plan" validate:"required,plan"`
	SuccessURL string `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL  string `json:"cancel_url,omitempty" validate:"omitempty,url"`
}

// BillingHandler serves the plan table, checkout and the Stripe webhook.
type BillingHandler struct {
	service      BillingService
	plans        billing.PlanRegistry
	verifier     WebhookVerifier
	validator    *core.Validator
	dashboardURL string
	logger       *slog.Logger
}

// NewBillingHandler creates a BillingHandler. dashboardURL is the base for
// default checkout redirect URLs.
func NewBillingHandler(service BillingService, plans billing.PlanRegistry, verifier WebhookVerifier, v *core.Validator, dashboardURL string, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if plans == nil {
		plans = billing.NewStaticPlanRegistry()
	}
	return &BillingHandler{
		service:      service,
		plans:        plans,
		verifier:     verifier,
		validator:    v,
		dashboardURL: dashboardURL,
		logger:       logger,
	}
}

// RegisterRoutes mounts billing routes on the /v1 router.
// /billing/plans is exempted from authentication by core.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/billing/plans", h.Plans)
	r.With(core.RequireSession).Post("/billing/checkout", h.Checkout)
}

// RegisterPublicRoutes mounts the Stripe webhook at the root.
func (h *BillingHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Webhook)
}

// Plans handles GET /v1/billing/plans.
func (h *BillingHandler) Plans(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, map[string]any{"plans": h.plans.Plans()})
}

// Checkout handles POST /v1/billing/checkout.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	urls := types.RedirectURLs{Success: req.SuccessURL, Cancel: req.CancelURL}
	if urls.Success == "" {
		urls.Success = h.dashboardURL + "/dashboard/billing?checkout=success"
	}
	if urls.Cancel == "" {
		urls.Cancel = h.dashboardURL + "/dashboard/billing?checkout=cancelled"
	}

	checkoutURL, err := h.service.StartCheckout(r.Context(), actor.AccountID, req.Plan, urls)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]string{"url": checkoutURL})
}

// Webhook handles POST /webhooks/stripe. Signature failures are 400.
// Processing failures return 500 so Stripe redelivers; unknown event types
// are acknowledged.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeUpstreamStripe, "billing is not configured", nil))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationPayloadSize, "failed to read webhook body", err))
		return
	}

	event, err := h.verifier.ConstructEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationFailed, "webhook signature verification failed", err))
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", string(event.Type),
	)

	if err := h.applyEvent(r.Context(), event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", string(event.Type),
			"error", err,
		)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
}

func (h *BillingHandler) applyEvent(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case eventCheckoutCompleted:
		completion, err := external.ParseCheckoutCompletion(event)
		if err != nil {
			return types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed checkout session", err)
		}
		if completion.AccountID == "" || completion.Plan == "" {
			h.logger.WarnContext(ctx, "checkout session without account or plan", "event_id", event.ID)
			return nil
		}
		_, err = h.service.UpgradePlan(ctx, completion.AccountID, completion.Plan)
		return err

	case eventSubscriptionDeleted:
		customerID, err := external.ParseSubscriptionCustomer(event)
		if err != nil {
			return types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed subscription", err)
		}
		return h.service.DowngradeCustomer(ctx, customerID)

	default:
		return nil
	}
}
