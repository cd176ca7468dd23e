package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"formguard/internal/billing"
	"formguard/internal/core"
	"formguard/internal/types"
)

// AccountResolver provisions the account behind a session identity.
type AccountResolver interface {
	ResolveOrCreate(ctx context.Context, identity *types.Identity) (*types.Account, error)
}

// UsageReporter summarizes consumption for the current billing period.
type UsageReporter interface {
	CurrentUsage(ctx context.Context, account *types.Account) (*types.UsageSummary, error)
}

// MeResponse is the body of GET /v1/me.
type MeResponse struct {
	Account *types.Account   `json:"account"`
	Limits  types.PlanLimits `json:"limits"`
	Actor   string           `json:"actor_type"`
}

// AccountHandler serves the caller's own account.
type AccountHandler struct {
	resolver AccountResolver
	accounts AccountLookup
	usage    UsageReporter
	plans    billing.PlanRegistry
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(resolver AccountResolver, accounts AccountLookup, usage UsageReporter, plans billing.PlanRegistry, logger *slog.Logger) *AccountHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if plans == nil {
		plans = billing.NewStaticPlanRegistry()
	}
	return &AccountHandler{resolver: resolver, accounts: accounts, usage: usage, plans: plans, logger: logger}
}

// RegisterRoutes mounts account routes on the /v1 router.
func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.Me)
	r.Get("/me/usage", h.Usage)
}

// Me handles GET /v1/me. A session without an account provisions one.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, actor, err := h.resolve(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, MeResponse{
		Account: account,
		Limits:  h.plans.LimitsFor(account.Plan),
		Actor:   string(actor.Type),
	})
}

// Usage handles GET /v1/me/usage.
func (h *AccountHandler) Usage(w http.ResponseWriter, r *http.Request) {
	actor, err := accountActor(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	account, err := h.accounts.GetByID(r.Context(), actor.AccountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if account == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil))
		return
	}

	summary, err := h.usage.CurrentUsage(r.Context(), account)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, summary)
}

func (h *AccountHandler) resolve(r *http.Request) (*types.Account, types.Actor, error) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		return nil, actor, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil)
	}

	if actor.AccountID != "" {
		account, err := h.accounts.GetByID(r.Context(), actor.AccountID)
		if err != nil {
			return nil, actor, err
		}
		if account != nil {
			return account, actor, nil
		}
	}

	if actor.Type != types.ActorTypeUser || actor.Identity == nil {
		return nil, actor, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	}

	account, err := h.resolver.ResolveOrCreate(r.Context(), actor.Identity)
	if err != nil {
		return nil, actor, err
	}
	h.logger.InfoContext(r.Context(), "account resolved for identity",
		"account_id", account.ID,
		"identity_id", actor.IdentityID,
	)
	return account, actor, nil
}
