package billing

import (
	"context"
	"log/slog"

	"formguard/internal/types"
)

// AccountStore is the slice of the account repository the billing service needs.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*types.Account, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*types.Account, error)
	UpdatePlan(ctx context.Context, accountID string, plan types.PlanName) (*types.Account, error)
	UpdateStripeCustomerID(ctx context.Context, accountID, customerID string) error
}

// CheckoutProvider creates hosted payment sessions.
type CheckoutProvider interface {
	EnsureCustomer(ctx context.Context, accountID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, accountID string, plan types.PlanName, urls types.RedirectURLs) (checkoutURL string, sessionID string, err error)
}

// Service owns plan changes for accounts.
type Service struct {
	accounts AccountStore
	checkout CheckoutProvider
	logger   *slog.Logger
}

// NewService creates a billing Service. checkout may be nil when Stripe is not configured.
func NewService(accounts AccountStore, checkout CheckoutProvider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{accounts: accounts, checkout: checkout, logger: logger}
}

// UpgradePlan sets an account's plan. Unknown plan names are rejected before
// any write; a missing account yields not_found_account.
func (s *Service) UpgradePlan(ctx context.Context, accountID, planName string) (*types.Account, error) {
	plan, err := ParsePlan(planName)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.UpdatePlan(ctx, accountID, plan)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	}

	s.logger.InfoContext(ctx, "account plan changed",
		"account_id", accountID,
		"plan", plan,
	)
	return account, nil
}

// DowngradeCustomer moves the account behind a Stripe customer back to free.
// Unknown customers are ignored so webhook retries do not loop.
func (s *Service) DowngradeCustomer(ctx context.Context, customerID string) error {
	account, err := s.accounts.GetByStripeCustomerID(ctx, customerID)
	if err != nil {
		return err
	}
	if account == nil {
		s.logger.WarnContext(ctx, "subscription ended for unknown customer", "customer_id", customerID)
		return nil
	}
	_, err = s.UpgradePlan(ctx, account.ID, string(types.PlanFree))
	return err
}

// StartCheckout returns a hosted checkout URL for a paid plan.
func (s *Service) StartCheckout(ctx context.Context, accountID, planName string, urls types.RedirectURLs) (string, error) {
	plan, err := ParsePlan(planName)
	if err != nil {
		return "", err
	}
	if plan == types.PlanFree {
		return "", types.NewAppError(types.ErrCodeValidationInvalidPlan, "the free plan does not require checkout", nil)
	}
	if s.checkout == nil {
		return "", types.NewAppError(types.ErrCodeUpstreamStripe, "billing is not configured", nil)
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	}

	customerID := account.StripeCustomerID
	if customerID == "" {
		customerID, err = s.checkout.EnsureCustomer(ctx, account.ID, account.Email)
		if err != nil {
			return "", err
		}
		if err := s.accounts.UpdateStripeCustomerID(ctx, account.ID, customerID); err != nil {
			return "", err
		}
	}

	checkoutURL, sessionID, err := s.checkout.CreateCheckoutSession(ctx, customerID, account.ID, plan, urls)
	if err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "checkout session created",
		"account_id", account.ID,
		"plan", plan,
		"session_id", sessionID,
	)
	return checkoutURL, nil
}
