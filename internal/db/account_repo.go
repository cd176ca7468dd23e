package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"formguard/internal/types"
)

// AccountRepository provides data access for the accounts table.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository backed by the given
// database connection (pool or transaction).
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, identity_id, email, display_name, plan,
	COALESCE(stripe_customer_id, ''), created_at, updated_at`

// GetByIdentity returns the account for an external identity, or nil when none exists.
func (r *AccountRepository) GetByIdentity(ctx context.Context, identityID string) (*types.Account, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM accounts WHERE identity_id = $1`, accountColumns),
		identityID,
	)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up account by identity", err)
	}
	return acct, nil
}

// GetByID returns the account with the given id, or nil when none exists.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*types.Account, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns),
		id,
	)
	acct, err := scanAccount(row)
	if err != nil {
		if isAbsent(err) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve account", err)
	}
	return acct, nil
}

// GetByStripeCustomerID returns the account linked to a Stripe customer, or nil.
func (r *AccountRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*types.Account, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM accounts WHERE stripe_customer_id = $1`, accountColumns),
		customerID,
	)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up account by customer", err)
	}
	return acct, nil
}

// ResolveOrCreate returns the account bound to identityID, creating it on
// first use with the free plan. Concurrent first requests for the same
// identity converge on one row: the insert is a no-op on conflict and the
// loser re-reads the winner's row.
func (r *AccountRepository) ResolveOrCreate(ctx context.Context, identityID, email, displayName string) (*types.Account, error) {
	if identityID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "identity id is required", nil)
	}

	acct, err := r.GetByIdentity(ctx, identityID)
	if err != nil || acct != nil {
		return acct, err
	}

	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO accounts (identity_id, email, display_name, plan)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (identity_id) DO NOTHING
		 RETURNING %s`, accountColumns),
		identityID,
		email,
		displayName,
		types.PlanFree,
	)
	acct, err = scanAccount(row)
	switch {
	case err == nil:
		return acct, nil
	case errors.Is(err, pgx.ErrNoRows), isUniqueViolation(err):
		// Lost the race; the winner's row is visible now.
	default:
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create account", err)
	}

	acct, err = r.GetByIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "account vanished after conflicting insert", nil)
	}
	return acct, nil
}

// UpdatePlan sets the account's plan and returns the updated row, or nil when
// the account does not exist. Plan names are validated by the caller.
func (r *AccountRepository) UpdatePlan(ctx context.Context, accountID string, plan types.PlanName) (*types.Account, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`UPDATE accounts SET plan = $1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING %s`, accountColumns),
		plan,
		accountID,
	)
	acct, err := scanAccount(row)
	if err != nil {
		if isAbsent(err) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update account plan", err)
	}
	return acct, nil
}

// UpdateStripeCustomerID links the account to a Stripe customer.
func (r *AccountRepository) UpdateStripeCustomerID(ctx context.Context, accountID, customerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET stripe_customer_id = $1, updated_at = NOW() WHERE id = $2`,
		nilIfEmptyString(customerID),
		accountID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update stripe customer", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	}
	return nil
}

func scanAccount(row pgx.Row) (*types.Account, error) {
	var a types.Account
	err := row.Scan(
		&a.ID,
		&a.IdentityID,
		&a.Email,
		&a.DisplayName,
		&a.Plan,
		&a.StripeCustomerID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
