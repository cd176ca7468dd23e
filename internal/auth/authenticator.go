package auth

import (
	"context"
	"log/slog"

	"formguard/internal/types"
)

// AccountByID loads an account by primary key.
type AccountByID interface {
	GetByID(ctx context.Context, id string) (*types.Account, error)
}

// Authenticator resolves bearer tokens to Actors. Tokens carrying the fg_
// prefix are API keys; anything else is treated as a Stack Auth session.
type Authenticator struct {
	keys     *KeyManager
	identity *IdentityResolver
	accounts AccountByID
	logger   *slog.Logger
}

// NewAuthenticator wires the two credential paths.
func NewAuthenticator(keys *KeyManager, identity *IdentityResolver, accounts AccountByID, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{keys: keys, identity: identity, accounts: accounts, logger: logger}
}

// ResolveToken returns the Actor for token. A session whose identity has no
// account yet yields an Actor with an empty AccountID.
func (a *Authenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	if types.IsAPIKeyToken(token) {
		return a.resolveAPIKey(ctx, token)
	}
	return a.resolveSession(ctx, token)
}

func (a *Authenticator) resolveAPIKey(ctx context.Context, token string) (*types.Actor, error) {
	key, err := a.keys.ValidateKey(ctx, token)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "api key not recognized", nil)
	}

	acct, err := a.accounts.GetByID(ctx, key.AccountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		// Account deleted between the two reads.
		a.logger.WarnContext(ctx, "api key without account", "key_id", key.ID)
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "api key not recognized", nil)
	}

	return &types.Actor{
		ID:        key.ID,
		Type:      types.ActorTypeAPIKey,
		AccountID: acct.ID,
		Plan:      acct.Plan,
	}, nil
}

func (a *Authenticator) resolveSession(ctx context.Context, token string) (*types.Actor, error) {
	identity, err := a.identity.Identify(ctx, token)
	if err != nil {
		return nil, err
	}

	actor := &types.Actor{
		ID:         identity.ID,
		Type:       types.ActorTypeUser,
		IdentityID: identity.ID,
		Plan:       types.PlanFree,
		Identity:   identity,
	}

	acct, err := a.identity.Account(ctx, identity)
	if err != nil {
		return nil, err
	}
	if acct != nil {
		actor.AccountID = acct.ID
		actor.Plan = acct.Plan
	}
	return actor, nil
}
