package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"

	"formguard/internal/types"
)

const (
	defaultIdentityTTL = time.Minute
	identityCleanup    = 5 * time.Minute
)

// IdentityProvider resolves a session access token to the identity behind it.
type IdentityProvider interface {
	CurrentUser(ctx context.Context, accessToken string) (*types.Identity, error)
}

// AccountStore is the account storage contract used by the resolver.
type AccountStore interface {
	GetByIdentity(ctx context.Context, identityID string) (*types.Account, error)
	ResolveOrCreate(ctx context.Context, identityID, email, displayName string) (*types.Account, error)
}

// IdentityResolver maps Stack Auth session tokens to FormGuard accounts.
// Verified identities are cached by token digest; accounts are always read
// from storage so plan changes apply on the next request.
type IdentityResolver struct {
	provider IdentityProvider
	accounts AccountStore
	cache    *gocache.Cache
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewIdentityResolver creates a resolver. ttl <= 0 selects one minute.
func NewIdentityResolver(provider IdentityProvider, accounts AccountStore, ttl time.Duration, logger *slog.Logger) *IdentityResolver {
	if ttl <= 0 {
		ttl = defaultIdentityTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityResolver{
		provider: provider,
		accounts: accounts,
		cache:    gocache.New(ttl, identityCleanup),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Identify verifies accessToken and returns its identity.
//
// The token is decoded locally first so malformed or expired JWTs are
// rejected without a round trip; the signature itself is checked by Stack Auth.
func (r *IdentityResolver) Identify(ctx context.Context, accessToken string) (*types.Identity, error) {
	expiresAt, err := r.precheck(accessToken)
	if err != nil {
		return nil, err
	}

	key := HashToken(accessToken)
	if cached, ok := r.cache.Get(key); ok {
		return cached.(*types.Identity), nil
	}

	identity, err := r.provider.CurrentUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	ttl := r.ttl
	if !expiresAt.IsZero() {
		if remaining := expiresAt.Sub(r.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		r.cache.Set(key, identity, ttl)
	}
	return identity, nil
}

// Account returns the account linked to identity, or nil when none exists yet.
func (r *IdentityResolver) Account(ctx context.Context, identity *types.Identity) (*types.Account, error) {
	return r.accounts.GetByIdentity(ctx, identity.ID)
}

// ResolveOrCreate returns the identity's account, creating it on first sight.
func (r *IdentityResolver) ResolveOrCreate(ctx context.Context, identity *types.Identity) (*types.Account, error) {
	acct, err := r.accounts.ResolveOrCreate(ctx, identity.ID, CanonicalizeEmail(identity.Email), strings.TrimSpace(identity.DisplayName))
	if err != nil {
		return nil, err
	}
	r.logger.DebugContext(ctx, "identity resolved", "identity_id", identity.ID, "account_id", acct.ID)
	return acct, nil
}

// Forget drops a cached identity, e.g. after sign-out.
func (r *IdentityResolver) Forget(accessToken string) {
	r.cache.Delete(HashToken(accessToken))
}

func (r *IdentityResolver) precheck(accessToken string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session token is malformed", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return time.Time{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session token has no subject", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session token expiry is malformed", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	if !r.now().Before(exp.Time) {
		return time.Time{}, types.NewAppError(types.ErrCodeAuthTokenExpired, "session token has expired", nil)
	}
	return exp.Time, nil
}

// CanonicalizeEmail normalizes email addresses for storage.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
