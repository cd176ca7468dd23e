// Package auth issues and validates API keys, resolves Stack Auth sessions to
// accounts, and authenticates inbound requests for the FormGuard API.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"formguard/internal/types"
)

const (
	// apiKeyEntropyBytes is the number of random bytes in a token (256 bits).
	apiKeyEntropyBytes = 32

	// displayPrefixLen is how many leading token characters are kept for display.
	displayPrefixLen = len(types.APIKeyPrefix) + 8

	maxKeyInsertAttempts = 3
	maxKeyNameLen        = 80
)

// HashToken produces the hex-encoded SHA-256 digest stored in place of a
// plaintext token. The digest is deterministic so lookups stay a single
// indexed equality match.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// GeneratedKey is a freshly minted API key. Plaintext is never persisted.
type GeneratedKey struct {
	Plaintext string
	Prefix    string
	Hash      string
}

// TokenGenerator abstracts the entropy source so tests can force collisions.
type TokenGenerator interface {
	GenerateAPIKey() (GeneratedKey, error)
}

// CryptoTokenGenerator draws tokens from crypto/rand.
type CryptoTokenGenerator struct{}

// GenerateAPIKey returns "fg_" followed by 64 hex characters.
func (CryptoTokenGenerator) GenerateAPIKey() (GeneratedKey, error) {
	b := make([]byte, apiKeyEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		return GeneratedKey{}, fmt.Errorf("generate api key: %w", err)
	}
	token := types.APIKeyPrefix + hex.EncodeToString(b)
	return GeneratedKey{
		Plaintext: token,
		Prefix:    token[:displayPrefixLen],
		Hash:      HashToken(token),
	}, nil
}

// KeyRepo is the storage contract for API keys.
type KeyRepo interface {
	Insert(ctx context.Context, accountID, name, tokenHash, tokenPrefix string) (*types.APIKey, error)
	ListByAccount(ctx context.Context, accountID string) ([]*types.APIKey, error)
	Delete(ctx context.Context, accountID, keyID string) (types.MutationResult, error)
	TouchByHash(ctx context.Context, tokenHash string) (*types.APIKey, error)
}

// KeyManager issues, lists, revokes and validates API keys.
type KeyManager struct {
	repo   KeyRepo
	tokens TokenGenerator
	logger *slog.Logger
}

// NewKeyManager creates a KeyManager. A nil generator selects crypto/rand.
func NewKeyManager(repo KeyRepo, tokens TokenGenerator, logger *slog.Logger) *KeyManager {
	if tokens == nil {
		tokens = CryptoTokenGenerator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyManager{repo: repo, tokens: tokens, logger: logger}
}

// CreateKey stores a new key for accountID and returns the record together
// with the plaintext token, which the caller shows exactly once. A token
// hash collision regenerates the token.
func (m *KeyManager) CreateKey(ctx context.Context, accountID, name string) (*types.APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxKeyNameLen {
		return nil, "", types.NewAppError(types.ErrCodeValidationInvalidName,
			fmt.Sprintf("key name must be 1-%d characters", maxKeyNameLen), nil)
	}

	var lastErr error
	for attempt := 0; attempt < maxKeyInsertAttempts; attempt++ {
		gen, err := m.tokens.GenerateAPIKey()
		if err != nil {
			return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate api key", err)
		}

		key, err := m.repo.Insert(ctx, accountID, name, gen.Hash, gen.Prefix)
		if err == nil {
			m.logger.InfoContext(ctx, "api key created", "account_id", accountID, "key_id", key.ID, "prefix", gen.Prefix)
			return key, gen.Plaintext, nil
		}
		if !isCode(err, types.ErrCodeConflictTokenCollision) {
			return nil, "", err
		}
		lastErr = err
		m.logger.WarnContext(ctx, "api key hash collision, regenerating", "attempt", attempt+1)
	}
	return nil, "", lastErr
}

// ListKeys returns the account's keys oldest first.
func (m *KeyManager) ListKeys(ctx context.Context, accountID string) ([]*types.APIKey, error) {
	return m.repo.ListByAccount(ctx, accountID)
}

// RevokeKey hard-deletes a key owned by accountID. Missing and foreign keys
// both report MutationNotFoundOrForbidden.
func (m *KeyManager) RevokeKey(ctx context.Context, accountID, keyID string) (types.MutationResult, error) {
	res, err := m.repo.Delete(ctx, accountID, keyID)
	if err != nil {
		return types.MutationNotFoundOrForbidden, err
	}
	if res.Applied() {
		m.logger.InfoContext(ctx, "api key revoked", "account_id", accountID, "key_id", keyID)
	}
	return res, nil
}

// ValidateKey resolves a plaintext token and stamps last_used_at in the same
// statement. It returns nil, nil for unknown or malformed tokens.
func (m *KeyManager) ValidateKey(ctx context.Context, token string) (*types.APIKey, error) {
	if !types.IsAPIKeyToken(token) || len(token) != len(types.APIKeyPrefix)+2*apiKeyEntropyBytes {
		return nil, nil
	}
	return m.repo.TouchByHash(ctx, HashToken(token))
}

func isCode(err error, code types.ErrorCode) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
