package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"formguard/internal/types"
)

// --- Mock KeyRepo ---

type mockKeyRepo struct {
	mock.Mock
}

func (m *mockKeyRepo) Insert(ctx context.Context, accountID, name, tokenHash, tokenPrefix string) (*types.APIKey, error) {
	args := m.Called(ctx, accountID, name, tokenHash, tokenPrefix)
	if k := args.Get(0); k != nil {
		return k.(*types.APIKey), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockKeyRepo) ListByAccount(ctx context.Context, accountID string) ([]*types.APIKey, error) {
	args := m.Called(ctx, accountID)
	if k := args.Get(0); k != nil {
		return k.([]*types.APIKey), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockKeyRepo) Delete(ctx context.Context, accountID, keyID string) (types.MutationResult, error) {
	args := m.Called(ctx, accountID, keyID)
	return args.Get(0).(types.MutationResult), args.Error(1)
}

func (m *mockKeyRepo) TouchByHash(ctx context.Context, tokenHash string) (*types.APIKey, error) {
	args := m.Called(ctx, tokenHash)
	if k := args.Get(0); k != nil {
		return k.(*types.APIKey), args.Error(1)
	}
	return nil, args.Error(1)
}

// sequenceGenerator returns canned keys in order.
type sequenceGenerator struct {
	keys []GeneratedKey
	n    int
}

func (g *sequenceGenerator) GenerateAPIKey() (GeneratedKey, error) {
	if g.n >= len(g.keys) {
		return GeneratedKey{}, errors.New("exhausted")
	}
	k := g.keys[g.n]
	g.n++
	return k, nil
}

func requireCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestCryptoTokenGenerator_Format(t *testing.T) {
	gen, err := CryptoTokenGenerator{}.GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gen.Plaintext, "fg_"))
	assert.Len(t, gen.Plaintext, 3+64)
	assert.Equal(t, gen.Plaintext[:11], gen.Prefix)
	assert.Equal(t, HashToken(gen.Plaintext), gen.Hash)
	assert.NotContains(t, gen.Hash, gen.Plaintext)

	other, err := CryptoTokenGenerator{}.GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, gen.Plaintext, other.Plaintext)
}

func TestHashToken_Deterministic(t *testing.T) {
	assert.Equal(t, HashToken("fg_abc"), HashToken("fg_abc"))
	assert.NotEqual(t, HashToken("fg_abc"), HashToken("fg_abd"))
	assert.Len(t, HashToken("x"), 64)
}

func TestCreateKey_Success(t *testing.T) {
	ctx := context.Background()
	repo := new(mockKeyRepo)
	gen := &sequenceGenerator{keys: []GeneratedKey{{Plaintext: "fg_one", Prefix: "fg_on", Hash: "h1"}}}
	stored := &types.APIKey{ID: "key-1", AccountID: "acct-1", Name: "CI", TokenPrefix: "fg_on"}
	repo.On("Insert", ctx, "acct-1", "CI", "h1", "fg_on").Return(stored, nil)

	key, plaintext, err := NewKeyManager(repo, gen, nil).CreateKey(ctx, "acct-1", "  CI ")
	require.NoError(t, err)
	assert.Equal(t, stored, key)
	assert.Equal(t, "fg_one", plaintext)
	repo.AssertExpectations(t)
}

func TestCreateKey_RetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	repo := new(mockKeyRepo)
	gen := &sequenceGenerator{keys: []GeneratedKey{
		{Plaintext: "fg_a", Prefix: "fg_a", Hash: "ha"},
		{Plaintext: "fg_b", Prefix: "fg_b", Hash: "hb"},
	}}
	collision := types.NewAppError(types.ErrCodeConflictTokenCollision, "dup", nil)
	repo.On("Insert", ctx, "acct-1", "CI", "ha", "fg_a").Return(nil, collision).Once()
	repo.On("Insert", ctx, "acct-1", "CI", "hb", "fg_b").Return(&types.APIKey{ID: "key-2"}, nil).Once()

	key, plaintext, err := NewKeyManager(repo, gen, nil).CreateKey(ctx, "acct-1", "CI")
	require.NoError(t, err)
	assert.Equal(t, "key-2", key.ID)
	assert.Equal(t, "fg_b", plaintext)
}

func TestCreateKey_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := new(mockKeyRepo)
	gen := &sequenceGenerator{keys: []GeneratedKey{{Hash: "1"}, {Hash: "2"}, {Hash: "3"}, {Hash: "4"}}}
	collision := types.NewAppError(types.ErrCodeConflictTokenCollision, "dup", nil)
	repo.On("Insert", ctx, "acct-1", "CI", mock.Anything, mock.Anything).Return(nil, collision)

	_, _, err := NewKeyManager(repo, gen, nil).CreateKey(ctx, "acct-1", "CI")
	requireCode(t, err, types.ErrCodeConflictTokenCollision)
	repo.AssertNumberOfCalls(t, "Insert", maxKeyInsertAttempts)
}

func TestCreateKey_OtherErrorsNotRetried(t *testing.T) {
	ctx := context.Background()
	repo := new(mockKeyRepo)
	gen := &sequenceGenerator{keys: []GeneratedKey{{Hash: "1"}, {Hash: "2"}}}
	repo.On("Insert", ctx, "acct-1", "CI", mock.Anything, mock.Anything).
		Return(nil, types.NewAppError(types.ErrCodeInternalDB, "down", nil))

	_, _, err := NewKeyManager(repo, gen, nil).CreateKey(ctx, "acct-1", "CI")
	requireCode(t, err, types.ErrCodeInternalDB)
	repo.AssertNumberOfCalls(t, "Insert", 1)
}

func TestCreateKey_InvalidName(t *testing.T) {
	repo := new(mockKeyRepo)
	m := NewKeyManager(repo, nil, nil)

	for _, name := range []string{"", "   ", strings.Repeat("x", maxKeyNameLen+1)} {
		_, _, err := m.CreateKey(context.Background(), "acct-1", name)
		requireCode(t, err, types.ErrCodeValidationInvalidName)
	}
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRevokeKey(t *testing.T) {
	ctx := context.Background()
	repo := new(mockKeyRepo)
	repo.On("Delete", ctx, "acct-1", "key-1").Return(types.MutationApplied, nil).Once()
	repo.On("Delete", ctx, "acct-1", "key-1").Return(types.MutationNotFoundOrForbidden, nil).Once()
	m := NewKeyManager(repo, nil, nil)

	res, err := m.RevokeKey(ctx, "acct-1", "key-1")
	require.NoError(t, err)
	assert.True(t, res.Applied())

	res, err = m.RevokeKey(ctx, "acct-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, types.MutationNotFoundOrForbidden, res, "second revoke must report no effect")
}

func TestValidateKey(t *testing.T) {
	ctx := context.Background()
	token := "fg_" + strings.Repeat("ab", 32)
	used := time.Now()

	repo := new(mockKeyRepo)
	repo.On("TouchByHash", ctx, HashToken(token)).Return(&types.APIKey{ID: "key-1", LastUsedAt: &used}, nil)
	m := NewKeyManager(repo, nil, nil)

	key, err := m.ValidateKey(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, key.LastUsedAt)
	assert.False(t, key.LastUsedAt.Before(used))
}

func TestValidateKey_MalformedSkipsLookup(t *testing.T) {
	repo := new(mockKeyRepo)
	m := NewKeyManager(repo, nil, nil)

	for _, token := range []string{"", "sk_live_123", "fg_short", "fg_" + strings.Repeat("a", 65)} {
		key, err := m.ValidateKey(context.Background(), token)
		assert.NoError(t, err)
		assert.Nil(t, key)
	}
	repo.AssertNotCalled(t, "TouchByHash", mock.Anything, mock.Anything)
}

func TestValidateKey_Unknown(t *testing.T) {
	ctx := context.Background()
	token := "fg_" + strings.Repeat("cd", 32)
	repo := new(mockKeyRepo)
	repo.On("TouchByHash", ctx, HashToken(token)).Return(nil, nil)

	key, err := NewKeyManager(repo, nil, nil).ValidateKey(ctx, token)
	assert.NoError(t, err)
	assert.Nil(t, key)
}
