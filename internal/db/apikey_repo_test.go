package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"formguard/internal/types"
)

func apiKeyValues(id, accountID string, created time.Time) []any {
	return []any{id, accountID, "hash-" + id, "fg_abcd", "ci", nil, created}
}

func TestAPIKeyRepository_Insert(t *testing.T) {
	ctx := context.Background()
	created := time.Now().UTC()

	t.Run("success", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, sqlContains("INSERT INTO api_keys"), []any{"acct-1", "hash", "fg_abcd", "ci"}).
			Return(valuesRow(apiKeyValues("key-1", "acct-1", created)...))

		key, err := NewAPIKeyRepository(db).Insert(ctx, "acct-1", "ci", "hash", "fg_abcd")
		require.NoError(t, err)
		assert.Equal(t, "key-1", key.ID)
		assert.Nil(t, key.LastUsedAt)
	})

	t.Run("hash collision is a conflict", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.Anything, mock.Anything).
			Return(&mockRow{scanErr: uniqueViolation("api_keys_token_hash_key")})

		_, err := NewAPIKeyRepository(db).Insert(ctx, "acct-1", "ci", "hash", "fg_abcd")
		requireAppCode(t, err, types.ErrCodeConflictTokenCollision)
	})

	t.Run("other failure is internal", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.Anything, mock.Anything).
			Return(&mockRow{scanErr: errors.New("boom")})

		_, err := NewAPIKeyRepository(db).Insert(ctx, "acct-1", "ci", "hash", "fg_abcd")
		requireAppCode(t, err, types.ErrCodeInternalDB)
	})
}

func TestAPIKeyRepository_ListByAccount_OrderedAscending(t *testing.T) {
	ctx := context.Background()
	db := new(mockDBTX)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := newMockRows([][]any{
		apiKeyValues("key-old", "acct-1", t0),
		apiKeyValues("key-new", "acct-1", t0.Add(time.Hour)),
	})
	db.On("Query", ctx, sqlContains("ORDER BY created_at ASC"), []any{"acct-1"}).Return(rows, nil)

	keys, err := NewAPIKeyRepository(db).ListByAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "key-old", keys[0].ID)
	assert.Equal(t, "key-new", keys[1].ID)
	assert.True(t, rows.closed)
}

func TestAPIKeyRepository_ListByAccount_Empty(t *testing.T) {
	ctx := context.Background()
	db := new(mockDBTX)
	db.On("Query", ctx, mock.Anything, mock.Anything).Return(newMockRows(nil), nil)

	keys, err := NewAPIKeyRepository(db).ListByAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)
}

func TestAPIKeyRepository_Delete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		tag  string
		want types.MutationResult
	}{
		{"owned key", "DELETE 1", types.MutationApplied},
		{"missing or foreign key", "DELETE 0", types.MutationNotFoundOrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			db.On("Exec", ctx, sqlContains("WHERE id = $1 AND account_id = $2"), []any{"key-1", "acct-1"}).
				Return(pgconn.NewCommandTag(tt.tag), nil)

			got, err := NewAPIKeyRepository(db).Delete(ctx, "acct-1", "key-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPIKeyRepository_TouchByHash(t *testing.T) {
	ctx := context.Background()

	t.Run("match stamps last_used_at", func(t *testing.T) {
		db := new(mockDBTX)
		used := time.Now().UTC()
		values := apiKeyValues("key-1", "acct-1", used)
		values[5] = &used
		db.On("QueryRow", ctx, sqlContains("SET last_used_at = NOW()"), []any{"hash-1"}).
			Return(valuesRow(values...))

		key, err := NewAPIKeyRepository(db).TouchByHash(ctx, "hash-1")
		require.NoError(t, err)
		require.NotNil(t, key.LastUsedAt)
		assert.Equal(t, "acct-1", key.AccountID)
	})

	t.Run("unknown token yields nil", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})

		key, err := NewAPIKeyRepository(db).TouchByHash(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, key)
	})
}
