package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"formguard/internal/types"
)

func formValues(id, accountID string) []any {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return []any{id, accountID, "ep_" + id, "Contact", types.FormSettings{CaptchaRequired: true}, now, now}
}

func TestFormRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("owned form", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, sqlContains("WHERE id = $1 AND account_id = $2"), []any{"form-1", "acct-1"}).
			Return(valuesRow(formValues("form-1", "acct-1")...))

		form, err := NewFormRepository(db).Get(ctx, "form-1", "acct-1")
		require.NoError(t, err)
		require.NotNil(t, form)
		assert.True(t, form.Settings.CaptchaRequired)
	})

	t.Run("absent or foreign form is nil", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})

		form, err := NewFormRepository(db).Get(ctx, "form-1", "acct-other")
		require.NoError(t, err)
		assert.Nil(t, form)
	})

	t.Run("storage error", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(&mockRow{scanErr: errors.New("timeout")})

		_, err := NewFormRepository(db).Get(ctx, "form-1", "acct-1")
		requireAppCode(t, err, types.ErrCodeInternalDB)
	})
}

func TestFormRepository_Create_EndpointCollision(t *testing.T) {
	ctx := context.Background()
	db := new(mockDBTX)
	db.On("QueryRow", ctx, sqlContains("INSERT INTO forms"), mock.Anything).
		Return(&mockRow{scanErr: uniqueViolation("forms_endpoint_id_key")})

	_, err := NewFormRepository(db).Create(ctx, "acct-1", "ep_taken", "Contact", types.FormSettings{})
	requireAppCode(t, err, types.ErrCodeConflictEndpointCollision)
}

func TestFormRepository_List(t *testing.T) {
	ctx := context.Background()
	db := new(mockDBTX)
	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "FROM forms") &&
			strings.Contains(sql, "account_id = $1") &&
			strings.Contains(sql, "ORDER BY created_at DESC")
	}), []any{"acct-1"}).Return(newMockRows([][]any{
		formValues("form-2", "acct-1"),
		formValues("form-1", "acct-1"),
	}), nil)

	forms, err := NewFormRepository(db).List(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, forms, 2)
	assert.Equal(t, "form-2", forms[0].ID)
}

func TestFormRepository_Update(t *testing.T) {
	ctx := context.Background()
	name := "Renamed"

	t.Run("scoped by id and account", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
			return strings.HasPrefix(sql, "UPDATE forms SET") &&
				strings.Contains(sql, "name = $1") &&
				strings.Contains(sql, "account_id = $2") &&
				strings.Contains(sql, "id = $3")
		}), []any{"Renamed", "acct-1", "form-1"}).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

		got, err := NewFormRepository(db).Update(ctx, "form-1", "acct-1", types.FormPatch{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, types.MutationApplied, got)
		db.AssertExpectations(t)
	})

	t.Run("zero rows is not found or forbidden", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", ctx, mock.Anything, mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)

		got, err := NewFormRepository(db).Update(ctx, "form-1", "acct-other", types.FormPatch{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, types.MutationNotFoundOrForbidden, got)
	})
}

func TestFormRepository_Update_MergesSettings(t *testing.T) {
	ctx := context.Background()
	settings := types.FormSettings{CaptchaRequired: true}

	db := new(mockDBTX)
	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "settings = settings || $1::jsonb") &&
			strings.Contains(sql, "account_id = $2") &&
			strings.Contains(sql, "id = $3")
	}), []any{settings, "acct-1", "form-1"}).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	got, err := NewFormRepository(db).Update(ctx, "form-1", "acct-1", types.FormPatch{Settings: &settings})
	require.NoError(t, err)
	assert.True(t, got.Applied())
	db.AssertExpectations(t)
}

func TestFormRepository_MergeSettings(t *testing.T) {
	ctx := context.Background()
	db := new(mockDBTX)
	db.On("Exec", ctx, sqlContains("settings = settings || $1::jsonb"),
		[]any{`{"redirect_url":"https://x.test/thanks"}`, "form-1", "acct-1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	got, err := NewFormRepository(db).MergeSettings(ctx, "form-1", "acct-1", map[string]any{"redirect_url": "https://x.test/thanks"})
	require.NoError(t, err)
	assert.True(t, got.Applied())
}

func TestFormRepository_Delete(t *testing.T) {
	ctx := context.Background()

	db := new(mockDBTX)
	db.On("Exec", ctx, sqlContains("DELETE FROM forms WHERE id = $1 AND account_id = $2"), []any{"form-1", "acct-1"}).
		Return(pgconn.NewCommandTag("DELETE 0"), nil)

	got, err := NewFormRepository(db).Delete(ctx, "form-1", "acct-1")
	require.NoError(t, err)
	assert.Equal(t, types.MutationNotFoundOrForbidden, got)
}

func TestFormRepository_CountByAccount(t *testing.T) {
	ctx := context.Background()
	db := new(mockDBTX)
	db.On("QueryRow", ctx, sqlContains("COUNT(*) FROM forms"), []any{"acct-1"}).Return(valuesRow(3))

	n, err := NewFormRepository(db).CountByAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
