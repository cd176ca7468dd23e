//go:build integration

package db

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"formguard/internal/types"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// setupTestDB starts one PostgreSQL container per test binary, applies the
// embedded migrations and returns a pool closed on test cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	containerOnce.Do(func() {
		containerDSN, containerErr = startPostgres()
	})
	if containerErr != nil {
		t.Fatalf("setup test db: %v", containerErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, PoolConfig{URL: containerDSN, MaxConns: 20})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func startPostgres() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "formguard",
				"POSTGRES_PASSWORD": "formguard",
				"POSTGRES_DB":       "formguard",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("mapped port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://formguard:formguard@%s:%s/formguard?sslmode=disable", host, port.Port())
	if err := Migrate(ctx, dsn, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		return "", err
	}
	return dsn, nil
}

func TestIntegration_ResolveOrCreate_ConcurrentFirstRequests(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewAccountRepository(pool)
	ctx := context.Background()
	identity := fmt.Sprintf("idn_race_%d", time.Now().UnixNano())

	const workers = 16
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acct, err := repo.ResolveOrCreate(ctx, identity, "race@example.com", "")
			errs[i] = err
			if acct != nil {
				ids[i] = acct.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i], "every caller must observe the same account")
	}

	var rows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE identity_id = $1`, identity).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestIntegration_OwnershipAndInsightCount(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	accounts := NewAccountRepository(pool)
	forms := NewFormRepository(pool)
	insights := NewInsightRepository(pool)

	suffix := time.Now().UnixNano()
	owner, err := accounts.ResolveOrCreate(ctx, fmt.Sprintf("idn_owner_%d", suffix), "", "")
	require.NoError(t, err)
	other, err := accounts.ResolveOrCreate(ctx, fmt.Sprintf("idn_other_%d", suffix), "", "")
	require.NoError(t, err)

	contact, err := forms.Create(ctx, owner.ID, fmt.Sprintf("ep_c_%d", suffix), "Contact", types.FormSettings{})
	require.NoError(t, err)
	survey, err := forms.Create(ctx, owner.ID, fmt.Sprintf("ep_s_%d", suffix), "Survey", types.FormSettings{})
	require.NoError(t, err)
	foreign, err := forms.Create(ctx, other.ID, fmt.Sprintf("ep_f_%d", suffix), "Elsewhere", types.FormSettings{})
	require.NoError(t, err)

	got, err := forms.Get(ctx, contact.ID, other.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "foreign account must not read the form")

	res, err := forms.Delete(ctx, contact.ID, other.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MutationNotFoundOrForbidden, res)

	res, err = forms.MergeSettings(ctx, contact.ID, owner.ID, map[string]any{"theme": "dark"})
	require.NoError(t, err)
	assert.True(t, res.Applied())

	for _, formID := range []string{contact.ID, contact.ID, survey.ID, foreign.ID} {
		_, err := insights.Create(ctx, formID, "summary")
		require.NoError(t, err)
	}

	n, err := insights.CountByAccount(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "insights on another account's form must not be counted")

	n, err = insights.CountByAccount(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = insights.CountByAccount(ctx, "00000000-0000-0000-0000-000000000000' OR '1'='1")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a non-uuid id must match nothing, not widen the query")
}

func TestIntegration_MalformedIDsAreAbsent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	acct, err := NewAccountRepository(pool).ResolveOrCreate(ctx, fmt.Sprintf("idn_malformed_%d", time.Now().UnixNano()), "", "")
	require.NoError(t, err)

	forms := NewFormRepository(pool)
	got, err := forms.Get(ctx, "abc", acct.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	res, err := forms.Delete(ctx, "abc", acct.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MutationNotFoundOrForbidden, res)

	res, err = forms.MergeSettings(ctx, "abc", acct.ID, map[string]any{"theme": "dark"})
	require.NoError(t, err)
	assert.Equal(t, types.MutationNotFoundOrForbidden, res)

	res, err = NewAPIKeyRepository(pool).Delete(ctx, acct.ID, "abc")
	require.NoError(t, err)
	assert.Equal(t, types.MutationNotFoundOrForbidden, res)

	subs, err := NewSubmissionRepository(pool).ListByForm(ctx, "abc", acct.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestIntegration_APIKeyLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	accounts := NewAccountRepository(pool)
	keys := NewAPIKeyRepository(pool)

	acct, err := accounts.ResolveOrCreate(ctx, fmt.Sprintf("idn_keys_%d", time.Now().UnixNano()), "", "")
	require.NoError(t, err)

	first, err := keys.Insert(ctx, acct.ID, "first", fmt.Sprintf("h1_%d", time.Now().UnixNano()), "fg_1111")
	require.NoError(t, err)
	_, err = keys.Insert(ctx, acct.ID, "dup", first.TokenHash, "fg_1111")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictTokenCollision, appErr.Code)

	touched, err := keys.TouchByHash(ctx, first.TokenHash)
	require.NoError(t, err)
	require.NotNil(t, touched.LastUsedAt)

	res, err := keys.Delete(ctx, acct.ID, first.ID)
	require.NoError(t, err)
	assert.True(t, res.Applied())

	res, err = keys.Delete(ctx, acct.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MutationNotFoundOrForbidden, res, "revoking twice must report the key as gone")

	missing, err := keys.TouchByHash(ctx, first.TokenHash)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
