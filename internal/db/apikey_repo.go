package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"formguard/internal/types"
)

// APIKeyRepository provides data access for the api_keys table. Only the
// SHA-256 digest of a token is stored; lookups are an equality match on the
// unique token_hash index.
type APIKeyRepository struct {
	db DBTX
}

// NewAPIKeyRepository creates a new APIKeyRepository backed by the given
// database connection (pool or transaction).
func NewAPIKeyRepository(db DBTX) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// apiKeyColumns includes token_hash for internal use; it is never serialized.
const apiKeyColumns = `id, account_id, token_hash, token_prefix, name, last_used_at, created_at`

// Insert stores a new key. A token hash collision returns
// conflict_token_collision so the caller can regenerate and retry.
func (r *APIKeyRepository) Insert(ctx context.Context, accountID, name, tokenHash, tokenPrefix string) (*types.APIKey, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO api_keys (account_id, token_hash, token_prefix, name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING %s`, apiKeyColumns),
		accountID,
		tokenHash,
		tokenPrefix,
		name,
	)
	key, err := scanAPIKeyRow(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, types.NewAppError(types.ErrCodeConflictTokenCollision, "api key token collision", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create API key", err)
	}
	return key, nil
}

// ListByAccount returns every key of an account, oldest first.
func (r *APIKeyRepository) ListByAccount(ctx context.Context, accountID string) ([]*types.APIKey, error) {
	rows, err := r.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM api_keys WHERE account_id = $1 ORDER BY created_at ASC, id ASC`, apiKeyColumns),
		accountID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query API keys", err)
	}
	defer rows.Close()

	results := make([]*types.APIKey, 0)
	for rows.Next() {
		key, scanErr := scanAPIKeyRow(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan API key row", scanErr)
		}
		results = append(results, key)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating API key rows", err)
	}
	return results, nil
}

// Delete removes a key only if it belongs to accountID. A missing key and a
// key owned by someone else both yield MutationNotFoundOrForbidden.
func (r *APIKeyRepository) Delete(ctx context.Context, accountID, keyID string) (types.MutationResult, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM api_keys WHERE id = $1 AND account_id = $2`,
		keyID,
		accountID,
	)
	if isInvalidInput(err) {
		return types.MutationNotFoundOrForbidden, nil
	}
	if err != nil {
		return types.MutationNotFoundOrForbidden, types.NewAppError(types.ErrCodeInternalDB, "failed to revoke API key", err)
	}
	return types.ResultFromRowsAffected(tag.RowsAffected()), nil
}

// TouchByHash resolves a token digest and stamps last_used_at in one
// statement. Returns nil when no key matches.
func (r *APIKeyRepository) TouchByHash(ctx context.Context, tokenHash string) (*types.APIKey, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`UPDATE api_keys SET last_used_at = NOW()
		 WHERE token_hash = $1
		 RETURNING %s`, apiKeyColumns),
		tokenHash,
	)
	key, err := scanAPIKeyRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to validate API key", err)
	}
	return key, nil
}

// scanAPIKeyRow accepts pgx.Row; pgx.Rows satisfies it too. Column order must
// match apiKeyColumns.
func scanAPIKeyRow(row pgx.Row) (*types.APIKey, error) {
	var key types.APIKey
	err := row.Scan(
		&key.ID,
		&key.AccountID,
		&key.TokenHash,
		&key.TokenPrefix,
		&key.Name,
		&key.LastUsedAt,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}
