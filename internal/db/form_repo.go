package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"formguard/internal/types"
)

// FormRepository provides ownership-scoped access to the forms table.
// Reads return nil and writes return MutationNotFoundOrForbidden when the
// form is absent or owned by another account; the two cases are never
// distinguished.
type FormRepository struct {
	db DBTX
}

// NewFormRepository creates a new FormRepository backed by the given
// database connection (pool or transaction).
func NewFormRepository(db DBTX) *FormRepository {
	return &FormRepository{db: db}
}

var formColumnList = []string{"id", "account_id", "endpoint_id", "name", "settings", "created_at", "updated_at"}

var formColumns = strings.Join(formColumnList, ", ")

// Create inserts a form. An endpoint id collision returns
// conflict_endpoint_collision so the caller can pick another id.
func (r *FormRepository) Create(ctx context.Context, accountID, endpointID, name string, settings types.FormSettings) (*types.Form, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO forms (account_id, endpoint_id, name, settings)
		 VALUES ($1, $2, $3, $4)
		 RETURNING %s`, formColumns),
		accountID,
		endpointID,
		name,
		settings,
	)
	form, err := scanForm(row)
	if err != nil {
		if isUniqueViolation(err) && constraintName(err) == "forms_endpoint_id_key" {
			return nil, types.NewAppError(types.ErrCodeConflictEndpointCollision, "endpoint id already in use", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create form", err)
	}
	return form, nil
}

// Get returns the form only if accountID owns it.
func (r *FormRepository) Get(ctx context.Context, formID, accountID string) (*types.Form, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM forms WHERE id = $1 AND account_id = $2`, formColumns),
		formID,
		accountID,
	)
	form, err := scanForm(row)
	if err != nil {
		if isAbsent(err) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve form", err)
	}
	return form, nil
}

// GetByEndpoint resolves the public endpoint id used by the hosted submission route.
func (r *FormRepository) GetByEndpoint(ctx context.Context, endpointID string) (*types.Form, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM forms WHERE endpoint_id = $1`, formColumns),
		endpointID,
	)
	form, err := scanForm(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve form endpoint", err)
	}
	return form, nil
}

// List returns the account's forms, newest first.
func (r *FormRepository) List(ctx context.Context, accountID string) ([]*types.Form, error) {
	query, args, err := psql.Select(formColumnList...).
		From("forms").
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("created_at DESC", "id").
		ToSql()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build form list query", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query forms", err)
	}
	defer rows.Close()

	forms := make([]*types.Form, 0)
	for rows.Next() {
		form, scanErr := scanForm(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan form row", scanErr)
		}
		forms = append(forms, form)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating form rows", err)
	}
	return forms, nil
}

// CountByAccount returns how many forms the account owns.
func (r *FormRepository) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM forms WHERE account_id = $1`,
		accountID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count forms", err)
	}
	return count, nil
}

// Update applies the non-nil fields of patch to a form owned by accountID.
// Settings are merged like MergeSettings: every typed field in the patch is
// written, and stored keys the typed struct does not know are kept.
// An empty patch still verifies ownership by touching updated_at.
func (r *FormRepository) Update(ctx context.Context, formID, accountID string, patch types.FormPatch) (types.MutationResult, error) {
	builder := psql.Update("forms").
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": formID, "account_id": accountID})
	if patch.Name != nil {
		builder = builder.Set("name", *patch.Name)
	}
	if patch.Settings != nil {
		builder = builder.Set("settings", squirrel.Expr("settings || ?::jsonb", *patch.Settings))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return types.MutationNotFoundOrForbidden, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build form update", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if isInvalidInput(err) {
		return types.MutationNotFoundOrForbidden, nil
	}
	if err != nil {
		return types.MutationNotFoundOrForbidden, types.NewAppError(types.ErrCodeInternalDB, "failed to update form", err)
	}
	return types.ResultFromRowsAffected(tag.RowsAffected()), nil
}

// MergeSettings shallow-merges patch into the form's settings document.
// Keys in patch overwrite existing keys; other keys are preserved.
func (r *FormRepository) MergeSettings(ctx context.Context, formID, accountID string, patch map[string]any) (types.MutationResult, error) {
	doc, err := json.Marshal(patch)
	if err != nil {
		return types.MutationNotFoundOrForbidden, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode settings patch", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE forms SET settings = settings || $1::jsonb, updated_at = NOW()
		 WHERE id = $2 AND account_id = $3`,
		string(doc),
		formID,
		accountID,
	)
	if isInvalidInput(err) {
		return types.MutationNotFoundOrForbidden, nil
	}
	if err != nil {
		return types.MutationNotFoundOrForbidden, types.NewAppError(types.ErrCodeInternalDB, "failed to update form settings", err)
	}
	return types.ResultFromRowsAffected(tag.RowsAffected()), nil
}

// Delete removes a form owned by accountID. Submissions and insights cascade.
func (r *FormRepository) Delete(ctx context.Context, formID, accountID string) (types.MutationResult, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM forms WHERE id = $1 AND account_id = $2`,
		formID,
		accountID,
	)
	if isInvalidInput(err) {
		return types.MutationNotFoundOrForbidden, nil
	}
	if err != nil {
		return types.MutationNotFoundOrForbidden, types.NewAppError(types.ErrCodeInternalDB, "failed to delete form", err)
	}
	return types.ResultFromRowsAffected(tag.RowsAffected()), nil
}

func scanForm(row pgx.Row) (*types.Form, error) {
	var f types.Form
	err := row.Scan(
		&f.ID,
		&f.AccountID,
		&f.EndpointID,
		&f.Name,
		&f.Settings,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
