package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"formguard/internal/types"
)

// InsightRepository provides data access for the insights table.
type InsightRepository struct {
	db DBTX
}

// NewInsightRepository creates a new InsightRepository backed by the given
// database connection (pool or transaction).
func NewInsightRepository(db DBTX) *InsightRepository {
	return &InsightRepository{db: db}
}

// Create appends an insight to a form. Plan limits are checked by callers.
func (r *InsightRepository) Create(ctx context.Context, formID, summary string) (*types.Insight, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO insights (form_id, summary) VALUES ($1, $2)
		 RETURNING id, form_id, summary, created_at`,
		formID,
		summary,
	)
	insight, err := scanInsight(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create insight", err)
	}
	return insight, nil
}

// CountByAccount counts insights across every form the account owns.
// The account id is always a bound parameter; one that is not a UUID
// matches nothing and counts zero.
func (r *InsightRepository) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(i.id) FROM insights i
		 JOIN forms f ON f.id = i.form_id
		 WHERE f.account_id = $1`,
		accountID,
	).Scan(&count)
	if err != nil && !isInvalidInput(err) {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count insights", err)
	}
	return count, nil
}

// ListByForm returns a form's insights, newest first, if accountID owns the form.
func (r *InsightRepository) ListByForm(ctx context.Context, formID, accountID string) ([]*types.Insight, error) {
	rows, err := r.db.Query(ctx,
		`SELECT i.id, i.form_id, i.summary, i.created_at FROM insights i
		 JOIN forms f ON f.id = i.form_id
		 WHERE i.form_id = $1 AND f.account_id = $2
		 ORDER BY i.created_at DESC`,
		formID,
		accountID,
	)
	if isInvalidInput(err) {
		return []*types.Insight{}, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query insights", err)
	}
	defer rows.Close()

	out := make([]*types.Insight, 0)
	for rows.Next() {
		insight, scanErr := scanInsight(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan insight row", scanErr)
		}
		out = append(out, insight)
	}
	if err := rows.Err(); err != nil {
		if isInvalidInput(err) {
			return []*types.Insight{}, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating insight rows", err)
	}
	return out, nil
}

func scanInsight(row pgx.Row) (*types.Insight, error) {
	var i types.Insight
	if err := row.Scan(&i.ID, &i.FormID, &i.Summary, &i.CreatedAt); err != nil {
		return nil, err
	}
	return &i, nil
}
