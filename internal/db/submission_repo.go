package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"formguard/internal/types"
)

// SubmissionRepository provides data access for the submissions table.
type SubmissionRepository struct {
	db DBTX
}

// NewSubmissionRepository creates a new SubmissionRepository backed by the
// given database connection (pool or transaction).
func NewSubmissionRepository(db DBTX) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `s.id, s.form_id, s.data, s.ip_address, s.user_agent, s.created_at`

// Create stores a submission for a form resolved from its public endpoint.
func (r *SubmissionRepository) Create(ctx context.Context, formID string, data types.SubmissionData, ipAddress, userAgent string) (*types.Submission, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO submissions AS s (form_id, data, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+submissionColumns,
		formID,
		data,
		ipAddress,
		userAgent,
	)
	sub, err := scanSubmission(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to store submission", err)
	}
	return sub, nil
}

// ListByForm returns the newest submissions of a form owned by accountID.
func (r *SubmissionRepository) ListByForm(ctx context.Context, formID, accountID string, limit int) ([]*types.Submission, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM submissions s
		 JOIN forms f ON f.id = s.form_id
		 WHERE s.form_id = $1 AND f.account_id = $2
		 ORDER BY s.created_at DESC
		 LIMIT $3`, submissionColumns),
		formID,
		accountID,
		limit,
	)
	if isInvalidInput(err) {
		return []*types.Submission{}, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query submissions", err)
	}
	defer rows.Close()

	subs := make([]*types.Submission, 0)
	for rows.Next() {
		sub, scanErr := scanSubmission(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan submission row", scanErr)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		if isInvalidInput(err) {
			return []*types.Submission{}, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating submission rows", err)
	}
	return subs, nil
}

// CountByForm counts a form's submissions; zero when the form is not owned.
func (r *SubmissionRepository) CountByForm(ctx context.Context, formID, accountID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions s
		 JOIN forms f ON f.id = s.form_id
		 WHERE s.form_id = $1 AND f.account_id = $2`,
		formID,
		accountID,
	).Scan(&count)
	if err != nil && !isInvalidInput(err) {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count form submissions", err)
	}
	return count, nil
}

// CountForAccountSince counts submissions across all of an account's forms
// received at or after since.
func (r *SubmissionRepository) CountForAccountSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions s
		 JOIN forms f ON f.id = s.form_id
		 WHERE f.account_id = $1 AND s.created_at >= $2`,
		accountID,
		since,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count submissions", err)
	}
	return count, nil
}

func scanSubmission(row pgx.Row) (*types.Submission, error) {
	var s types.Submission
	if err := row.Scan(&s.ID, &s.FormID, &s.Data, &s.IPAddress, &s.UserAgent, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
