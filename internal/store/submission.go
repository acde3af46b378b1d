package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codearena/judge/types"
)

// SubmissionRepository persists submissions. Rows are only ever inserted.
type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `
	id, evaluation_id, user_id, problem_id, language_id, source_code,
	results, passed_count, total_count, all_passed, analysis, summary, created_at`

// Append inserts a record and, when every test case passed, marks the
// problem solved for the user. Both happen in one transaction.
func (r *SubmissionRepository) Append(ctx context.Context, record types.SubmissionRecord) (int64, error) {
	resultsJSON, err := json.Marshal(record.Report.Results)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const insertSubmission = `
		INSERT INTO submissions (
			evaluation_id, user_id, problem_id, language_id, source_code,
			results, passed_count, total_count, all_passed, analysis, summary, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`
	var id int64
	if err := tx.QueryRowContext(
		ctx,
		insertSubmission,
		record.EvaluationID,
		record.UserID,
		record.ProblemID,
		int(record.LanguageID),
		record.SourceCode,
		string(resultsJSON),
		record.Report.PassedCount,
		record.Report.TotalCount,
		record.Report.AllPassed,
		record.Analysis,
		record.Summary,
		record.CreatedAt,
	).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: evaluation %s", ErrDuplicate, record.EvaluationID)
		}
		return 0, fmt.Errorf("insert submission: %w", err)
	}

	if record.Report.AllPassed {
		const markSolved = `
			INSERT INTO solved_problems (user_id, problem_id, solved_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, problem_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, markSolved, record.UserID, record.ProblemID, record.CreatedAt); err != nil {
			return 0, fmt.Errorf("mark problem solved: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// Latest returns the user's most recent submission for a problem.
func (r *SubmissionRepository) Latest(ctx context.Context, userID, problemID int) (types.SubmissionRecord, error) {
	query := `SELECT ` + submissionColumns + `
		FROM submissions
		WHERE user_id = $1 AND problem_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	record, err := scanSubmission(r.db.QueryRowContext(ctx, query, userID, problemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.SubmissionRecord{}, ErrNotFound
		}
		return types.SubmissionRecord{}, err
	}
	return record, nil
}

// ListByUser returns a page of the user's submissions, newest first.
func (r *SubmissionRepository) ListByUser(ctx context.Context, userID, offset, limit int) ([]types.SubmissionRecord, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM submissions WHERE user_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + submissionColumns + `
		FROM submissions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := make([]types.SubmissionRecord, 0, limit)
	for rows.Next() {
		record, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// SolvedProblems lists the problem ids the user has fully solved.
func (r *SubmissionRepository) SolvedProblems(ctx context.Context, userID int) ([]int, error) {
	const query = `SELECT problem_id FROM solved_problems WHERE user_id = $1 ORDER BY problem_id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (types.SubmissionRecord, error) {
	var record types.SubmissionRecord
	var languageID int
	var resultsJSON []byte
	err := row.Scan(
		&record.ID,
		&record.EvaluationID,
		&record.UserID,
		&record.ProblemID,
		&languageID,
		&record.SourceCode,
		&resultsJSON,
		&record.Report.PassedCount,
		&record.Report.TotalCount,
		&record.Report.AllPassed,
		&record.Analysis,
		&record.Summary,
		&record.CreatedAt,
	)
	if err != nil {
		return types.SubmissionRecord{}, err
	}
	record.LanguageID = types.LanguageID(languageID)
	if err := json.Unmarshal(resultsJSON, &record.Report.Results); err != nil {
		return types.SubmissionRecord{}, fmt.Errorf("decode results of submission %d: %w", record.ID, err)
	}
	return record, nil
}
