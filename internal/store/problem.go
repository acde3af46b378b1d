package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/codearena/judge/types"
)

// ProblemRepository handles persistence for the problem catalog.
type ProblemRepository struct {
	db *sql.DB
}

func NewProblemRepository(db *sql.DB) *ProblemRepository {
	return &ProblemRepository{db: db}
}

func (r *ProblemRepository) List(ctx context.Context, offset, limit int) ([]types.Problem, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM problems`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT id, title, archive_key, testcase_count, updated_at
		FROM problems
		ORDER BY id
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, listQuery, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	problems := make([]types.Problem, 0, limit)
	for rows.Next() {
		var problem types.Problem
		if err := rows.Scan(
			&problem.ID,
			&problem.Title,
			&problem.ArchiveKey,
			&problem.TestCaseCount,
			&problem.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		problems = append(problems, problem)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return problems, total, nil
}

func (r *ProblemRepository) Get(ctx context.Context, id int) (types.Problem, error) {
	const query = `
		SELECT id, title, archive_key, testcase_count, updated_at
		FROM problems
		WHERE id = $1`
	var problem types.Problem
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&problem.ID,
		&problem.Title,
		&problem.ArchiveKey,
		&problem.TestCaseCount,
		&problem.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Problem{}, ErrNotFound
		}
		return types.Problem{}, err
	}
	return problem, nil
}

// Upsert creates the problem or updates its archive metadata. An empty
// title keeps the stored one.
func (r *ProblemRepository) Upsert(ctx context.Context, problem types.Problem) (types.Problem, error) {
	problem.UpdatedAt = time.Now().UTC()

	const query = `
		INSERT INTO problems (id, title, archive_key, testcase_count, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET title = COALESCE(NULLIF(EXCLUDED.title, ''), problems.title),
			archive_key = EXCLUDED.archive_key,
			testcase_count = EXCLUDED.testcase_count,
			updated_at = EXCLUDED.updated_at
		RETURNING title`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		problem.ID,
		problem.Title,
		problem.ArchiveKey,
		problem.TestCaseCount,
		problem.UpdatedAt,
	).Scan(&problem.Title); err != nil {
		return types.Problem{}, err
	}

	return problem, nil
}
