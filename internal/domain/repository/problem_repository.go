package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"codeduel/internal/common"
	"codeduel/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type ProblemRepository interface {
	CreateProblem(ctx context.Context, tx *sql.Tx, problem *model.Problem) error
	FindProblemByID(ctx context.Context, id string) (*model.Problem, error)
	FindProblemBySlug(ctx context.Context, slug string) (*model.Problem, error)
	ListProblems(ctx context.Context, limit, offset int) ([]model.Problem, error)
	GetRandomProblem(ctx context.Context, difficulty model.ProblemDifficulty) (*model.Problem, error)

	AddTestCases(ctx context.Context, tx *sql.Tx, problemID string, testCases []model.TestCase) error
	GetTestCasesByProblemID(ctx context.Context, problemID string) ([]model.TestCase, error)
	GetExamplesByProblemID(ctx context.Context, problemID string) ([]model.Example, error)
}

type pgProblemRepository struct {
	db *sql.DB
}

func NewPgProblemRepository(db *sql.DB) ProblemRepository {
	return &pgProblemRepository{db: db}
}

func (r *pgProblemRepository) CreateProblem(ctx context.Context, tx *sql.Tx, p *model.Problem) error {
	query := `INSERT INTO problems (id, title, slug, description, difficulty, runtime_limit_ms, memory_limit_kb, created_by)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, p.ID, p.Title, p.Slug, p.Description, p.Difficulty, p.RuntimeLimitMs, p.MemoryLimitKb, p.CreatedByID)
	} else {
		_, err = r.db.ExecContext(ctx, query, p.ID, p.Title, p.Slug, p.Description, p.Difficulty, p.RuntimeLimitMs, p.MemoryLimitKb, p.CreatedByID)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("problem with this slug already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgProblemRepository.CreateProblem: %w", err)
	}
	return nil
}

func (r *pgProblemRepository) FindProblemByID(ctx context.Context, id string) (*model.Problem, error) {
	return r.findBy(ctx, "id", id)
}

func (r *pgProblemRepository) FindProblemBySlug(ctx context.Context, slug string) (*model.Problem, error) {
	return r.findBy(ctx, "slug", slug)
}

func (r *pgProblemRepository) findBy(ctx context.Context, column, value string) (*model.Problem, error) {
	query := fmt.Sprintf(`SELECT id, title, slug, description, difficulty, runtime_limit_ms, memory_limit_kb, created_by, created_at, updated_at
	          FROM problems WHERE %s = $1`, column)
	var p model.Problem
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&p.ID, &p.Title, &p.Slug, &p.Description, &p.Difficulty,
		&p.RuntimeLimitMs, &p.MemoryLimitKb, &p.CreatedByID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProblemRepository.findBy %s: %w", column, err)
	}
	return &p, nil
}

func (r *pgProblemRepository) ListProblems(ctx context.Context, limit, offset int) ([]model.Problem, error) {
	query := `SELECT id, title, slug, description, difficulty, runtime_limit_ms, memory_limit_kb, created_by, created_at, updated_at
	          FROM problems ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.ListProblems: %w", err)
	}
	defer rows.Close()

	var problems []model.Problem
	for rows.Next() {
		var p model.Problem
		if err := rows.Scan(&p.ID, &p.Title, &p.Slug, &p.Description, &p.Difficulty,
			&p.RuntimeLimitMs, &p.MemoryLimitKb, &p.CreatedByID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.ListProblems scan: %w", err)
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

// GetRandomProblem picks a problem for duel rooms, optionally filtered by difficulty.
func (r *pgProblemRepository) GetRandomProblem(ctx context.Context, difficulty model.ProblemDifficulty) (*model.Problem, error) {
	query := `SELECT id, title, slug, description, difficulty, runtime_limit_ms, memory_limit_kb, created_by, created_at, updated_at
	          FROM problems`
	args := []interface{}{}
	if difficulty != "" {
		query += ` WHERE difficulty = $1`
		args = append(args, difficulty)
	}
	query += ` ORDER BY random() LIMIT 1`

	var p model.Problem
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &p.Title, &p.Slug, &p.Description, &p.Difficulty,
		&p.RuntimeLimitMs, &p.MemoryLimitKb, &p.CreatedByID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProblemRepository.GetRandomProblem: %w", err)
	}
	return &p, nil
}

func (r *pgProblemRepository) AddTestCases(ctx context.Context, tx *sql.Tx, problemID string, testCases []model.TestCase) error {
	query := `INSERT INTO test_cases (id, problem_id, input, expected_output, is_hidden, sort_order)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	for _, tc := range testCases {
		var err error
		if tx != nil {
			_, err = tx.ExecContext(ctx, query, tc.ID, problemID, tc.Input, tc.ExpectedOutput, tc.IsHidden, tc.SortOrder)
		} else {
			_, err = r.db.ExecContext(ctx, query, tc.ID, problemID, tc.Input, tc.ExpectedOutput, tc.IsHidden, tc.SortOrder)
		}
		if err != nil {
			return fmt.Errorf("pgProblemRepository.AddTestCases: %w", err)
		}
	}
	return nil
}

func (r *pgProblemRepository) GetTestCasesByProblemID(ctx context.Context, problemID string) ([]model.TestCase, error) {
	query := `SELECT id, problem_id, input, expected_output, is_hidden, sort_order, created_at
	          FROM test_cases WHERE problem_id = $1 ORDER BY sort_order ASC`
	rows, err := r.db.QueryContext(ctx, query, problemID)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.GetTestCasesByProblemID: %w", err)
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Input, &tc.ExpectedOutput, &tc.IsHidden, &tc.SortOrder, &tc.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.GetTestCasesByProblemID scan: %w", err)
		}
		cases = append(cases, tc)
	}
	return cases, rows.Err()
}

func (r *pgProblemRepository) GetExamplesByProblemID(ctx context.Context, problemID string) ([]model.Example, error) {
	query := `SELECT id, problem_id, input, expected_output, explanation, sort_order, created_at
	          FROM examples WHERE problem_id = $1 ORDER BY sort_order ASC`
	rows, err := r.db.QueryContext(ctx, query, problemID)
	if err != nil {
		return nil, fmt.Errorf("pgProblemRepository.GetExamplesByProblemID: %w", err)
	}
	defer rows.Close()

	var examples []model.Example
	for rows.Next() {
		var ex model.Example
		if err := rows.Scan(&ex.ID, &ex.ProblemID, &ex.Input, &ex.ExpectedOutput, &ex.Explanation, &ex.SortOrder, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgProblemRepository.GetExamplesByProblemID scan: %w", err)
		}
		examples = append(examples, ex)
	}
	return examples, rows.Err()
}
