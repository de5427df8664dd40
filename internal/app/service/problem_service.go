package service

import (
	"context"
	"database/sql"

	"codeduel/internal/common"
	"codeduel/internal/domain/model"
	"codeduel/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

type ProblemService struct {
	problemRepo      repository.ProblemRepository
	db               *sql.DB
	defaultRuntimeMs int
	defaultMemoryKb  int
}

func NewProblemService(problemRepo repository.ProblemRepository, db *sql.DB, defaultRuntimeMs, defaultMemoryKb int) *ProblemService {
	return &ProblemService{
		problemRepo:      problemRepo,
		db:               db,
		defaultRuntimeMs: defaultRuntimeMs,
		defaultMemoryKb:  defaultMemoryKb,
	}
}

type CreateProblemRequest struct {
	Title          string                  `json:"title"`
	Description    string                  `json:"description"`
	Difficulty     model.ProblemDifficulty `json:"difficulty"`
	RuntimeLimitMs int                     `json:"runtime_limit_ms"`
	MemoryLimitKb  int                     `json:"memory_limit_kb"`
	TestCases      []struct {
		Input          string `json:"input"`
		ExpectedOutput string `json:"expected_output"`
		IsHidden       bool   `json:"is_hidden"`
	} `json:"test_cases"`
}

func (s *ProblemService) CreateProblem(ctx context.Context, creatorID string, req CreateProblemRequest) (*model.Problem, error) {
	if req.Title == "" || req.Description == "" {
		return nil, common.Errorf("title and description are required: %w", common.ErrValidation)
	}
	if len(req.TestCases) == 0 {
		return nil, common.Errorf("at least one test case is required: %w", common.ErrValidation)
	}
	s.applyLimitDefaults(&req)

	problem := &model.Problem{
		ID:             uuid.NewString(),
		Title:          req.Title,
		Slug:           slug.Make(req.Title),
		Description:    req.Description,
		Difficulty:     req.Difficulty,
		RuntimeLimitMs: req.RuntimeLimitMs,
		MemoryLimitKb:  req.MemoryLimitKb,
		CreatedByID:    &creatorID,
	}

	var testCases []model.TestCase
	for i, tc := range req.TestCases {
		testCases = append(testCases, model.TestCase{
			ID:             uuid.NewString(),
			ProblemID:      problem.ID,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			IsHidden:       tc.IsHidden,
			SortOrder:      i,
		})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.problemRepo.CreateProblem(ctx, tx, problem); err != nil {
		return nil, err
	}
	if err := s.problemRepo.AddTestCases(ctx, tx, problem.ID, testCases); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, common.Errorf("failed to commit transaction: %w", err)
	}
	return problem, nil
}

// applyLimitDefaults fills judge limits from configuration when the request
// leaves them unset.
func (s *ProblemService) applyLimitDefaults(req *CreateProblemRequest) {
	if req.RuntimeLimitMs <= 0 {
		req.RuntimeLimitMs = s.defaultRuntimeMs
	}
	if req.MemoryLimitKb <= 0 {
		req.MemoryLimitKb = s.defaultMemoryKb
	}
}

// GetProblem returns the problem with its public examples. Hidden test cases
// never leave the service layer.
func (s *ProblemService) GetProblem(ctx context.Context, problemSlug string) (*model.Problem, error) {
	problem, err := s.problemRepo.FindProblemBySlug(ctx, problemSlug)
	if err != nil {
		return nil, err
	}
	examples, err := s.problemRepo.GetExamplesByProblemID(ctx, problem.ID)
	if err != nil {
		return nil, err
	}
	problem.Examples = examples
	return problem, nil
}

func (s *ProblemService) ListProblems(ctx context.Context, limit, offset int) ([]model.Problem, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.problemRepo.ListProblems(ctx, limit, offset)
}

// RandomProblem picks a duel problem, optionally filtered by difficulty.
func (s *ProblemService) RandomProblem(ctx context.Context, difficulty model.ProblemDifficulty) (*model.Problem, error) {
	return s.problemRepo.GetRandomProblem(ctx, difficulty)
}
