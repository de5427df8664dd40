package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"codeduel/internal/app/judge"
	"codeduel/internal/common"
	"codeduel/internal/common/clock"
	"codeduel/internal/domain/model"
	"codeduel/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SubmissionService turns a (code, language, problem) triple into a verdict
// by driving the judge across the problem's full test case set. Contests and
// duels both consume the same verdict shape.
type SubmissionService struct {
	submissionRepo        repository.SubmissionRepository
	problemRepo           repository.ProblemRepository
	contestRepo           repository.ContestRepository
	judgeClient           judge.Client
	leaderboard           *LeaderboardService
	rdb                   *redis.Client
	clk                   clock.Clock
	queueName             string
	maxSubmissionsDefault int
}

func NewSubmissionService(
	submissionRepo repository.SubmissionRepository,
	problemRepo repository.ProblemRepository,
	contestRepo repository.ContestRepository,
	judgeClient judge.Client,
	leaderboard *LeaderboardService,
	rdb *redis.Client,
	clk clock.Clock,
	queueName string,
	maxSubmissionsDefault int,
) *SubmissionService {
	return &SubmissionService{
		submissionRepo:        submissionRepo,
		problemRepo:           problemRepo,
		contestRepo:           contestRepo,
		judgeClient:           judgeClient,
		leaderboard:           leaderboard,
		rdb:                   rdb,
		clk:                   clk,
		queueName:             queueName,
		maxSubmissionsDefault: maxSubmissionsDefault,
	}
}

// Evaluate drives the judge sequentially over every test case and aggregates
// a verdict. Hidden cases report pass/fail only; the first failing visible
// case carries full details. A judge transport failure yields a SystemError
// verdict for this submission alone and is reported to the caller.
func (s *SubmissionService) Evaluate(ctx context.Context, problem *model.Problem, testCases []model.TestCase, code, language string) (model.Verdict, error) {
	verdict := model.Verdict{Total: len(testCases)}
	if len(testCases) == 0 {
		verdict.Status = model.StatusSystemError
		return verdict, fmt.Errorf("problem %s has no test cases: %w", problem.ID, common.ErrInternalServer)
	}

	cpuSeconds := float64(problem.RuntimeLimitMs) / 1000.0
	wallSeconds := cpuSeconds * 2

	for _, tc := range testCases {
		expected := tc.ExpectedOutput
		resp, err := s.judgeClient.Execute(ctx, judge.Request{
			SourceCode:     code,
			LanguageID:     language,
			Stdin:          tc.Input,
			ExpectedOutput: &expected,
			CPUTimeLimit:   cpuSeconds,
			MemoryLimit:    problem.MemoryLimitKb,
			WallTimeLimit:  wallSeconds,
		})
		if err != nil {
			verdict.Status = model.StatusSystemError
			return verdict, err
		}

		status := resp.Status.SubmissionStatus()
		result := model.CaseResult{
			TestCaseID: tc.ID,
			Hidden:     tc.IsHidden,
			Status:     status,
			MemoryKb:   resp.Memory,
		}
		if resp.Time != nil {
			if ms, ok := parseTimeMs(*resp.Time); ok {
				result.TimeMs = &ms
			}
		}
		if !tc.IsHidden {
			result.Input = tc.Input
			result.ExpectedOutput = tc.ExpectedOutput
			if resp.Stdout != nil {
				result.ActualOutput = *resp.Stdout
			}
			if resp.CompileOutput != nil {
				result.CompileOutput = *resp.CompileOutput
			}
		}
		verdict.CaseResults = append(verdict.CaseResults, result)

		if status == model.StatusAccepted {
			verdict.Passed++
			continue
		}
		if verdict.FirstFailure == nil && !tc.IsHidden {
			failure := result
			verdict.FirstFailure = &failure
		}
		if verdict.Status == "" {
			verdict.Status = status
		}
	}

	if verdict.Passed == verdict.Total {
		verdict.Status = model.StatusAccepted
	}
	return verdict, nil
}

// EvaluateForDuel resolves the problem's test cases and judges the code,
// feeding the duel orchestrator's winner arbitration.
func (s *SubmissionService) EvaluateForDuel(ctx context.Context, problemID, code, language string) (model.Verdict, error) {
	problem, err := s.problemRepo.FindProblemByID(ctx, problemID)
	if err != nil {
		return model.Verdict{}, common.Errorf("problem not found: %w", err)
	}
	testCases, err := s.problemRepo.GetTestCasesByProblemID(ctx, problemID)
	if err != nil {
		return model.Verdict{}, common.Errorf("failed to fetch test cases: %w", err)
	}
	return s.Evaluate(ctx, problem, testCases, code, language)
}

type ContestSubmitRequest struct {
	ContestID string `json:"contest_id"`
	ProblemID string `json:"problem_id"`
	Language  string `json:"language"`
	Code      string `json:"code"`
}

// SubmitToContest is the synchronous path: validate, judge, persist, refresh
// the leaderboard.
func (s *SubmissionService) SubmitToContest(ctx context.Context, userID string, req ContestSubmitRequest) (*model.ContestSubmission, model.Verdict, error) {
	sub, problem, testCases, err := s.prepareContestSubmission(ctx, userID, req)
	if err != nil {
		return nil, model.Verdict{}, err
	}

	verdict, judgeErr := s.Evaluate(ctx, problem, testCases, req.Code, req.Language)
	sub.Status = verdict.Status
	sub.IsAccepted = verdict.Accepted()
	if sub.IsAccepted {
		sub.Points = s.problemPoints(ctx, req.ContestID, sub.ProblemID)
	}

	if err := s.submissionRepo.CreateContestSubmission(ctx, nil, sub); err != nil {
		return nil, verdict, err
	}
	if judgeErr != nil {
		// The errored verdict is recorded against this submission only; the
		// rest of the scoreboard is unaffected.
		log.Printf("ERROR: judge failure for submission %s: %v", sub.ID, judgeErr)
	}

	if _, err := s.leaderboard.Recompute(ctx, req.ContestID, sub.IsVirtual); err != nil {
		log.Printf("WARN: leaderboard recompute failed for contest %s: %v", req.ContestID, err)
	}
	return sub, verdict, nil
}

// EnqueueContestSubmission is the asynchronous path: persist the submission
// as InQueue and hand its id to the background worker, which applies the
// identical verdict semantics.
func (s *SubmissionService) EnqueueContestSubmission(ctx context.Context, userID string, req ContestSubmitRequest) (*model.ContestSubmission, error) {
	sub, _, _, err := s.prepareContestSubmission(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	sub.Status = model.StatusInQueue

	if err := s.submissionRepo.CreateContestSubmission(ctx, nil, sub); err != nil {
		return nil, err
	}
	if err := s.rdb.LPush(ctx, s.queueName, sub.ID).Err(); err != nil {
		return nil, common.Errorf("failed to enqueue submission: %w", err)
	}
	log.Printf("INFO: submission %s enqueued for asynchronous evaluation", sub.ID)
	return sub, nil
}

// ProcessQueuedSubmission evaluates one previously-enqueued submission. The
// worker loop calls this once per popped id.
func (s *SubmissionService) ProcessQueuedSubmission(ctx context.Context, submissionID string) error {
	sub, err := s.submissionRepo.GetContestSubmissionByID(ctx, submissionID)
	if err != nil {
		return common.Errorf("queued submission %s not found: %w", submissionID, err)
	}
	problem, err := s.problemRepo.FindProblemByID(ctx, sub.ProblemID)
	if err != nil {
		return err
	}
	testCases, err := s.problemRepo.GetTestCasesByProblemID(ctx, sub.ProblemID)
	if err != nil {
		return err
	}

	verdict, judgeErr := s.Evaluate(ctx, problem, testCases, sub.Code, sub.Language)
	if judgeErr != nil {
		log.Printf("ERROR: judge failure for queued submission %s: %v", sub.ID, judgeErr)
	}

	points := 0
	if verdict.Accepted() {
		points = s.problemPoints(ctx, sub.ContestID, sub.ProblemID)
	}
	if err := s.submissionRepo.UpdateContestSubmissionVerdict(ctx, sub.ID, verdict.Status, verdict.Accepted(), points); err != nil {
		return err
	}
	if _, err := s.leaderboard.Recompute(ctx, sub.ContestID, sub.IsVirtual); err != nil {
		log.Printf("WARN: leaderboard recompute failed for contest %s: %v", sub.ContestID, err)
	}
	return nil
}

func (s *SubmissionService) prepareContestSubmission(ctx context.Context, userID string, req ContestSubmitRequest) (*model.ContestSubmission, *model.Problem, []model.TestCase, error) {
	if req.Code == "" || req.Language == "" {
		return nil, nil, nil, common.Errorf("code and language are required: %w", common.ErrValidation)
	}

	contest, err := s.contestRepo.FindContestByID(ctx, req.ContestID)
	if err != nil {
		return nil, nil, nil, common.Errorf("contest not found: %w", err)
	}

	reg, err := s.contestRepo.GetRegistration(ctx, req.ContestID, userID)
	if err != nil {
		return nil, nil, nil, common.Errorf("not registered for this contest: %w", common.ErrForbidden)
	}

	now := s.clk.Now()
	if !reg.IsVirtual && contest.DerivedStatus(now) != model.ContestActive {
		return nil, nil, nil, common.Errorf("contest is not active: %w", common.ErrForbidden)
	}

	// Quota check before dispatching anything to the judge.
	maxSubs := contest.Rules.MaxSubmissionsPerProblem
	if maxSubs <= 0 {
		maxSubs = s.maxSubmissionsDefault
	}
	count, err := s.submissionRepo.CountUserProblemSubmissions(ctx, req.ContestID, userID, req.ProblemID)
	if err != nil {
		return nil, nil, nil, err
	}
	if count >= maxSubs {
		return nil, nil, nil, common.Errorf("submission limit reached for this problem: %w", common.ErrQuotaExceeded)
	}

	problems, err := s.contestRepo.GetContestProblems(ctx, req.ContestID)
	if err != nil {
		return nil, nil, nil, err
	}
	inContest := false
	for _, cp := range problems {
		if cp.ProblemID == req.ProblemID {
			inContest = true
			break
		}
	}
	if !inContest {
		return nil, nil, nil, common.Errorf("problem is not part of this contest: %w", common.ErrNotFound)
	}

	problem, err := s.problemRepo.FindProblemByID(ctx, req.ProblemID)
	if err != nil {
		return nil, nil, nil, common.Errorf("problem not found: %w", err)
	}
	testCases, err := s.problemRepo.GetTestCasesByProblemID(ctx, req.ProblemID)
	if err != nil {
		return nil, nil, nil, err
	}

	// Virtual participants' penalty clock is anchored to their personal start.
	anchor := contest.StartTime
	if reg.IsVirtual && reg.VirtualStartTime != nil {
		anchor = *reg.VirtualStartTime
	}

	sub := &model.ContestSubmission{
		ID:               uuid.NewString(),
		ContestID:        req.ContestID,
		ProblemID:        req.ProblemID,
		UserID:           userID,
		Code:             req.Code,
		Language:         req.Language,
		Status:           model.StatusPending,
		MinutesFromStart: int(now.Sub(anchor) / time.Minute),
		IsVirtual:        reg.IsVirtual,
		SubmittedAt:      now,
	}
	return sub, problem, testCases, nil
}

func (s *SubmissionService) problemPoints(ctx context.Context, contestID, problemID string) int {
	problems, err := s.contestRepo.GetContestProblems(ctx, contestID)
	if err != nil {
		log.Printf("WARN: failed to resolve points for problem %s in contest %s: %v", problemID, contestID, err)
		return 0
	}
	for _, cp := range problems {
		if cp.ProblemID == problemID {
			return cp.Points
		}
	}
	return 0
}

func parseTimeMs(t string) (int, bool) {
	var seconds float64
	if _, err := fmt.Sscanf(t, "%f", &seconds); err != nil {
		return 0, false
	}
	return int(seconds * 1000), true
}
