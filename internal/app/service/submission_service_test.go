package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeduel/internal/app/judge"
	"codeduel/internal/common"
	"codeduel/internal/common/clock"
	"codeduel/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedJudge returns one canned response per test case input.
type scriptedJudge struct {
	statusByStdin map[string]int
	err           error
	calls         int
}

func (j *scriptedJudge) Execute(ctx context.Context, req judge.Request) (*judge.Response, error) {
	j.calls++
	if j.err != nil {
		return nil, j.err
	}
	id, ok := j.statusByStdin[req.Stdin]
	if !ok {
		id = judge.StatusAccepted
	}
	out := "ok"
	return &judge.Response{
		Status: judge.Status{ID: id},
		Stdout: &out,
	}, nil
}

var evalProblem = &model.Problem{
	ID:             "p1",
	RuntimeLimitMs: 2000,
	MemoryLimitKb:  131072,
}

func evalTestCases() []model.TestCase {
	return []model.TestCase{
		{ID: "tc1", ProblemID: "p1", Input: "1", ExpectedOutput: "1", IsHidden: false},
		{ID: "tc2", ProblemID: "p1", Input: "2", ExpectedOutput: "4", IsHidden: false},
		{ID: "tc3", ProblemID: "p1", Input: "3", ExpectedOutput: "9", IsHidden: true},
	}
}

func evalService(j judge.Client) *SubmissionService {
	clk := &clock.Fixed{Instant: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewSubmissionService(&fakeSubmissionRepo{}, nil, newFakeContestRepo(), j, nil, nil, clk, "q", 20)
}

func TestEvaluateAllPassing(t *testing.T) {
	j := &scriptedJudge{statusByStdin: map[string]int{}}
	svc := evalService(j)

	verdict, err := svc.Evaluate(context.Background(), evalProblem, evalTestCases(), "code", "go")
	require.NoError(t, err)

	assert.Equal(t, model.StatusAccepted, verdict.Status)
	assert.True(t, verdict.Accepted())
	assert.Equal(t, 3, verdict.Passed)
	assert.Equal(t, 3, verdict.Total)
	assert.Nil(t, verdict.FirstFailure)
	assert.Equal(t, 3, j.calls)
}

func TestEvaluateFirstVisibleFailureCarriesDetail(t *testing.T) {
	j := &scriptedJudge{statusByStdin: map[string]int{"2": judge.StatusWrongAnswer}}
	svc := evalService(j)

	verdict, err := svc.Evaluate(context.Background(), evalProblem, evalTestCases(), "code", "go")
	require.NoError(t, err)

	assert.Equal(t, model.StatusWrongAnswer, verdict.Status)
	assert.False(t, verdict.Accepted())
	assert.Equal(t, 2, verdict.Passed)
	require.NotNil(t, verdict.FirstFailure)
	assert.Equal(t, "tc2", verdict.FirstFailure.TestCaseID)
	assert.Equal(t, "2", verdict.FirstFailure.Input)
	assert.Equal(t, "4", verdict.FirstFailure.ExpectedOutput)
}

func TestEvaluateHiddenCaseIsRedacted(t *testing.T) {
	j := &scriptedJudge{statusByStdin: map[string]int{"3": judge.StatusWrongAnswer}}
	svc := evalService(j)

	verdict, err := svc.Evaluate(context.Background(), evalProblem, evalTestCases(), "code", "go")
	require.NoError(t, err)

	assert.Equal(t, model.StatusWrongAnswer, verdict.Status)
	// The failing case is hidden, so no first-failure detail is exposed.
	assert.Nil(t, verdict.FirstFailure)

	hidden := verdict.CaseResults[2]
	assert.True(t, hidden.Hidden)
	assert.Empty(t, hidden.Input)
	assert.Empty(t, hidden.ExpectedOutput)
	assert.Empty(t, hidden.ActualOutput)
	assert.Equal(t, model.StatusWrongAnswer, hidden.Status)
}

func TestEvaluateJudgeFailureYieldsSystemError(t *testing.T) {
	j := &scriptedJudge{err: common.ErrServiceUnavailable}
	svc := evalService(j)

	verdict, err := svc.Evaluate(context.Background(), evalProblem, evalTestCases(), "code", "go")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrServiceUnavailable))
	assert.Equal(t, model.StatusSystemError, verdict.Status)
	assert.False(t, verdict.Accepted())
}

func TestEvaluateNoTestCases(t *testing.T) {
	svc := evalService(&scriptedJudge{})

	verdict, err := svc.Evaluate(context.Background(), evalProblem, nil, "code", "go")
	require.Error(t, err)
	assert.Equal(t, model.StatusSystemError, verdict.Status)
}
