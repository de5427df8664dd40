package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeduel/internal/common"
	"codeduel/internal/common/clock"
	"codeduel/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contestFixture(t *testing.T) (*ContestService, *fakeContestRepo, *fakeSubmissionRepo, *fakeRankingRepo, *clock.Fixed) {
	t.Helper()
	_, rdb := newTestRedis(t)

	contestRepo := newFakeContestRepo()
	submissionRepo := &fakeSubmissionRepo{}
	rankingRepo := newFakeRankingRepo()
	clk := &clock.Fixed{Instant: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	leaderboard := NewLeaderboardService(rdb, contestRepo, submissionRepo, NewAntiCheatService(rdb, 5, time.Hour), clk, 30*time.Minute)
	rating := NewRatingService(rankingRepo, clk, 1200, 32)
	svc := NewContestService(contestRepo, leaderboard, rating, clk, nil, 20, 20)
	return svc, contestRepo, submissionRepo, rankingRepo, clk
}

func seedContest(repo *fakeContestRepo, clk *clock.Fixed, status model.ContestStatus, startOffset, endOffset time.Duration) {
	repo.contests["c1"] = &model.Contest{
		ID:        "c1",
		Title:     "Weekly Round",
		StartTime: clk.Instant.Add(startOffset),
		EndTime:   clk.Instant.Add(endOffset),
		Status:    status,
		Rules:     model.ContestRules{PenaltyPerWrong: 20, MaxSubmissionsPerProblem: 20},
	}
	repo.problems["c1"] = []model.ContestProblem{{ContestID: "c1", ProblemID: "p1", Points: 100}}
}

func TestRegisterDuringActiveContest(t *testing.T) {
	svc, contestRepo, _, _, clk := contestFixture(t)
	seedContest(contestRepo, clk, model.ContestActive, -time.Hour, time.Hour)

	reg, err := svc.Register(context.Background(), "c1", "u1", false)
	require.NoError(t, err)
	assert.False(t, reg.IsVirtual)
	assert.Nil(t, reg.VirtualStartTime)
}

func TestRegisterVirtualRequiresFinishedContest(t *testing.T) {
	svc, contestRepo, _, _, clk := contestFixture(t)
	seedContest(contestRepo, clk, model.ContestActive, -time.Hour, time.Hour)

	_, err := svc.Register(context.Background(), "c1", "u1", true)
	assert.True(t, errors.Is(err, common.ErrForbidden))
}

func TestRegisterVirtualAnchorsOwnClock(t *testing.T) {
	svc, contestRepo, _, _, clk := contestFixture(t)
	seedContest(contestRepo, clk, model.ContestFinished, -3*time.Hour, -time.Hour)

	reg, err := svc.Register(context.Background(), "c1", "u1", true)
	require.NoError(t, err)
	assert.True(t, reg.IsVirtual)
	require.NotNil(t, reg.VirtualStartTime)
	assert.Equal(t, clk.Instant, *reg.VirtualStartTime)
}

func TestRegisterRealBlockedAfterFinish(t *testing.T) {
	svc, contestRepo, _, _, clk := contestFixture(t)
	seedContest(contestRepo, clk, model.ContestFinished, -3*time.Hour, -time.Hour)

	_, err := svc.Register(context.Background(), "c1", "u1", false)
	assert.True(t, errors.Is(err, common.ErrForbidden))
}

func TestRegisterTwiceConflicts(t *testing.T) {
	svc, contestRepo, _, _, clk := contestFixture(t)
	seedContest(contestRepo, clk, model.ContestActive, -time.Hour, time.Hour)

	_, err := svc.Register(context.Background(), "c1", "u1", false)
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), "c1", "u1", false)
	assert.True(t, errors.Is(err, common.ErrConflict))
}

func TestStandingsPrefersFinalSnapshot(t *testing.T) {
	svc, contestRepo, submissionRepo, _, clk := contestFixture(t)
	seedContest(contestRepo, clk, model.ContestFinished, -3*time.Hour, -time.Hour)

	contestRepo.finals[finalsKey("c1", false)] = &model.FinalStandings{
		ContestID: "c1",
		Entries:   []model.LeaderboardEntry{{Rank: 1, UserID: "frozen"}},
	}
	// Submissions added after finalization must not change final standings.
	submissionRepo.submissions = []model.ContestSubmission{submissionAt("late", "p1", 10, true)}

	entries, err := svc.Standings(context.Background(), "c1", false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "frozen", entries[0].UserID)
}

func TestStandingsLiveWhileActive(t *testing.T) {
	svc, contestRepo, submissionRepo, _, clk := contestFixture(t)
	seedContest(contestRepo, clk, model.ContestActive, -time.Hour, time.Hour)

	submissionRepo.submissions = []model.ContestSubmission{submissionAt("u1", "p1", 30, true)}

	entries, err := svc.Standings(context.Background(), "c1", false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].UserID)
}

func TestFinalizePersistsStandingsAndAppliesRatings(t *testing.T) {
	svc, contestRepo, submissionRepo, rankingRepo, clk := contestFixture(t)
	seedContest(contestRepo, clk, model.ContestFinished, -3*time.Hour, -time.Hour)

	submissionRepo.submissions = []model.ContestSubmission{
		submissionAt("u1", "p1", 30, true),
		submissionAt("u2", "p1", 50, true),
	}

	require.NoError(t, svc.Finalize(context.Background(), "c1"))

	real, err := contestRepo.GetFinalStandings(context.Background(), "c1", false)
	require.NoError(t, err)
	require.Len(t, real.Entries, 2)
	assert.Equal(t, "u1", real.Entries[0].UserID)

	virtual, err := contestRepo.GetFinalStandings(context.Background(), "c1", true)
	require.NoError(t, err)
	assert.Empty(t, virtual.Entries)

	// Real-mode standings drive the rating update.
	winner, err := rankingRepo.GetRanking(context.Background(), "u1", 1200)
	require.NoError(t, err)
	assert.Equal(t, 1232, winner.Rating)
	assert.Equal(t, 1, rankingRepo.reranks)
}
