package service

import (
	"context"
	"testing"
	"time"

	"codeduel/internal/common/clock"
	"codeduel/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaderboardFixture(t *testing.T) (*LeaderboardService, *fakeContestRepo, *fakeSubmissionRepo, *clock.Fixed) {
	t.Helper()
	_, rdb := newTestRedis(t)

	contestRepo := newFakeContestRepo()
	submissionRepo := &fakeSubmissionRepo{}
	antiCheat := NewAntiCheatService(rdb, 5, time.Hour)
	clk := &clock.Fixed{Instant: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	contestRepo.contests["c1"] = &model.Contest{
		ID:        "c1",
		StartTime: clk.Instant.Add(-time.Hour),
		EndTime:   clk.Instant.Add(time.Hour),
		Status:    model.ContestActive,
		Rules:     model.ContestRules{PenaltyPerWrong: 20, MaxSubmissionsPerProblem: 20},
	}
	contestRepo.problems["c1"] = []model.ContestProblem{
		{ContestID: "c1", ProblemID: "p1", Points: 100},
	}

	svc := NewLeaderboardService(rdb, contestRepo, submissionRepo, antiCheat, clk, 30*time.Minute)
	return svc, contestRepo, submissionRepo, clk
}

func TestLeaderboardRecomputeThenGetServesCache(t *testing.T) {
	svc, _, submissionRepo, _ := leaderboardFixture(t)
	ctx := context.Background()

	submissionRepo.submissions = []model.ContestSubmission{
		submissionAt("u1", "p1", 45, true),
	}

	entries, err := svc.Recompute(ctx, "c1", false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 100, entries[0].TotalScore)

	// New submissions don't show until the next recompute: Get serves the
	// cached snapshot.
	submissionRepo.submissions = append(submissionRepo.submissions, submissionAt("u2", "p1", 50, true))
	cached, err := svc.Get(ctx, "c1", false)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	recomputed, err := svc.Recompute(ctx, "c1", false)
	require.NoError(t, err)
	assert.Len(t, recomputed, 2)
}

func TestLeaderboardGetFallsBackOnCacheMiss(t *testing.T) {
	svc, _, submissionRepo, _ := leaderboardFixture(t)
	ctx := context.Background()

	submissionRepo.submissions = []model.ContestSubmission{
		submissionAt("u1", "p1", 30, true),
	}

	// Nothing cached yet: Get computes directly from the log.
	entries, err := svc.Get(ctx, "c1", false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].UserID)
}

func TestLeaderboardGetSurvivesRedisOutage(t *testing.T) {
	mr, rdb := newTestRedis(t)
	contestRepo := newFakeContestRepo()
	submissionRepo := &fakeSubmissionRepo{}
	clk := &clock.Fixed{Instant: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	contestRepo.contests["c1"] = &model.Contest{
		ID:        "c1",
		StartTime: clk.Instant.Add(-time.Hour),
		EndTime:   clk.Instant.Add(time.Hour),
		Rules:     model.ContestRules{PenaltyPerWrong: 20},
	}
	svc := NewLeaderboardService(rdb, contestRepo, submissionRepo, NewAntiCheatService(rdb, 5, time.Hour), clk, 30*time.Minute)

	submissionRepo.submissions = []model.ContestSubmission{
		submissionAt("u1", "p1", 30, true),
	}
	mr.Close()

	entries, err := svc.Get(context.Background(), "c1", false)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLeaderboardCacheTTLCoversContestRemainder(t *testing.T) {
	mr, rdb := newTestRedis(t)
	contestRepo := newFakeContestRepo()
	submissionRepo := &fakeSubmissionRepo{}
	clk := &clock.Fixed{Instant: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	contestRepo.contests["c1"] = &model.Contest{
		ID:        "c1",
		StartTime: clk.Instant.Add(-time.Hour),
		EndTime:   clk.Instant.Add(time.Hour),
	}
	svc := NewLeaderboardService(rdb, contestRepo, submissionRepo, NewAntiCheatService(rdb, 5, time.Hour), clk, 30*time.Minute)

	_, err := svc.Recompute(context.Background(), "c1", false)
	require.NoError(t, err)

	// One hour remaining plus the 30 minute buffer.
	assert.Equal(t, 90*time.Minute, mr.TTL("leaderboard:c1"))
}

func TestLeaderboardVirtualKeysAreSeparate(t *testing.T) {
	svc, _, submissionRepo, _ := leaderboardFixture(t)
	ctx := context.Background()

	real := submissionAt("u1", "p1", 30, true)
	virtual := submissionAt("u2", "p1", 40, true)
	virtual.IsVirtual = true
	submissionRepo.submissions = []model.ContestSubmission{real, virtual}

	realEntries, err := svc.Recompute(ctx, "c1", false)
	require.NoError(t, err)
	virtualEntries, err := svc.Recompute(ctx, "c1", true)
	require.NoError(t, err)

	require.Len(t, realEntries, 1)
	require.Len(t, virtualEntries, 1)
	assert.Equal(t, "u1", realEntries[0].UserID)
	assert.Equal(t, "u2", virtualEntries[0].UserID)
}

func TestLeaderboardPurgeDropsCache(t *testing.T) {
	svc, _, submissionRepo, _ := leaderboardFixture(t)
	ctx := context.Background()

	submissionRepo.submissions = []model.ContestSubmission{
		submissionAt("u1", "p1", 30, true),
	}
	_, err := svc.Recompute(ctx, "c1", false)
	require.NoError(t, err)

	svc.Purge(ctx, "c1")

	// Cache gone; Get recomputes and still answers.
	submissionRepo.submissions = append(submissionRepo.submissions, submissionAt("u2", "p1", 40, true))
	entries, err := svc.Get(ctx, "c1", false)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
