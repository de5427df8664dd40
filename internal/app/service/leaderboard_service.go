package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"codeduel/internal/common/clock"
	"codeduel/internal/domain/model"
	"codeduel/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// LeaderboardService serves ranked standings from a TTL-bounded Redis cache,
// regenerating the full scoreboard from the submission log on every write.
// The cache is best-effort: entries are last-write-wins, and a missing or
// unreachable cache falls back to direct computation. Reads never fail
// because Redis is down.
type LeaderboardService struct {
	rdb            *redis.Client
	contestRepo    repository.ContestRepository
	submissionRepo repository.SubmissionRepository
	antiCheat      *AntiCheatService
	clk            clock.Clock
	ttlBuffer      time.Duration
}

func NewLeaderboardService(
	rdb *redis.Client,
	contestRepo repository.ContestRepository,
	submissionRepo repository.SubmissionRepository,
	antiCheat *AntiCheatService,
	clk clock.Clock,
	ttlBuffer time.Duration,
) *LeaderboardService {
	return &LeaderboardService{
		rdb:            rdb,
		contestRepo:    contestRepo,
		submissionRepo: submissionRepo,
		antiCheat:      antiCheat,
		clk:            clk,
		ttlBuffer:      ttlBuffer,
	}
}

func leaderboardKey(contestID string, virtual bool) string {
	if virtual {
		return "leaderboard:" + contestID + ":virtual"
	}
	return "leaderboard:" + contestID
}

// Get returns the contest standings, preferring the cache.
func (s *LeaderboardService) Get(ctx context.Context, contestID string, virtual bool) ([]model.LeaderboardEntry, error) {
	cached, err := s.rdb.Get(ctx, leaderboardKey(contestID, virtual)).Result()
	if err == nil {
		var entries []model.LeaderboardEntry
		if jsonErr := json.Unmarshal([]byte(cached), &entries); jsonErr == nil {
			return entries, nil
		}
		log.Printf("WARN: corrupt leaderboard cache entry for contest %s, recomputing", contestID)
	} else if err != redis.Nil {
		log.Printf("WARN: leaderboard cache unavailable for contest %s, falling back to direct computation: %v", contestID, err)
	}
	return s.compute(ctx, contestID, virtual)
}

// Recompute regenerates the scoreboard from the submission log and overwrites
// the cache entry. Called on every new or accepted submission during an
// active contest. Cache write failures are logged, never propagated.
func (s *LeaderboardService) Recompute(ctx context.Context, contestID string, virtual bool) ([]model.LeaderboardEntry, error) {
	entries, err := s.compute(ctx, contestID, virtual)
	if err != nil {
		return nil, err
	}

	contest, err := s.contestRepo.FindContestByID(ctx, contestID)
	if err != nil {
		return entries, err
	}
	ttl := contest.EndTime.Sub(s.clk.Now()) + s.ttlBuffer
	if ttl < s.ttlBuffer {
		ttl = s.ttlBuffer
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return entries, nil
	}
	if err := s.rdb.Set(ctx, leaderboardKey(contestID, virtual), payload, ttl).Err(); err != nil {
		log.Printf("WARN: failed to write leaderboard cache for contest %s: %v", contestID, err)
	}
	return entries, nil
}

// InitNamespace clears any stale cache entries when a contest goes active.
func (s *LeaderboardService) InitNamespace(ctx context.Context, contestID string) {
	if err := s.rdb.Del(ctx, leaderboardKey(contestID, false), leaderboardKey(contestID, true)).Err(); err != nil {
		log.Printf("WARN: failed to initialize leaderboard namespace for contest %s: %v", contestID, err)
	}
}

// Purge removes the contest's cache entries. The scheduler delays this past
// finalization so late readers still hit the cache.
func (s *LeaderboardService) Purge(ctx context.Context, contestID string) {
	if err := s.rdb.Del(ctx, leaderboardKey(contestID, false), leaderboardKey(contestID, true)).Err(); err != nil {
		log.Printf("WARN: failed to purge leaderboard cache for contest %s: %v", contestID, err)
	}
}

func (s *LeaderboardService) compute(ctx context.Context, contestID string, virtual bool) ([]model.LeaderboardEntry, error) {
	contest, err := s.contestRepo.FindContestByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	problems, err := s.contestRepo.GetContestProblems(ctx, contestID)
	if err != nil {
		return nil, err
	}
	submissions, err := s.submissionRepo.ListContestSubmissions(ctx, contestID, virtual)
	if err != nil {
		return nil, err
	}

	userIDs := make([]string, 0)
	seen := make(map[string]bool)
	for _, sub := range submissions {
		if !seen[sub.UserID] {
			seen[sub.UserID] = true
			userIDs = append(userIDs, sub.UserID)
		}
	}
	disqualified := s.antiCheat.DisqualifiedUsers(ctx, contestID, userIDs)

	return GenerateScoreboard(submissions, problems, contest.Rules, disqualified), nil
}
