package worker

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"codeduel/internal/app/service"
	"codeduel/internal/common"
	"codeduel/internal/common/clock"
	"codeduel/internal/domain/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memContestRepo struct {
	mu       sync.Mutex
	contests map[string]*model.Contest
	problems map[string][]model.ContestProblem
	finals   map[string]*model.FinalStandings
	failures map[string]error // per-contest UpdateContestStatus failures
}

func newMemContestRepo() *memContestRepo {
	return &memContestRepo{
		contests: make(map[string]*model.Contest),
		problems: make(map[string][]model.ContestProblem),
		finals:   make(map[string]*model.FinalStandings),
		failures: make(map[string]error),
	}
}

func (r *memContestRepo) CreateContest(ctx context.Context, tx *sql.Tx, c *model.Contest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *c
	r.contests[c.ID] = &copied
	return nil
}

func (r *memContestRepo) FindContestByID(ctx context.Context, id string) (*model.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *memContestRepo) ListContests(ctx context.Context, limit, offset int) ([]model.Contest, error) {
	return nil, nil
}

func (r *memContestRepo) ListUnfinishedContests(ctx context.Context) ([]model.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Contest
	for _, c := range r.contests {
		if c.Status != model.ContestFinished {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memContestRepo) UpdateContestStatus(ctx context.Context, contestID string, status model.ContestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failures[contestID]; err != nil {
		return err
	}
	c, ok := r.contests[contestID]
	if !ok {
		return common.ErrNotFound
	}
	c.Status = status
	return nil
}

func (r *memContestRepo) GetContestProblems(ctx context.Context, contestID string) ([]model.ContestProblem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.problems[contestID], nil
}

func (r *memContestRepo) AddContestProblem(ctx context.Context, tx *sql.Tx, cp *model.ContestProblem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.problems[cp.ContestID] = append(r.problems[cp.ContestID], *cp)
	return nil
}

func (r *memContestRepo) CreateRegistration(ctx context.Context, reg *model.ContestRegistration) error {
	return nil
}

func (r *memContestRepo) GetRegistration(ctx context.Context, contestID, userID string) (*model.ContestRegistration, error) {
	return nil, common.ErrNotFound
}

func (r *memContestRepo) ListRegistrations(ctx context.Context, contestID string) ([]model.ContestRegistration, error) {
	return nil, nil
}

func (r *memContestRepo) SaveFinalStandings(ctx context.Context, standings *model.FinalStandings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := standings.ContestID
	if standings.IsVirtual {
		key += "/virtual"
	}
	copied := *standings
	r.finals[key] = &copied
	return nil
}

func (r *memContestRepo) GetFinalStandings(ctx context.Context, contestID string, virtual bool) (*model.FinalStandings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := contestID
	if virtual {
		key += "/virtual"
	}
	fs, ok := r.finals[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *fs
	return &copied, nil
}

func (r *memContestRepo) status(contestID string) model.ContestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contests[contestID].Status
}

type memSubmissionRepo struct {
	mu          sync.Mutex
	submissions []model.ContestSubmission
}

func (r *memSubmissionRepo) CreateContestSubmission(ctx context.Context, tx *sql.Tx, sub *model.ContestSubmission) error {
	return nil
}

func (r *memSubmissionRepo) GetContestSubmissionByID(ctx context.Context, id string) (*model.ContestSubmission, error) {
	return nil, common.ErrNotFound
}

func (r *memSubmissionRepo) UpdateContestSubmissionVerdict(ctx context.Context, id string, status model.SubmissionStatus, accepted bool, points int) error {
	return nil
}

func (r *memSubmissionRepo) ListContestSubmissions(ctx context.Context, contestID string, virtual bool) ([]model.ContestSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ContestSubmission
	for _, sub := range r.submissions {
		if sub.ContestID == contestID && sub.IsVirtual == virtual {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r *memSubmissionRepo) CountUserProblemSubmissions(ctx context.Context, contestID, userID, problemID string) (int, error) {
	return 0, nil
}

type memRankingRepo struct {
	mu       sync.Mutex
	rankings map[string]*model.ContestRanking
	reranks  int
}

func newMemRankingRepo() *memRankingRepo {
	return &memRankingRepo{rankings: make(map[string]*model.ContestRanking)}
}

func (r *memRankingRepo) GetRanking(ctx context.Context, userID string, defaultRating int) (*model.ContestRanking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ranking, ok := r.rankings[userID]; ok {
		copied := *ranking
		return &copied, nil
	}
	return &model.ContestRanking{UserID: userID, Rating: defaultRating, MaxRating: defaultRating, Tier: model.TierForRating(defaultRating)}, nil
}

func (r *memRankingRepo) GetAllRankings(ctx context.Context) ([]model.ContestRanking, error) {
	return nil, nil
}

func (r *memRankingRepo) UpsertRanking(ctx context.Context, tx *sql.Tx, ranking *model.ContestRanking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *ranking
	r.rankings[ranking.UserID] = &copied
	return nil
}

func (r *memRankingRepo) AppendRatingChange(ctx context.Context, tx *sql.Tx, userID string, change model.RatingChange) error {
	return nil
}

func (r *memRankingRepo) AppendPerformance(ctx context.Context, tx *sql.Tx, userID string, perf model.ContestPerformance) error {
	return nil
}

func (r *memRankingRepo) UpdateGlobalRanks(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reranks++
	return nil
}

func schedulerFixture(t *testing.T) (*ContestScheduler, *memContestRepo, *memSubmissionRepo, *memRankingRepo, *clock.Fixed, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	contestRepo := newMemContestRepo()
	submissionRepo := &memSubmissionRepo{}
	rankingRepo := newMemRankingRepo()
	clk := &clock.Fixed{Instant: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	antiCheat := service.NewAntiCheatService(rdb, 5, time.Hour)
	leaderboard := service.NewLeaderboardService(rdb, contestRepo, submissionRepo, antiCheat, clk, 30*time.Minute)
	rating := service.NewRatingService(rankingRepo, clk, 1200, 32)
	contests := service.NewContestService(contestRepo, leaderboard, rating, clk, nil, 20, 20)

	scheduler := NewContestScheduler(contestRepo, contests, leaderboard, clk, time.Second, 10*time.Millisecond)
	return scheduler, contestRepo, submissionRepo, rankingRepo, clk, mr
}

func seedContest(repo *memContestRepo, clk *clock.Fixed, id string, status model.ContestStatus, startOffset, endOffset time.Duration) {
	repo.contests[id] = &model.Contest{
		ID:        id,
		StartTime: clk.Instant.Add(startOffset),
		EndTime:   clk.Instant.Add(endOffset),
		Status:    status,
		Rules:     model.ContestRules{PenaltyPerWrong: 20, MaxSubmissionsPerProblem: 20},
	}
}

func TestSchedulerActivatesUpcomingContest(t *testing.T) {
	scheduler, contestRepo, _, _, clk, _ := schedulerFixture(t)
	seedContest(contestRepo, clk, "c1", model.ContestUpcoming, -time.Minute, time.Hour)

	scheduler.Tick(context.Background())
	assert.Equal(t, model.ContestActive, contestRepo.status("c1"))
}

func TestSchedulerLeavesFutureContestAlone(t *testing.T) {
	scheduler, contestRepo, _, _, clk, _ := schedulerFixture(t)
	seedContest(contestRepo, clk, "c1", model.ContestUpcoming, time.Hour, 2*time.Hour)

	scheduler.Tick(context.Background())
	assert.Equal(t, model.ContestUpcoming, contestRepo.status("c1"))
}

func TestSchedulerOneTransitionPerTick(t *testing.T) {
	scheduler, contestRepo, _, _, clk, _ := schedulerFixture(t)
	// The whole window is already in the past.
	seedContest(contestRepo, clk, "c1", model.ContestUpcoming, -3*time.Hour, -time.Hour)

	scheduler.Tick(context.Background())
	assert.Equal(t, model.ContestActive, contestRepo.status("c1"))

	scheduler.Tick(context.Background())
	assert.Equal(t, model.ContestFinished, contestRepo.status("c1"))
}

func TestSchedulerFinishFinalizesStandings(t *testing.T) {
	scheduler, contestRepo, submissionRepo, rankingRepo, clk, _ := schedulerFixture(t)
	seedContest(contestRepo, clk, "c1", model.ContestActive, -2*time.Hour, -time.Minute)
	contestRepo.problems["c1"] = []model.ContestProblem{{ContestID: "c1", ProblemID: "p1", Points: 100}}
	submissionRepo.submissions = []model.ContestSubmission{
		{ID: "s1", ContestID: "c1", ProblemID: "p1", UserID: "u1", IsAccepted: true, Status: model.StatusAccepted, MinutesFromStart: 30, SubmittedAt: clk.Instant.Add(-90 * time.Minute)},
		{ID: "s2", ContestID: "c1", ProblemID: "p1", UserID: "u2", IsAccepted: true, Status: model.StatusAccepted, MinutesFromStart: 50, SubmittedAt: clk.Instant.Add(-70 * time.Minute)},
	}

	scheduler.Tick(context.Background())

	assert.Equal(t, model.ContestFinished, contestRepo.status("c1"))

	final, err := contestRepo.GetFinalStandings(context.Background(), "c1", false)
	require.NoError(t, err)
	require.Len(t, final.Entries, 2)
	assert.Equal(t, "u1", final.Entries[0].UserID)

	// Ratings were applied from the real-mode standings.
	winner, err := rankingRepo.GetRanking(context.Background(), "u1", 1200)
	require.NoError(t, err)
	assert.Equal(t, 1232, winner.Rating)
	assert.Equal(t, 1, rankingRepo.reranks)
}

func TestSchedulerTickIsIdempotentOnceFinished(t *testing.T) {
	scheduler, contestRepo, _, rankingRepo, clk, _ := schedulerFixture(t)
	seedContest(contestRepo, clk, "c1", model.ContestActive, -2*time.Hour, -time.Minute)

	scheduler.Tick(context.Background())
	scheduler.Tick(context.Background())
	scheduler.Tick(context.Background())

	assert.Equal(t, model.ContestFinished, contestRepo.status("c1"))
	// Empty standings mean no rating work, and finished contests drop out of
	// the unfinished listing entirely.
	assert.Zero(t, rankingRepo.reranks)
}

func TestSchedulerFailureIsIsolatedPerContest(t *testing.T) {
	scheduler, contestRepo, _, _, clk, _ := schedulerFixture(t)
	seedContest(contestRepo, clk, "bad", model.ContestUpcoming, -time.Minute, time.Hour)
	seedContest(contestRepo, clk, "good", model.ContestUpcoming, -time.Minute, time.Hour)
	contestRepo.failures["bad"] = common.ErrInternalServer

	scheduler.Tick(context.Background())

	assert.Equal(t, model.ContestUpcoming, contestRepo.status("bad"))
	assert.Equal(t, model.ContestActive, contestRepo.status("good"))
}
