package service

import (
	"context"
	"database/sql"
	"sync"

	"codeduel/internal/common"
	"codeduel/internal/domain/model"
)

// In-memory repository fakes shared by the service tests.

type fakeContestRepo struct {
	mu            sync.Mutex
	contests      map[string]*model.Contest
	problems      map[string][]model.ContestProblem
	registrations map[string]*model.ContestRegistration // contestID+"/"+userID
	finals        map[string]*model.FinalStandings      // contestID+"/real" or "/virtual"
	statusUpdates []model.ContestStatus
}

func newFakeContestRepo() *fakeContestRepo {
	return &fakeContestRepo{
		contests:      make(map[string]*model.Contest),
		problems:      make(map[string][]model.ContestProblem),
		registrations: make(map[string]*model.ContestRegistration),
		finals:        make(map[string]*model.FinalStandings),
	}
}

func finalsKey(contestID string, virtual bool) string {
	if virtual {
		return contestID + "/virtual"
	}
	return contestID + "/real"
}

func (r *fakeContestRepo) CreateContest(ctx context.Context, tx *sql.Tx, contest *model.Contest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *contest
	r.contests[contest.ID] = &c
	return nil
}

func (r *fakeContestRepo) FindContestByID(ctx context.Context, id string) (*model.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *fakeContestRepo) ListContests(ctx context.Context, limit, offset int) ([]model.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Contest
	for _, c := range r.contests {
		out = append(out, *c)
	}
	return out, nil
}

func (r *fakeContestRepo) ListUnfinishedContests(ctx context.Context) ([]model.Contest, error) {
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

func (r *fakeContestRepo) UpdateContestStatus(ctx context.Context, contestID string, status model.ContestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contests[contestID]
	if !ok {
		return common.ErrNotFound
	}
	c.Status = status
	r.statusUpdates = append(r.statusUpdates, status)
	return nil
}

func (r *fakeContestRepo) GetContestProblems(ctx context.Context, contestID string) ([]model.ContestProblem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.problems[contestID], nil
}

func (r *fakeContestRepo) AddContestProblem(ctx context.Context, tx *sql.Tx, cp *model.ContestProblem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.problems[cp.ContestID] = append(r.problems[cp.ContestID], *cp)
	return nil
}

func (r *fakeContestRepo) CreateRegistration(ctx context.Context, reg *model.ContestRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *reg
	r.registrations[reg.ContestID+"/"+reg.UserID] = &copied
	return nil
}

func (r *fakeContestRepo) GetRegistration(ctx context.Context, contestID, userID string) (*model.ContestRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registrations[contestID+"/"+userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *reg
	return &copied, nil
}

func (r *fakeContestRepo) ListRegistrations(ctx context.Context, contestID string) ([]model.ContestRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ContestRegistration
	for _, reg := range r.registrations {
		if reg.ContestID == contestID {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (r *fakeContestRepo) SaveFinalStandings(ctx context.Context, standings *model.FinalStandings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *standings
	r.finals[finalsKey(standings.ContestID, standings.IsVirtual)] = &copied
	return nil
}

func (r *fakeContestRepo) GetFinalStandings(ctx context.Context, contestID string, virtual bool) (*model.FinalStandings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fs, ok := r.finals[finalsKey(contestID, virtual)]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *fs
	return &copied, nil
}

type fakeSubmissionRepo struct {
	mu          sync.Mutex
	submissions []model.ContestSubmission
}

func (r *fakeSubmissionRepo) CreateContestSubmission(ctx context.Context, tx *sql.Tx, sub *model.ContestSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions = append(r.submissions, *sub)
	return nil
}

func (r *fakeSubmissionRepo) GetContestSubmissionByID(ctx context.Context, id string) (*model.ContestSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.submissions {
		if r.submissions[i].ID == id {
			copied := r.submissions[i]
			return &copied, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeSubmissionRepo) UpdateContestSubmissionVerdict(ctx context.Context, id string, status model.SubmissionStatus, accepted bool, points int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.submissions {
		if r.submissions[i].ID == id {
			r.submissions[i].Status = status
			r.submissions[i].IsAccepted = accepted
			r.submissions[i].Points = points
			return nil
		}
	}
	return common.ErrNotFound
}

func (r *fakeSubmissionRepo) ListContestSubmissions(ctx context.Context, contestID string, virtual bool) ([]model.ContestSubmission, error) {
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

func (r *fakeSubmissionRepo) CountUserProblemSubmissions(ctx context.Context, contestID, userID, problemID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, sub := range r.submissions {
		if sub.ContestID == contestID && sub.UserID == userID && sub.ProblemID == problemID {
			count++
		}
	}
	return count, nil
}

type fakeRankingRepo struct {
	mu           sync.Mutex
	rankings     map[string]*model.ContestRanking
	changes      map[string][]model.RatingChange
	performances map[string][]model.ContestPerformance
	reranks      int
}

func newFakeRankingRepo() *fakeRankingRepo {
	return &fakeRankingRepo{
		rankings:     make(map[string]*model.ContestRanking),
		changes:      make(map[string][]model.RatingChange),
		performances: make(map[string][]model.ContestPerformance),
	}
}

func (r *fakeRankingRepo) GetRanking(ctx context.Context, userID string, defaultRating int) (*model.ContestRanking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ranking, ok := r.rankings[userID]; ok {
		copied := *ranking
		return &copied, nil
	}
	return &model.ContestRanking{
		UserID:    userID,
		Rating:    defaultRating,
		MaxRating: defaultRating,
		Tier:      model.TierForRating(defaultRating),
	}, nil
}

func (r *fakeRankingRepo) GetAllRankings(ctx context.Context) ([]model.ContestRanking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ContestRanking
	for _, ranking := range r.rankings {
		out = append(out, *ranking)
	}
	return out, nil
}

func (r *fakeRankingRepo) UpsertRanking(ctx context.Context, tx *sql.Tx, ranking *model.ContestRanking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *ranking
	r.rankings[ranking.UserID] = &copied
	return nil
}

func (r *fakeRankingRepo) AppendRatingChange(ctx context.Context, tx *sql.Tx, userID string, change model.RatingChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes[userID] = append(r.changes[userID], change)
	return nil
}

func (r *fakeRankingRepo) AppendPerformance(ctx context.Context, tx *sql.Tx, userID string, perf model.ContestPerformance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.performances[userID] = append(r.performances[userID], perf)
	return nil
}

func (r *fakeRankingRepo) UpdateGlobalRanks(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reranks++
	return nil
}
