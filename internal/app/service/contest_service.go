package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"codeduel/internal/common"
	"codeduel/internal/common/clock"
	"codeduel/internal/domain/model"
	"codeduel/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

type ContestService struct {
	contestRepo    repository.ContestRepository
	leaderboard    *LeaderboardService
	rating         *RatingService
	clk            clock.Clock
	db             *sql.DB // For transactions
	defaultPenalty int
	defaultMaxSubs int
}

func NewContestService(
	contestRepo repository.ContestRepository,
	leaderboard *LeaderboardService,
	rating *RatingService,
	clk clock.Clock,
	db *sql.DB,
	defaultPenalty, defaultMaxSubs int,
) *ContestService {
	return &ContestService{
		contestRepo:    contestRepo,
		leaderboard:    leaderboard,
		rating:         rating,
		clk:            clk,
		db:             db,
		defaultPenalty: defaultPenalty,
		defaultMaxSubs: defaultMaxSubs,
	}
}

type CreateContestRequest struct {
	Title                    string `json:"title"`
	Description              string `json:"description"`
	StartTime                string `json:"start_time"` // RFC3339
	EndTime                  string `json:"end_time"`
	PenaltyPerWrong          *int   `json:"penalty_per_wrong,omitempty"`
	MaxSubmissionsPerProblem *int   `json:"max_submissions_per_problem,omitempty"`
	Problems                 []struct {
		ProblemID string `json:"problem_id"`
		Points    int    `json:"points"`
	} `json:"problems"`
}

func (s *ContestService) CreateContest(ctx context.Context, req CreateContestRequest) (*model.Contest, error) {
	if req.Title == "" {
		return nil, common.Errorf("title is required: %w", common.ErrValidation)
	}
	start, err := parseRFC3339(req.StartTime)
	if err != nil {
		return nil, common.Errorf("invalid start_time: %w", common.ErrValidation)
	}
	end, err := parseRFC3339(req.EndTime)
	if err != nil {
		return nil, common.Errorf("invalid end_time: %w", common.ErrValidation)
	}
	if !end.After(start) {
		return nil, common.Errorf("end_time must be after start_time: %w", common.ErrValidation)
	}

	contest := &model.Contest{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Slug:        slug.Make(req.Title),
		Description: req.Description,
		StartTime:   start,
		EndTime:     end,
		Rules: model.ContestRules{
			PenaltyPerWrong:          s.defaultPenalty,
			MaxSubmissionsPerProblem: s.defaultMaxSubs,
		},
	}
	if req.PenaltyPerWrong != nil {
		contest.Rules.PenaltyPerWrong = *req.PenaltyPerWrong
	}
	if req.MaxSubmissionsPerProblem != nil {
		contest.Rules.MaxSubmissionsPerProblem = *req.MaxSubmissionsPerProblem
	}
	contest.Status = contest.DerivedStatus(s.clk.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.contestRepo.CreateContest(ctx, tx, contest); err != nil {
		return nil, err
	}
	for i, p := range req.Problems {
		cp := &model.ContestProblem{
			ContestID: contest.ID,
			ProblemID: p.ProblemID,
			Points:    p.Points,
			SortOrder: i,
		}
		if err := s.contestRepo.AddContestProblem(ctx, tx, cp); err != nil {
			return nil, err
		}
		contest.Problems = append(contest.Problems, *cp)
	}
	if err := tx.Commit(); err != nil {
		return nil, common.Errorf("failed to commit transaction: %w", err)
	}
	return contest, nil
}

func (s *ContestService) GetContest(ctx context.Context, contestID string) (*model.Contest, error) {
	contest, err := s.contestRepo.FindContestByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	problems, err := s.contestRepo.GetContestProblems(ctx, contestID)
	if err != nil {
		return nil, err
	}
	contest.Problems = problems
	return contest, nil
}

func (s *ContestService) ListContests(ctx context.Context, limit, offset int) ([]model.Contest, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.contestRepo.ListContests(ctx, limit, offset)
}

// Register enrolls a user. Virtual registration is only possible once the
// contest has finished; the participant's penalty clock starts at
// registration time.
func (s *ContestService) Register(ctx context.Context, contestID, userID string, virtual bool) (*model.ContestRegistration, error) {
	contest, err := s.contestRepo.FindContestByID(ctx, contestID)
	if err != nil {
		return nil, common.Errorf("contest not found: %w", err)
	}

	now := s.clk.Now()
	derived := contest.DerivedStatus(now)
	if virtual && derived != model.ContestFinished {
		return nil, common.Errorf("virtual participation requires a finished contest: %w", common.ErrForbidden)
	}
	if !virtual && derived == model.ContestFinished {
		return nil, common.Errorf("contest already finished: %w", common.ErrForbidden)
	}

	if _, err := s.contestRepo.GetRegistration(ctx, contestID, userID); err == nil {
		return nil, common.Errorf("already registered: %w", common.ErrConflict)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	reg := &model.ContestRegistration{
		ContestID:    contestID,
		UserID:       userID,
		RegisteredAt: now,
		IsVirtual:    virtual,
	}
	if virtual {
		reg.VirtualStartTime = &now
	}
	if err := s.contestRepo.CreateRegistration(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Standings returns final standings for finished contests and the live
// (cached) leaderboard otherwise.
func (s *ContestService) Standings(ctx context.Context, contestID string, virtual bool) ([]model.LeaderboardEntry, error) {
	contest, err := s.contestRepo.FindContestByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest.Status == model.ContestFinished {
		final, err := s.contestRepo.GetFinalStandings(ctx, contestID, virtual)
		if err == nil {
			return final.Entries, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		// Finalization may not have run yet; fall through to live computation.
	}
	return s.leaderboard.Get(ctx, contestID, virtual)
}

// Finalize persists final standings for real and virtual participation and
// applies the rating update from the real-mode standings. Called by the
// lifecycle scheduler when a contest transitions to finished.
func (s *ContestService) Finalize(ctx context.Context, contestID string) error {
	now := s.clk.Now()

	realEntries, err := s.leaderboard.Recompute(ctx, contestID, false)
	if err != nil {
		return common.Errorf("failed to generate final standings: %w", err)
	}
	if err := s.contestRepo.SaveFinalStandings(ctx, &model.FinalStandings{
		ContestID:   contestID,
		IsVirtual:   false,
		Entries:     realEntries,
		FinalizedAt: now,
	}); err != nil {
		return err
	}

	virtualEntries, err := s.leaderboard.Recompute(ctx, contestID, true)
	if err != nil {
		return common.Errorf("failed to generate virtual standings: %w", err)
	}
	if err := s.contestRepo.SaveFinalStandings(ctx, &model.FinalStandings{
		ContestID:   contestID,
		IsVirtual:   true,
		Entries:     virtualEntries,
		FinalizedAt: now,
	}); err != nil {
		return err
	}

	if err := s.rating.ApplyContestResults(ctx, contestID, realEntries); err != nil {
		return common.Errorf("rating update failed for contest %s: %w", contestID, err)
	}
	log.Printf("INFO: contest %s finalized (%d real, %d virtual participants)", contestID, len(realEntries), len(virtualEntries))
	return nil
}

func parseRFC3339(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, value)
}
