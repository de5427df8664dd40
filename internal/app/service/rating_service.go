package service

import (
	"context"
	"log"
	"math"

	"codeduel/internal/common/clock"
	"codeduel/internal/domain/model"
	"codeduel/internal/domain/repository"
)

// RatingService applies the Elo-style multi-participant update once per
// contest finalization.
type RatingService struct {
	rankingRepo   repository.RankingRepository
	clk           clock.Clock
	defaultRating int
	kFactor       int
}

func NewRatingService(rankingRepo repository.RankingRepository, clk clock.Clock, defaultRating, kFactor int) *RatingService {
	return &RatingService{
		rankingRepo:   rankingRepo,
		clk:           clk,
		defaultRating: defaultRating,
		kFactor:       kFactor,
	}
}

// RatedStanding pairs a final rank with the participant's snapshot rating.
type RatedStanding struct {
	UserID string
	Rating int
	Rank   int
}

// EloChanges computes per-participant rating deltas for one contest.
//
// Expected score for participant i is the mean of pairwise Elo expectations
// against every other participant; actual score from rank r among N is
// (N-r)/(N-1). Delta = round(K * (actual - expected)), with K doubled for
// participants still at the default rating. All ratings are snapshot inputs,
// so the result is independent of application order. Fewer than two
// participants is a no-op.
func EloChanges(standings []RatedStanding, kFactor, defaultRating int) map[string]int {
	changes := make(map[string]int)
	n := len(standings)
	if n < 2 {
		return changes
	}

	for _, p := range standings {
		expected := 0.0
		for _, q := range standings {
			if q.UserID == p.UserID {
				continue
			}
			expected += 1.0 / (1.0 + math.Pow(10, float64(q.Rating-p.Rating)/400.0))
		}
		expected /= float64(n - 1)

		actual := float64(n-p.Rank) / float64(n-1)

		k := float64(kFactor)
		if p.Rating == defaultRating {
			k *= 2 // unrated/new participants converge faster
		}
		changes[p.UserID] = int(math.Round(k * (actual - expected)))
	}
	return changes
}

// UserRanking returns one user's rating record, materializing the default
// for users who never competed.
func (s *RatingService) UserRanking(ctx context.Context, userID string) (*model.ContestRanking, error) {
	return s.rankingRepo.GetRanking(ctx, userID, s.defaultRating)
}

// GlobalRankings returns every rated user ordered by global rank.
func (s *RatingService) GlobalRankings(ctx context.Context) ([]model.ContestRanking, error) {
	return s.rankingRepo.GetAllRankings(ctx)
}

// ApplyContestResults updates every participant's rating from the real-mode
// final standings, records history and performance rows, and recomputes
// global rank positions.
func (s *RatingService) ApplyContestResults(ctx context.Context, contestID string, standings []model.LeaderboardEntry) error {
	if len(standings) < 2 {
		log.Printf("INFO: contest %s has %d participants; skipping rating update", contestID, len(standings))
		return nil
	}

	// Snapshot all current ratings before applying any change.
	rated := make([]RatedStanding, 0, len(standings))
	rankings := make(map[string]*model.ContestRanking, len(standings))
	for _, entry := range standings {
		ranking, err := s.rankingRepo.GetRanking(ctx, entry.UserID, s.defaultRating)
		if err != nil {
			return err
		}
		rankings[entry.UserID] = ranking
		rated = append(rated, RatedStanding{
			UserID: entry.UserID,
			Rating: ranking.Rating,
			Rank:   entry.Rank,
		})
	}

	changes := EloChanges(rated, s.kFactor, s.defaultRating)
	now := s.clk.Now()

	for _, entry := range standings {
		ranking := rankings[entry.UserID]
		delta := changes[entry.UserID]
		oldRating := ranking.Rating
		newRating := oldRating + delta
		if newRating < 0 {
			newRating = 0
		}

		ranking.Rating = newRating
		if newRating > ranking.MaxRating {
			ranking.MaxRating = newRating
		}
		ranking.Tier = model.TierForRating(newRating)
		ranking.UpdatedAt = now

		if err := s.rankingRepo.UpsertRanking(ctx, nil, ranking); err != nil {
			return err
		}
		if err := s.rankingRepo.AppendRatingChange(ctx, nil, entry.UserID, model.RatingChange{
			ContestID: contestID,
			OldRating: oldRating,
			NewRating: newRating,
			Delta:     newRating - oldRating,
			AppliedAt: now,
		}); err != nil {
			return err
		}
		if err := s.rankingRepo.AppendPerformance(ctx, nil, entry.UserID, model.ContestPerformance{
			ContestID: contestID,
			Rank:      entry.Rank,
			Score:     entry.TotalScore,
			Penalty:   entry.TotalPenalty,
			At:        now,
		}); err != nil {
			return err
		}
	}

	if err := s.rankingRepo.UpdateGlobalRanks(ctx); err != nil {
		return err
	}
	log.Printf("INFO: applied rating changes for contest %s (%d participants)", contestID, len(standings))
	return nil
}
