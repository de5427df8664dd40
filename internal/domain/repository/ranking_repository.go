package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"codeduel/internal/domain/model"
)

type RankingRepository interface {
	// GetRanking returns the user's ranking row, or a fresh default-rated row
	// if none exists yet.
	GetRanking(ctx context.Context, userID string, defaultRating int) (*model.ContestRanking, error)
	GetAllRankings(ctx context.Context) ([]model.ContestRanking, error)
	UpsertRanking(ctx context.Context, tx *sql.Tx, ranking *model.ContestRanking) error
	AppendRatingChange(ctx context.Context, tx *sql.Tx, userID string, change model.RatingChange) error
	AppendPerformance(ctx context.Context, tx *sql.Tx, userID string, perf model.ContestPerformance) error
	// UpdateGlobalRanks rewrites every user's global rank position after a
	// batch rating update, ordered by rating descending.
	UpdateGlobalRanks(ctx context.Context) error
}

type pgRankingRepository struct {
	db *sql.DB
}

func NewPgRankingRepository(db *sql.DB) RankingRepository {
	return &pgRankingRepository{db: db}
}

func (r *pgRankingRepository) GetRanking(ctx context.Context, userID string, defaultRating int) (*model.ContestRanking, error) {
	query := `SELECT user_id, rating, max_rating, tier, global_rank, updated_at
	          FROM contest_rankings WHERE user_id = $1`
	var rk model.ContestRanking
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&rk.UserID, &rk.Rating, &rk.MaxRating, &rk.Tier, &rk.GlobalRank, &rk.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &model.ContestRanking{
				UserID:    userID,
				Rating:    defaultRating,
				MaxRating: defaultRating,
				Tier:      model.TierForRating(defaultRating),
				UpdatedAt: time.Now(),
			}, nil
		}
		return nil, fmt.Errorf("pgRankingRepository.GetRanking: %w", err)
	}
	return &rk, nil
}

func (r *pgRankingRepository) GetAllRankings(ctx context.Context) ([]model.ContestRanking, error) {
	query := `SELECT user_id, rating, max_rating, tier, global_rank, updated_at
	          FROM contest_rankings ORDER BY rating DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgRankingRepository.GetAllRankings: %w", err)
	}
	defer rows.Close()

	var rankings []model.ContestRanking
	for rows.Next() {
		var rk model.ContestRanking
		if err := rows.Scan(&rk.UserID, &rk.Rating, &rk.MaxRating, &rk.Tier, &rk.GlobalRank, &rk.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pgRankingRepository.GetAllRankings scan: %w", err)
		}
		rankings = append(rankings, rk)
	}
	return rankings, rows.Err()
}

func (r *pgRankingRepository) UpsertRanking(ctx context.Context, tx *sql.Tx, rk *model.ContestRanking) error {
	query := `INSERT INTO contest_rankings (user_id, rating, max_rating, tier, global_rank, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (user_id) DO UPDATE SET
	            rating = $2, max_rating = $3, tier = $4, global_rank = $5, updated_at = $6`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, rk.UserID, rk.Rating, rk.MaxRating, rk.Tier, rk.GlobalRank, rk.UpdatedAt)
	} else {
		_, err = r.db.ExecContext(ctx, query, rk.UserID, rk.Rating, rk.MaxRating, rk.Tier, rk.GlobalRank, rk.UpdatedAt)
	}
	if err != nil {
		return fmt.Errorf("pgRankingRepository.UpsertRanking: %w", err)
	}
	return nil
}

func (r *pgRankingRepository) AppendRatingChange(ctx context.Context, tx *sql.Tx, userID string, change model.RatingChange) error {
	query := `INSERT INTO rating_history (user_id, contest_id, old_rating, new_rating, delta, applied_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, userID, change.ContestID, change.OldRating, change.NewRating, change.Delta, change.AppliedAt)
	} else {
		_, err = r.db.ExecContext(ctx, query, userID, change.ContestID, change.OldRating, change.NewRating, change.Delta, change.AppliedAt)
	}
	if err != nil {
		return fmt.Errorf("pgRankingRepository.AppendRatingChange: %w", err)
	}
	return nil
}

func (r *pgRankingRepository) AppendPerformance(ctx context.Context, tx *sql.Tx, userID string, perf model.ContestPerformance) error {
	query := `INSERT INTO contest_performances (user_id, contest_id, rank, score, penalty, at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, userID, perf.ContestID, perf.Rank, perf.Score, perf.Penalty, perf.At)
	} else {
		_, err = r.db.ExecContext(ctx, query, userID, perf.ContestID, perf.Rank, perf.Score, perf.Penalty, perf.At)
	}
	if err != nil {
		return fmt.Errorf("pgRankingRepository.AppendPerformance: %w", err)
	}
	return nil
}

func (r *pgRankingRepository) UpdateGlobalRanks(ctx context.Context) error {
	query := `UPDATE contest_rankings SET global_rank = ranked.pos
	          FROM (SELECT user_id, ROW_NUMBER() OVER (ORDER BY rating DESC) AS pos
	                FROM contest_rankings) ranked
	          WHERE contest_rankings.user_id = ranked.user_id`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("pgRankingRepository.UpdateGlobalRanks: %w", err)
	}
	return nil
}
