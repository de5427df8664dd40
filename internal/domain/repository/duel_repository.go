package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"codeduel/internal/domain/model"
)

// DuelRepository persists duel outcomes and the rating-agnostic per-user
// win/loss/XP stats. Live duel rooms are never written here.
type DuelRepository interface {
	CreateHistory(ctx context.Context, history *model.DuelHistory) error
	ListHistoryByUser(ctx context.Context, userID string, limit int) ([]model.DuelHistory, error)
	GetDuelStats(ctx context.Context, userID string) (*model.DuelStats, error)
	RecordOutcome(ctx context.Context, userID string, outcome model.DuelOutcome, xpGain int) error
}

type pgDuelRepository struct {
	db *sql.DB
}

func NewPgDuelRepository(db *sql.DB) DuelRepository {
	return &pgDuelRepository{db: db}
}

func (r *pgDuelRepository) CreateHistory(ctx context.Context, h *model.DuelHistory) error {
	query := `INSERT INTO duel_history (id, room_code, kind, user_id, opponent_id, outcome, problem_id, started_at, ended_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query, h.ID, h.RoomCode, h.Kind, h.UserID, h.OpponentID, h.Outcome, h.ProblemID, h.StartedAt, h.EndedAt)
	if err != nil {
		return fmt.Errorf("pgDuelRepository.CreateHistory: %w", err)
	}
	return nil
}

func (r *pgDuelRepository) ListHistoryByUser(ctx context.Context, userID string, limit int) ([]model.DuelHistory, error) {
	query := `SELECT id, room_code, kind, user_id, opponent_id, outcome, problem_id, started_at, ended_at
	          FROM duel_history WHERE user_id = $1 ORDER BY ended_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("pgDuelRepository.ListHistoryByUser: %w", err)
	}
	defer rows.Close()

	var history []model.DuelHistory
	for rows.Next() {
		var h model.DuelHistory
		if err := rows.Scan(&h.ID, &h.RoomCode, &h.Kind, &h.UserID, &h.OpponentID, &h.Outcome, &h.ProblemID, &h.StartedAt, &h.EndedAt); err != nil {
			return nil, fmt.Errorf("pgDuelRepository.ListHistoryByUser scan: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (r *pgDuelRepository) GetDuelStats(ctx context.Context, userID string) (*model.DuelStats, error) {
	query := `SELECT user_id, wins, losses, draws, xp, updated_at FROM duel_stats WHERE user_id = $1`
	var s model.DuelStats
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&s.UserID, &s.Wins, &s.Losses, &s.Draws, &s.XP, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &model.DuelStats{UserID: userID, UpdatedAt: time.Now()}, nil
		}
		return nil, fmt.Errorf("pgDuelRepository.GetDuelStats: %w", err)
	}
	return &s, nil
}

func (r *pgDuelRepository) RecordOutcome(ctx context.Context, userID string, outcome model.DuelOutcome, xpGain int) error {
	wins, losses, draws := 0, 0, 0
	switch outcome {
	case model.OutcomeWin:
		wins = 1
	case model.OutcomeLoss:
		losses = 1
	case model.OutcomeDraw:
		draws = 1
	}
	query := `INSERT INTO duel_stats (user_id, wins, losses, draws, xp, updated_at)
	          VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
	          ON CONFLICT (user_id) DO UPDATE SET
	            wins = duel_stats.wins + $2,
	            losses = duel_stats.losses + $3,
	            draws = duel_stats.draws + $4,
	            xp = duel_stats.xp + $5,
	            updated_at = CURRENT_TIMESTAMP`
	if _, err := r.db.ExecContext(ctx, query, userID, wins, losses, draws, xpGain); err != nil {
		return fmt.Errorf("pgDuelRepository.RecordOutcome: %w", err)
	}
	return nil
}
