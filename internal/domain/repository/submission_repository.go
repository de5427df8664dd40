package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"codeduel/internal/common"
	"codeduel/internal/domain/model"
)

type SubmissionRepository interface {
	CreateContestSubmission(ctx context.Context, tx *sql.Tx, sub *model.ContestSubmission) error
	GetContestSubmissionByID(ctx context.Context, id string) (*model.ContestSubmission, error)
	UpdateContestSubmissionVerdict(ctx context.Context, id string, status model.SubmissionStatus, accepted bool, points int) error
	// ListContestSubmissions returns the append-only log in submission-time
	// order, the form the scoreboard generator consumes.
	ListContestSubmissions(ctx context.Context, contestID string, virtual bool) ([]model.ContestSubmission, error)
	CountUserProblemSubmissions(ctx context.Context, contestID, userID, problemID string) (int, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

func (r *pgSubmissionRepository) CreateContestSubmission(ctx context.Context, tx *sql.Tx, s *model.ContestSubmission) error {
	query := `INSERT INTO contest_submissions (id, contest_id, problem_id, user_id, code, language, status, is_accepted, points, minutes_from_start, is_virtual, submitted_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, s.ID, s.ContestID, s.ProblemID, s.UserID, s.Code, s.Language, s.Status, s.IsAccepted, s.Points, s.MinutesFromStart, s.IsVirtual, s.SubmittedAt)
	} else {
		_, err = r.db.ExecContext(ctx, query, s.ID, s.ContestID, s.ProblemID, s.UserID, s.Code, s.Language, s.Status, s.IsAccepted, s.Points, s.MinutesFromStart, s.IsVirtual, s.SubmittedAt)
	}
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.CreateContestSubmission: %w", err)
	}
	return nil
}

const submissionColumns = `id, contest_id, problem_id, user_id, code, language, status, is_accepted, points, minutes_from_start, is_virtual, submitted_at`

func (r *pgSubmissionRepository) GetContestSubmissionByID(ctx context.Context, id string) (*model.ContestSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM contest_submissions WHERE id = $1`
	var s model.ContestSubmission
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.ContestID, &s.ProblemID, &s.UserID, &s.Code, &s.Language,
		&s.Status, &s.IsAccepted, &s.Points, &s.MinutesFromStart, &s.IsVirtual, &s.SubmittedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.GetContestSubmissionByID: %w", err)
	}
	return &s, nil
}

func (r *pgSubmissionRepository) UpdateContestSubmissionVerdict(ctx context.Context, id string, status model.SubmissionStatus, accepted bool, points int) error {
	query := `UPDATE contest_submissions SET status = $1, is_accepted = $2, points = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, status, accepted, points, id)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.UpdateContestSubmissionVerdict: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) ListContestSubmissions(ctx context.Context, contestID string, virtual bool) ([]model.ContestSubmission, error) {
	query := `SELECT ` + submissionColumns + `
	          FROM contest_submissions WHERE contest_id = $1 AND is_virtual = $2
	          ORDER BY submitted_at ASC`
	rows, err := r.db.QueryContext(ctx, query, contestID, virtual)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListContestSubmissions: %w", err)
	}
	defer rows.Close()

	var subs []model.ContestSubmission
	for rows.Next() {
		var s model.ContestSubmission
		if err := rows.Scan(&s.ID, &s.ContestID, &s.ProblemID, &s.UserID, &s.Code, &s.Language,
			&s.Status, &s.IsAccepted, &s.Points, &s.MinutesFromStart, &s.IsVirtual, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.ListContestSubmissions scan: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *pgSubmissionRepository) CountUserProblemSubmissions(ctx context.Context, contestID, userID, problemID string) (int, error) {
	query := `SELECT COUNT(*) FROM contest_submissions
	          WHERE contest_id = $1 AND user_id = $2 AND problem_id = $3`
	var count int
	if err := r.db.QueryRowContext(ctx, query, contestID, userID, problemID).Scan(&count); err != nil {
		return 0, fmt.Errorf("pgSubmissionRepository.CountUserProblemSubmissions: %w", err)
	}
	return count, nil
}
