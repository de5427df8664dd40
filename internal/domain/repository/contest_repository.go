package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"codeduel/internal/common"
	"codeduel/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type ContestRepository interface {
	CreateContest(ctx context.Context, tx *sql.Tx, contest *model.Contest) error
	FindContestByID(ctx context.Context, id string) (*model.Contest, error)
	ListContests(ctx context.Context, limit, offset int) ([]model.Contest, error)
	// ListUnfinishedContests returns contests whose cached status is not
	// Finished; the lifecycle scheduler scans these each tick.
	ListUnfinishedContests(ctx context.Context) ([]model.Contest, error)
	UpdateContestStatus(ctx context.Context, contestID string, status model.ContestStatus) error

	GetContestProblems(ctx context.Context, contestID string) ([]model.ContestProblem, error)
	AddContestProblem(ctx context.Context, tx *sql.Tx, cp *model.ContestProblem) error

	CreateRegistration(ctx context.Context, reg *model.ContestRegistration) error
	GetRegistration(ctx context.Context, contestID, userID string) (*model.ContestRegistration, error)
	ListRegistrations(ctx context.Context, contestID string) ([]model.ContestRegistration, error)

	SaveFinalStandings(ctx context.Context, standings *model.FinalStandings) error
	GetFinalStandings(ctx context.Context, contestID string, virtual bool) (*model.FinalStandings, error)
}

type pgContestRepository struct {
	db *sql.DB
}

func NewPgContestRepository(db *sql.DB) ContestRepository {
	return &pgContestRepository{db: db}
}

func (r *pgContestRepository) CreateContest(ctx context.Context, tx *sql.Tx, c *model.Contest) error {
	query := `INSERT INTO contests (id, title, slug, description, start_time, end_time, status, penalty_per_wrong, max_submissions_per_problem)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, c.ID, c.Title, c.Slug, c.Description, c.StartTime, c.EndTime, c.Status, c.Rules.PenaltyPerWrong, c.Rules.MaxSubmissionsPerProblem)
	} else {
		_, err = r.db.ExecContext(ctx, query, c.ID, c.Title, c.Slug, c.Description, c.StartTime, c.EndTime, c.Status, c.Rules.PenaltyPerWrong, c.Rules.MaxSubmissionsPerProblem)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("contest with this slug already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgContestRepository.CreateContest: %w", err)
	}
	return nil
}

const contestColumns = `id, title, slug, description, start_time, end_time, status, penalty_per_wrong, max_submissions_per_problem, created_at, updated_at`

func scanContest(row interface{ Scan(...interface{}) error }) (*model.Contest, error) {
	var c model.Contest
	err := row.Scan(&c.ID, &c.Title, &c.Slug, &c.Description, &c.StartTime, &c.EndTime, &c.Status,
		&c.Rules.PenaltyPerWrong, &c.Rules.MaxSubmissionsPerProblem, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *pgContestRepository) FindContestByID(ctx context.Context, id string) (*model.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests WHERE id = $1`
	c, err := scanContest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgContestRepository.FindContestByID: %w", err)
	}
	return c, nil
}

func (r *pgContestRepository) ListContests(ctx context.Context, limit, offset int) ([]model.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests ORDER BY start_time DESC LIMIT $1 OFFSET $2`
	return r.queryContests(ctx, query, limit, offset)
}

func (r *pgContestRepository) ListUnfinishedContests(ctx context.Context) ([]model.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests WHERE status != $1 ORDER BY start_time ASC`
	return r.queryContests(ctx, query, model.ContestFinished)
}

func (r *pgContestRepository) queryContests(ctx context.Context, query string, args ...interface{}) ([]model.Contest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.queryContests: %w", err)
	}
	defer rows.Close()

	var contests []model.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("pgContestRepository.queryContests scan: %w", err)
		}
		contests = append(contests, *c)
	}
	return contests, rows.Err()
}

func (r *pgContestRepository) UpdateContestStatus(ctx context.Context, contestID string, status model.ContestStatus) error {
	query := `UPDATE contests SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, contestID)
	if err != nil {
		return fmt.Errorf("pgContestRepository.UpdateContestStatus: %w", err)
	}
	return nil
}

func (r *pgContestRepository) GetContestProblems(ctx context.Context, contestID string) ([]model.ContestProblem, error) {
	query := `SELECT contest_id, problem_id, points, sort_order
	          FROM contest_problems WHERE contest_id = $1 ORDER BY sort_order ASC`
	rows, err := r.db.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.GetContestProblems: %w", err)
	}
	defer rows.Close()

	var problems []model.ContestProblem
	for rows.Next() {
		var cp model.ContestProblem
		if err := rows.Scan(&cp.ContestID, &cp.ProblemID, &cp.Points, &cp.SortOrder); err != nil {
			return nil, fmt.Errorf("pgContestRepository.GetContestProblems scan: %w", err)
		}
		problems = append(problems, cp)
	}
	return problems, rows.Err()
}

func (r *pgContestRepository) AddContestProblem(ctx context.Context, tx *sql.Tx, cp *model.ContestProblem) error {
	query := `INSERT INTO contest_problems (contest_id, problem_id, points, sort_order)
	          VALUES ($1, $2, $3, $4)`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, cp.ContestID, cp.ProblemID, cp.Points, cp.SortOrder)
	} else {
		_, err = r.db.ExecContext(ctx, query, cp.ContestID, cp.ProblemID, cp.Points, cp.SortOrder)
	}
	if err != nil {
		return fmt.Errorf("pgContestRepository.AddContestProblem: %w", err)
	}
	return nil
}

func (r *pgContestRepository) CreateRegistration(ctx context.Context, reg *model.ContestRegistration) error {
	query := `INSERT INTO contest_registrations (contest_id, user_id, registered_at, is_virtual, virtual_start_time)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, reg.ContestID, reg.UserID, reg.RegisteredAt, reg.IsVirtual, reg.VirtualStartTime)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("already registered for this contest: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgContestRepository.CreateRegistration: %w", err)
	}
	return nil
}

func (r *pgContestRepository) GetRegistration(ctx context.Context, contestID, userID string) (*model.ContestRegistration, error) {
	query := `SELECT contest_id, user_id, registered_at, is_virtual, virtual_start_time
	          FROM contest_registrations WHERE contest_id = $1 AND user_id = $2`
	var reg model.ContestRegistration
	err := r.db.QueryRowContext(ctx, query, contestID, userID).Scan(
		&reg.ContestID, &reg.UserID, &reg.RegisteredAt, &reg.IsVirtual, &reg.VirtualStartTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgContestRepository.GetRegistration: %w", err)
	}
	return &reg, nil
}

func (r *pgContestRepository) ListRegistrations(ctx context.Context, contestID string) ([]model.ContestRegistration, error) {
	query := `SELECT contest_id, user_id, registered_at, is_virtual, virtual_start_time
	          FROM contest_registrations WHERE contest_id = $1`
	rows, err := r.db.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.ListRegistrations: %w", err)
	}
	defer rows.Close()

	var regs []model.ContestRegistration
	for rows.Next() {
		var reg model.ContestRegistration
		if err := rows.Scan(&reg.ContestID, &reg.UserID, &reg.RegisteredAt, &reg.IsVirtual, &reg.VirtualStartTime); err != nil {
			return nil, fmt.Errorf("pgContestRepository.ListRegistrations scan: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// Final standings are stored as a jsonb snapshot, one row per (contest, virtual) pair.
func (r *pgContestRepository) SaveFinalStandings(ctx context.Context, standings *model.FinalStandings) error {
	entries, err := json.Marshal(standings.Entries)
	if err != nil {
		return fmt.Errorf("pgContestRepository.SaveFinalStandings marshal: %w", err)
	}
	query := `INSERT INTO contest_final_standings (contest_id, is_virtual, entries, finalized_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (contest_id, is_virtual) DO UPDATE SET entries = $3, finalized_at = $4`
	_, err = r.db.ExecContext(ctx, query, standings.ContestID, standings.IsVirtual, entries, standings.FinalizedAt)
	if err != nil {
		return fmt.Errorf("pgContestRepository.SaveFinalStandings: %w", err)
	}
	return nil
}

func (r *pgContestRepository) GetFinalStandings(ctx context.Context, contestID string, virtual bool) (*model.FinalStandings, error) {
	query := `SELECT contest_id, is_virtual, entries, finalized_at
	          FROM contest_final_standings WHERE contest_id = $1 AND is_virtual = $2`
	var standings model.FinalStandings
	var entries []byte
	err := r.db.QueryRowContext(ctx, query, contestID, virtual).Scan(
		&standings.ContestID, &standings.IsVirtual, &entries, &standings.FinalizedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgContestRepository.GetFinalStandings: %w", err)
	}
	if err := json.Unmarshal(entries, &standings.Entries); err != nil {
		return nil, fmt.Errorf("pgContestRepository.GetFinalStandings unmarshal: %w", err)
	}
	return &standings, nil
}
