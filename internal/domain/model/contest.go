package model

import "time"

type ContestStatus string

const (
	ContestUpcoming ContestStatus = "Upcoming"
	ContestActive   ContestStatus = "Active"
	ContestFinished ContestStatus = "Finished"
)

type Contest struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Slug        string           `json:"slug"`
	Description string           `json:"description"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Status      ContestStatus    `json:"status"` // cached; authoritative value derives from the clock
	Problems    []ContestProblem `json:"problems,omitempty"`
	Rules       ContestRules     `json:"rules"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type ContestProblem struct {
	ContestID string `json:"contest_id"`
	ProblemID string `json:"problem_id"`
	Points    int    `json:"points"`
	SortOrder int    `json:"sort_order"`
}

type ContestRules struct {
	PenaltyPerWrong          int `json:"penalty_per_wrong"`
	MaxSubmissionsPerProblem int `json:"max_submissions_per_problem"`
}

// DerivedStatus computes the status implied by the wall clock, independent of
// the cached Status column. Transitions are strictly forward.
func (c *Contest) DerivedStatus(now time.Time) ContestStatus {
	switch {
	case now.Before(c.StartTime):
		return ContestUpcoming
	case now.Before(c.EndTime):
		return ContestActive
	default:
		return ContestFinished
	}
}

// ContestRegistration records a user's entry into a contest. VirtualStartTime
// is set only for virtual participants and anchors their penalty clock.
type ContestRegistration struct {
	ContestID        string     `json:"contest_id"`
	UserID           string     `json:"user_id"`
	RegisteredAt     time.Time  `json:"registered_at"`
	IsVirtual        bool       `json:"is_virtual"`
	VirtualStartTime *time.Time `json:"virtual_start_time,omitempty"`
}
