package model

import "time"

// LeaderboardEntry is one derived scoreboard row. Disqualified is an overlay
// flag: disqualified users keep their row and rank for audit.
type LeaderboardEntry struct {
	Rank           int                     `json:"rank"`
	UserID         string                  `json:"user_id"`
	Username       string                  `json:"username,omitempty"`
	TotalScore     int                     `json:"total_score"`
	TotalPenalty   int                     `json:"total_penalty"`
	ProblemsSolved int                     `json:"problems_solved"`
	Problems       map[string]ProblemScore `json:"problems"`
	LastAcceptedAt time.Time               `json:"last_accepted_at"`
	Disqualified   bool                    `json:"disqualified"`
}

type ProblemScore struct {
	Attempts        int        `json:"attempts"`
	WrongAttempts   int        `json:"wrong_attempts"`
	Solved          bool       `json:"solved"`
	Points          int        `json:"points"`
	Penalty         int        `json:"penalty"`
	FirstAcceptedAt *time.Time `json:"first_accepted_at,omitempty"`
}

// FinalStandings is the snapshot persisted at contest finalization,
// kept separately for real and virtual participation.
type FinalStandings struct {
	ContestID   string             `json:"contest_id"`
	IsVirtual   bool               `json:"is_virtual"`
	Entries     []LeaderboardEntry `json:"entries"`
	FinalizedAt time.Time          `json:"finalized_at"`
}
