package model

import "time"

type DuelKind string

const (
	DuelCoding DuelKind = "coding"
	DuelTyping DuelKind = "typing"
)

type DuelStatus string

const (
	DuelWaiting   DuelStatus = "waiting"
	DuelActive    DuelStatus = "active"
	DuelFinished  DuelStatus = "finished"
	DuelCancelled DuelStatus = "cancelled"
)

type DuelOutcome string

const (
	OutcomeWin  DuelOutcome = "win"
	OutcomeLoss DuelOutcome = "loss"
	OutcomeDraw DuelOutcome = "draw"
)

// DuelHistory is the persisted per-participant outcome of a finished duel.
// Live room state itself is never persisted.
type DuelHistory struct {
	ID         string      `json:"id"`
	RoomCode   string      `json:"room_code"`
	Kind       DuelKind    `json:"kind"`
	UserID     string      `json:"user_id"`
	OpponentID string      `json:"opponent_id,omitempty"`
	Outcome    DuelOutcome `json:"outcome"`
	ProblemID  *string     `json:"problem_id,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	EndedAt    time.Time   `json:"ended_at"`
}

// TypingStats is a participant's live typing-duel progress snapshot.
type TypingStats struct {
	WordIndex int     `json:"word_index"`
	WPM       float64 `json:"wpm"`
	Accuracy  float64 `json:"accuracy"`
	Completed bool    `json:"completed"`
}
