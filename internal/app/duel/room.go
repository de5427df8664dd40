package duel

import (
	"time"

	"codeduel/internal/domain/model"
)

// Room is one live duel. Rooms live only in hub memory and are owned
// exclusively by the hub goroutine; they are never persisted and do not
// survive a restart.
type Room struct {
	Code         string
	Kind         model.DuelKind
	Status       model.DuelStatus
	HostID       string
	Participants []*Participant
	AutoStart    bool
	MaxSize      int

	// Coding duels carry a problem; typing duels carry the canonical text.
	ProblemID  string
	TypingText string

	StartedAt time.Time
	EndedAt   time.Time
	WinnerID  string
}

type Participant struct {
	UserID   string
	Username string
	Conn     Conn // nil while disconnected
	Ready    bool

	// Coding duel state.
	Code        string
	Submitted   bool
	LastVerdict *model.Verdict
	SubmittedAt time.Time

	// Typing duel state.
	Typing model.TypingStats

	Disqualified     bool
	DisqualifyReason string
	minorViolations  int
}

func (r *Room) participant(userID string) *Participant {
	for _, p := range r.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (r *Room) allReady() bool {
	for _, p := range r.Participants {
		if !p.Ready {
			return false
		}
	}
	return len(r.Participants) > 0
}

func (r *Room) activeParticipants() []*Participant {
	var active []*Participant
	for _, p := range r.Participants {
		if !p.Disqualified {
			active = append(active, p)
		}
	}
	return active
}

func (r *Room) broadcast(event Event) {
	for _, p := range r.Participants {
		if p.Conn != nil {
			p.Conn.Send(event)
		}
	}
}

// RoomSnapshot is the wire representation broadcast to participants.
type RoomSnapshot struct {
	Code         string                `json:"code"`
	Kind         model.DuelKind        `json:"kind"`
	Status       model.DuelStatus      `json:"status"`
	HostID       string                `json:"host_id"`
	ProblemID    string                `json:"problem_id,omitempty"`
	TypingText   string                `json:"typing_text,omitempty"`
	WinnerID     string                `json:"winner_id,omitempty"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	EndedAt      *time.Time            `json:"ended_at,omitempty"`
	Participants []ParticipantSnapshot `json:"participants"`
}

type ParticipantSnapshot struct {
	UserID           string            `json:"user_id"`
	Username         string            `json:"username"`
	Ready            bool              `json:"ready"`
	Connected        bool              `json:"connected"`
	Submitted        bool              `json:"submitted"`
	PassedCount      int               `json:"passed_count,omitempty"`
	TotalCount       int               `json:"total_count,omitempty"`
	Typing           model.TypingStats `json:"typing"`
	Disqualified     bool              `json:"disqualified"`
	DisqualifyReason string            `json:"disqualify_reason,omitempty"`
}

func (r *Room) snapshot() RoomSnapshot {
	snap := RoomSnapshot{
		Code:       r.Code,
		Kind:       r.Kind,
		Status:     r.Status,
		HostID:     r.HostID,
		ProblemID:  r.ProblemID,
		TypingText: r.TypingText,
		WinnerID:   r.WinnerID,
	}
	if !r.StartedAt.IsZero() {
		t := r.StartedAt
		snap.StartedAt = &t
	}
	if !r.EndedAt.IsZero() {
		t := r.EndedAt
		snap.EndedAt = &t
	}
	for _, p := range r.Participants {
		ps := ParticipantSnapshot{
			UserID:           p.UserID,
			Username:         p.Username,
			Ready:            p.Ready,
			Connected:        p.Conn != nil,
			Submitted:        p.Submitted,
			Typing:           p.Typing,
			Disqualified:     p.Disqualified,
			DisqualifyReason: p.DisqualifyReason,
		}
		if p.LastVerdict != nil {
			ps.PassedCount = p.LastVerdict.Passed
			ps.TotalCount = p.LastVerdict.Total
		}
		snap.Participants = append(snap.Participants, ps)
	}
	return snap
}
