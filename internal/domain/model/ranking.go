package model

import "time"

type RankTier string

const (
	TierNewbie      RankTier = "Newbie"
	TierPupil       RankTier = "Pupil"
	TierSpecialist  RankTier = "Specialist"
	TierExpert      RankTier = "Expert"
	TierCandidate   RankTier = "Candidate Master"
	TierMaster      RankTier = "Master"
	TierGrandmaster RankTier = "Grandmaster"
)

// TierForRating maps a rating onto its threshold band.
func TierForRating(rating int) RankTier {
	switch {
	case rating < 1200:
		return TierNewbie
	case rating < 1400:
		return TierPupil
	case rating < 1600:
		return TierSpecialist
	case rating < 1900:
		return TierExpert
	case rating < 2100:
		return TierCandidate
	case rating < 2400:
		return TierMaster
	default:
		return TierGrandmaster
	}
}

// ContestRanking is one user's persistent rating record.
type ContestRanking struct {
	UserID       string               `json:"user_id"`
	Rating       int                  `json:"rating"`
	MaxRating    int                  `json:"max_rating"`
	Tier         RankTier             `json:"tier"`
	GlobalRank   int                  `json:"global_rank"`
	History      []RatingChange       `json:"history,omitempty"`
	Performances []ContestPerformance `json:"performances,omitempty"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

type RatingChange struct {
	ContestID string    `json:"contest_id"`
	OldRating int       `json:"old_rating"`
	NewRating int       `json:"new_rating"`
	Delta     int       `json:"delta"`
	AppliedAt time.Time `json:"applied_at"`
}

type ContestPerformance struct {
	ContestID string    `json:"contest_id"`
	Rank      int       `json:"rank"`
	Score     int       `json:"score"`
	Penalty   int       `json:"penalty"`
	At        time.Time `json:"at"`
}

// DuelStats is the rating-agnostic per-user duel record (wins/losses/XP),
// updated whenever a duel ends. Distinct from contest rating.
type DuelStats struct {
	UserID    string    `json:"user_id"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Draws     int       `json:"draws"`
	XP        int       `json:"xp"`
	UpdatedAt time.Time `json:"updated_at"`
}
