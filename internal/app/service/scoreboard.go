package service

import (
	"sort"

	"codeduel/internal/domain/model"
)

// GenerateScoreboard derives ranked standings from an append-only submission
// log. It is a pure function: same log in, same standings out, so concurrent
// recomputation is harmless and the cache can always be rebuilt from the log.
//
// Rules: submissions are processed in time order; the first accepted
// submission per (user, problem) locks in points and penalty, where
// penalty = minutes-from-start + wrong-attempts-before-accept * penalty-per-wrong.
// Later submissions to a solved problem change nothing. Ordering is score
// desc, total penalty asc, last accepted submission time asc. Disqualified
// users keep their row and rank; the flag is an overlay, never an exclusion.
func GenerateScoreboard(
	submissions []model.ContestSubmission,
	problems []model.ContestProblem,
	rules model.ContestRules,
	disqualified map[string]bool,
) []model.LeaderboardEntry {
	points := make(map[string]int, len(problems))
	for _, p := range problems {
		points[p.ProblemID] = p.Points
	}

	entries := make(map[string]*model.LeaderboardEntry)

	for _, sub := range submissions {
		entry, ok := entries[sub.UserID]
		if !ok {
			entry = &model.LeaderboardEntry{
				UserID:   sub.UserID,
				Problems: make(map[string]model.ProblemScore),
			}
			entries[sub.UserID] = entry
		}

		ps := entry.Problems[sub.ProblemID]
		if ps.Solved {
			// Score is locked in by the first accepted submission only.
			ps.Attempts++
			entry.Problems[sub.ProblemID] = ps
			continue
		}

		ps.Attempts++
		if sub.IsAccepted {
			ps.Solved = true
			ps.Points = points[sub.ProblemID]
			ps.Penalty = sub.MinutesFromStart + ps.WrongAttempts*rules.PenaltyPerWrong
			at := sub.SubmittedAt
			ps.FirstAcceptedAt = &at

			entry.TotalScore += ps.Points
			entry.TotalPenalty += ps.Penalty
			entry.ProblemsSolved++
			entry.LastAcceptedAt = sub.SubmittedAt
		} else {
			ps.WrongAttempts++
		}
		entry.Problems[sub.ProblemID] = ps
	}

	ranked := make([]model.LeaderboardEntry, 0, len(entries))
	for _, entry := range entries {
		ranked = append(ranked, *entry)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalScore != ranked[j].TotalScore {
			return ranked[i].TotalScore > ranked[j].TotalScore
		}
		if ranked[i].TotalPenalty != ranked[j].TotalPenalty {
			return ranked[i].TotalPenalty < ranked[j].TotalPenalty
		}
		if !ranked[i].LastAcceptedAt.Equal(ranked[j].LastAcceptedAt) {
			return ranked[i].LastAcceptedAt.Before(ranked[j].LastAcceptedAt)
		}
		// Stable output for fully tied users.
		return ranked[i].UserID < ranked[j].UserID
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
		if disqualified[ranked[i].UserID] {
			ranked[i].Disqualified = true
		}
	}
	return ranked
}
