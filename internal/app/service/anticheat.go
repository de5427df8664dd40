package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"codeduel/internal/common"
	"codeduel/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// AntiCheatService classifies violations and drives disqualification. Duel
// rooms keep their own per-participant minor-violation counters and consult
// Assess; contest-mode disqualifications are recorded in Redis with a TTL and
// overlaid onto the scoreboard without touching the submission log.
type AntiCheatService struct {
	rdb        *redis.Client
	minorLimit int
	dqTTL      time.Duration
}

func NewAntiCheatService(rdb *redis.Client, minorLimit int, dqTTL time.Duration) *AntiCheatService {
	return &AntiCheatService{rdb: rdb, minorLimit: minorLimit, dqTTL: dqTTL}
}

type Assessment struct {
	Disqualify bool   `json:"disqualify"`
	Reason     string `json:"reason,omitempty"`
	// MinorCount is the caller's updated counter after this violation.
	MinorCount int `json:"minor_count"`
}

// Assess classifies one violation. priorMinorCount is the number of minor
// violations the same user already has in the same room or contest.
func (s *AntiCheatService) Assess(kind model.ViolationKind, priorMinorCount int) (Assessment, error) {
	if !kind.Valid() {
		return Assessment{}, fmt.Errorf("unknown violation kind %q: %w", kind, common.ErrValidation)
	}
	if kind.Serious() {
		return Assessment{
			Disqualify: true,
			Reason:     string(kind),
			MinorCount: priorMinorCount,
		}, nil
	}
	count := priorMinorCount + 1
	if count >= s.minorLimit {
		return Assessment{
			Disqualify: true,
			Reason:     model.ReasonMultipleViolations,
			MinorCount: count,
		}, nil
	}
	return Assessment{MinorCount: count}, nil
}

func contestDQKey(contestID, userID string) string {
	return "contest_dq:" + contestID + ":" + userID
}

func contestMinorKey(contestID, userID string) string {
	return "contest_violations:" + contestID + ":" + userID
}

// ReportContestViolation runs the assessment against the contest-scoped
// counter and records a disqualification flag when warranted.
func (s *AntiCheatService) ReportContestViolation(ctx context.Context, contestID, userID string, kind model.ViolationKind) (Assessment, error) {
	prior := 0
	if !kind.Serious() {
		count, err := s.rdb.Incr(ctx, contestMinorKey(contestID, userID)).Result()
		if err != nil {
			return Assessment{}, fmt.Errorf("failed to count violation: %w", err)
		}
		s.rdb.Expire(ctx, contestMinorKey(contestID, userID), s.dqTTL)
		prior = int(count) - 1
	}

	assessment, err := s.Assess(kind, prior)
	if err != nil {
		return Assessment{}, err
	}
	if assessment.Disqualify {
		if err := s.DisqualifyContestUser(ctx, contestID, userID, assessment.Reason); err != nil {
			return Assessment{}, err
		}
	}
	return assessment, nil
}

func (s *AntiCheatService) DisqualifyContestUser(ctx context.Context, contestID, userID, reason string) error {
	if err := s.rdb.Set(ctx, contestDQKey(contestID, userID), reason, s.dqTTL).Err(); err != nil {
		return fmt.Errorf("failed to record disqualification: %w", err)
	}
	log.Printf("WARN: user %s disqualified in contest %s: %s", userID, contestID, reason)
	return nil
}

// DisqualifiedUsers returns the subset of userIDs currently flagged for the
// contest. Redis being down degrades to an empty overlay rather than an
// error; standings must stay readable.
func (s *AntiCheatService) DisqualifiedUsers(ctx context.Context, contestID string, userIDs []string) map[string]bool {
	flagged := make(map[string]bool)
	if len(userIDs) == 0 {
		return flagged
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = contestDQKey(contestID, id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		log.Printf("WARN: failed to read disqualification flags for contest %s: %v", contestID, err)
		return flagged
	}
	for i, v := range values {
		if v != nil {
			flagged[userIDs[i]] = true
		}
	}
	return flagged
}
