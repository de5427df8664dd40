package worker

import (
	"context"
	"log"
	"time"

	"codeduel/internal/app/service"
	"codeduel/internal/common/clock"
	"codeduel/internal/domain/model"
	"codeduel/internal/domain/repository"
)

// ContestScheduler drives contest lifecycle transitions off wall-clock time.
// Every tick it compares each unfinished contest's stored status against the
// status its time window implies and advances it at most one step forward.
// Transitions only ever move forward; a contest whose stored status is ahead
// of its window is left alone.
type ContestScheduler struct {
	contestRepo repository.ContestRepository
	contests    *service.ContestService
	leaderboard *service.LeaderboardService
	clk         clock.Clock
	interval    time.Duration
	purgeDelay  time.Duration
}

func NewContestScheduler(
	contestRepo repository.ContestRepository,
	contests *service.ContestService,
	leaderboard *service.LeaderboardService,
	clk clock.Clock,
	interval, purgeDelay time.Duration,
) *ContestScheduler {
	return &ContestScheduler{
		contestRepo: contestRepo,
		contests:    contests,
		leaderboard: leaderboard,
		clk:         clk,
		interval:    interval,
		purgeDelay:  purgeDelay,
	}
}

func (s *ContestScheduler) Start(ctx context.Context) {
	log.Printf("Contest scheduler started, polling every %s.", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Contest scheduler stopping...")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduler pass. A failure on one contest is logged and does
// not block transitions for the others; missed transitions are retried on
// the next tick, so every step is idempotent.
func (s *ContestScheduler) Tick(ctx context.Context) {
	contests, err := s.contestRepo.ListUnfinishedContests(ctx)
	if err != nil {
		log.Printf("ERROR: scheduler failed to list contests: %v", err)
		return
	}

	now := s.clk.Now()
	for i := range contests {
		contest := contests[i]
		if err := s.advance(ctx, &contest, now); err != nil {
			log.Printf("ERROR: scheduler failed to advance contest %s: %v", contest.ID, err)
		}
	}
}

// advance applies at most one forward transition per tick.
func (s *ContestScheduler) advance(ctx context.Context, contest *model.Contest, now time.Time) error {
	target := contest.DerivedStatus(now)
	if target == contest.Status {
		return nil
	}

	switch contest.Status {
	case model.ContestUpcoming:
		// An upcoming contest whose window already passed still activates
		// first; finishing happens on the next tick.
		if err := s.contestRepo.UpdateContestStatus(ctx, contest.ID, model.ContestActive); err != nil {
			return err
		}
		contest.Status = model.ContestActive
		s.leaderboard.InitNamespace(ctx, contest.ID)
		log.Printf("INFO: contest %s activated", contest.ID)

	case model.ContestActive:
		if target != model.ContestFinished {
			return nil
		}
		if err := s.contestRepo.UpdateContestStatus(ctx, contest.ID, model.ContestFinished); err != nil {
			return err
		}
		contest.Status = model.ContestFinished
		log.Printf("INFO: contest %s finished", contest.ID)

		if err := s.contests.Finalize(ctx, contest.ID); err != nil {
			return err
		}
		// Keep the cache warm for late readers, then drop it.
		contestID := contest.ID
		time.AfterFunc(s.purgeDelay, func() {
			purgeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.leaderboard.Purge(purgeCtx, contestID)
		})
	}
	return nil
}
