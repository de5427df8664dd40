package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"codeduel/internal/app/service"

	"github.com/redis/go-redis/v9"
)

// SubmissionWorker consumes queued contest submission ids and evaluates them
// through the submission service. It applies the same verdict semantics as
// the synchronous path.
type SubmissionWorker struct {
	rdb         *redis.Client
	submissions *service.SubmissionService
	queueName   string
}

func NewSubmissionWorker(rdb *redis.Client, submissions *service.SubmissionService, queueName string) *SubmissionWorker {
	return &SubmissionWorker{
		rdb:         rdb,
		submissions: submissions,
		queueName:   queueName,
	}
}

func (w *SubmissionWorker) Start(ctx context.Context) {
	log.Println("Submission worker started, listening to queue:", w.queueName)
	for {
		select {
		case <-ctx.Done():
			log.Println("Submission worker stopping...")
			return
		default:
			result, err := w.rdb.BRPop(ctx, 0*time.Second, w.queueName).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					log.Printf("Worker BRPop exiting or timed out: %v", err)
					time.Sleep(1 * time.Second)
					continue
				}
				log.Printf("ERROR: Failed to BRPop from Redis queue '%s': %v", w.queueName, err)
				time.Sleep(5 * time.Second)
				continue
			}

			// result is [queueName, value]
			if len(result) < 2 || result[1] == "" {
				log.Println("WARN: BRPop returned empty submission ID.")
				continue
			}
			submissionID := result[1]
			log.Printf("Worker picked up submission ID: %s", submissionID)

			if err := w.submissions.ProcessQueuedSubmission(ctx, submissionID); err != nil {
				log.Printf("ERROR: Failed to process queued submission %s: %v", submissionID, err)
			}
		}
	}
}
