// Package natsqueue carries judging jobs over NATS. Workers join a shared
// queue group so each job is delivered to exactly one of them.
package natsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/felixcuello/cp-server/internal/queue"
)

const queueGroup = "judged-workers"

type Queue struct {
	nc      *nats.Conn
	subject string
	log     *slog.Logger
}

func New(nc *nats.Conn, subject string, log *slog.Logger) (*Queue, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Queue{nc: nc, subject: subject, log: log}, nil
}

// Consume subscribes to the job subject and blocks until ctx is cancelled.
// NATS core delivery is at-most-once; the worker-side claim guard still
// applies because the frontend may re-publish a stuck submission.
func (q *Queue) Consume(ctx context.Context, handle queue.Handler) error {
	sub, err := q.nc.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		var job queue.Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			q.log.Error("dropping malformed job", "data", string(msg.Data), "err", err)
			return
		}
		if err := handle(ctx, job); err != nil {
			q.log.Error("job handling failed", "submission_id", job.SubmissionID, "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to %q: %w", q.subject, err)
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return ctx.Err()
}

func (q *Queue) Enqueue(ctx context.Context, job queue.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.nc.Publish(q.subject, body); err != nil {
		return fmt.Errorf("publish job for submission %d: %w", job.SubmissionID, err)
	}
	return nil
}
