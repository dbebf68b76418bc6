// Package worker fans judging jobs out to a bounded pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/felixcuello/cp-server/internal/queue"
)

// Pool runs jobs concurrently up to a fixed limit. Handle blocks when the
// pool is full, which pushes backpressure onto the queue consumer, and
// suppresses jobs for a submission that is already in flight on this
// worker.
type Pool struct {
	group    *errgroup.Group
	judge    queue.Handler
	inflight mapset.Set[int64]
	log      *slog.Logger
}

func NewPool(size int, judge queue.Handler, log *slog.Logger) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	if judge == nil {
		return nil, fmt.Errorf("judge handler is required")
	}
	if log == nil {
		log = slog.Default()
	}
	group := &errgroup.Group{}
	group.SetLimit(size)
	return &Pool{
		group:    group,
		judge:    judge,
		inflight: mapset.NewSet[int64](),
		log:      log,
	}, nil
}

// Handle schedules one job, blocking until a pool slot frees up. A nil
// return means accepted for processing, not judged: the consumer acks on
// it, so the job's fate from here on is the pool's. Judging errors are
// logged rather than returned because a failed submission must not take
// the consumer loop down with it.
func (p *Pool) Handle(ctx context.Context, job queue.Job) error {
	if !p.inflight.Add(job.SubmissionID) {
		p.log.Info("duplicate delivery while in flight, skipping",
			"submission_id", job.SubmissionID)
		return nil
	}

	p.group.Go(func() error {
		defer p.inflight.Remove(job.SubmissionID)
		if err := p.judge(ctx, job); err != nil {
			p.log.Error("judging job failed", "submission_id", job.SubmissionID, "err", err)
		}
		return nil
	})
	return nil
}

// Wait blocks until every scheduled job has finished. Call it after the
// consumer loop stops to drain in-flight work before shutdown.
func (p *Pool) Wait() error {
	return p.group.Wait()
}
