// Package queue defines the judging job contract between the submission
// frontend and the judging workers, independent of the broker carrying it.
package queue

import "context"

// Job is the wire payload of one judging request. The frontend enqueues it
// when a submission is created; a worker picks it up and judges the
// submission it names.
type Job struct {
	SubmissionID int64 `json:"submission_id"`
}

// Handler processes one job. A nil return acknowledges the message; an
// error leaves it to the broker's redelivery semantics.
type Handler func(ctx context.Context, job Job) error

// Consumer delivers jobs to a handler until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, handle Handler) error
}

// Enqueuer submits a job for asynchronous judging.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}
