// Package sqsqueue carries judging jobs over AWS SQS.
package sqsqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/felixcuello/cp-server/internal/queue"
)

// Client is the subset of the SQS API the queue uses.
type Client interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type Queue struct {
	client   Client
	queueURL string
	log      *slog.Logger
}

func New(client Client, queueURL string, log *slog.Logger) (*Queue, error) {
	if client == nil {
		return nil, fmt.Errorf("sqs client is required")
	}
	if queueURL == "" {
		return nil, fmt.Errorf("sqs queue url is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Queue{client: client, queueURL: queueURL, log: log}, nil
}

// Consume long-polls the queue until ctx is cancelled. A message is deleted
// once the handler accepts it; with an asynchronous handler such as the
// worker pool that is acceptance for processing, not completion, so a crash
// mid-judging can lose the delivery and leaves the submission in a
// non-terminal status. Handler errors leave the message for redelivery
// after the visibility timeout, which is what makes the worker-side claim
// guard necessary.
func (q *Queue) Consume(ctx context.Context, handle queue.Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		output, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     5,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			q.log.Error("sqs receive failed", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		for _, msg := range output.Messages {
			var job queue.Job
			if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &job); err != nil {
				// Malformed payloads never become valid; drop them.
				q.log.Error("dropping malformed job", "body", aws.ToString(msg.Body), "err", err)
				q.deleteMessage(ctx, msg.ReceiptHandle)
				continue
			}

			if err := handle(ctx, job); err != nil {
				q.log.Error("job handling failed, leaving message for redelivery",
					"submission_id", job.SubmissionID, "err", err)
				continue
			}
			q.deleteMessage(ctx, msg.ReceiptHandle)
		}
	}
}

func (q *Queue) deleteMessage(ctx context.Context, receiptHandle *string) {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		q.log.Error("sqs delete failed", "err", err)
	}
}

func (q *Queue) Enqueue(ctx context.Context, job queue.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send job for submission %d: %w", job.SubmissionID, err)
	}
	return nil
}
