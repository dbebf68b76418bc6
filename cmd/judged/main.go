// Command judged is the judging daemon: it consumes submission jobs from
// the queue and judges them inside the nsjail sandbox.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"

	"github.com/felixcuello/cp-server/internal/compiler"
	"github.com/felixcuello/cp-server/internal/environment"
	"github.com/felixcuello/cp-server/internal/judge"
	"github.com/felixcuello/cp-server/internal/queue"
	"github.com/felixcuello/cp-server/internal/queue/natsqueue"
	"github.com/felixcuello/cp-server/internal/queue/sqsqueue"
	"github.com/felixcuello/cp-server/internal/sandbox"
	"github.com/felixcuello/cp-server/internal/store"
	"github.com/felixcuello/cp-server/internal/worker"
)

func main() {
	cfg, err := environment.ReadEnvConfig()
	if err == nil {
		err = cfg.ValidateQueue()
	}
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel(cfg.LogLevel),
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && err != context.Canceled {
		log.Error("judged exited with error", "err", err)
		os.Exit(1)
	}
	log.Info("judged stopped")
}

func run(ctx context.Context, cfg *environment.EnvConfig, log *slog.Logger) error {
	db, err := store.NewPostgres(cfg.SqlxConnString)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("connected to postgres")

	sandboxCfg := sandbox.DefaultConfig()
	sandboxCfg.NsjailBinary = cfg.NsjailBinary
	sandboxCfg.ChrootPath = cfg.ChrootPath
	if cfg.CgroupPath != "" {
		sandboxCfg.CgroupPath = cfg.CgroupPath
	}
	runner := sandbox.NewNsjailRunner(sandboxCfg, log)
	stage := compiler.NewStage(log)

	evaluator, err := judge.NewEvaluator(judge.EvaluatorConfig{
		Runner:      runner,
		Compiler:    stage,
		ScratchRoot: cfg.ScratchRoot,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	orchestrator, err := judge.NewOrchestrator(judge.OrchestratorConfig{
		Problems:    db,
		Submissions: db,
		Evaluator:   evaluator,
		Compiler:    stage,
		ScratchRoot: cfg.ScratchRoot,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	pool, err := worker.NewPool(cfg.WorkerCount, func(ctx context.Context, job queue.Job) error {
		err := orchestrator.Judge(ctx, job.SubmissionID)
		if err == judge.ErrAlreadyJudged {
			return nil
		}
		return err
	}, log)
	if err != nil {
		return err
	}

	consumer, err := newConsumer(ctx, cfg, log)
	if err != nil {
		return err
	}

	log.Info("judged started",
		"queue_backend", cfg.QueueBackend,
		"workers", cfg.WorkerCount)

	consumeErr := consumer.Consume(ctx, pool.Handle)

	// Drain in-flight judging before exiting so no submission is left in
	// a transient status by shutdown.
	log.Info("draining in-flight submissions")
	if err := pool.Wait(); err != nil {
		return err
	}
	return consumeErr
}

func newConsumer(ctx context.Context, cfg *environment.EnvConfig, log *slog.Logger) (queue.Consumer, error) {
	switch cfg.QueueBackend {
	case environment.QueueBackendNATS:
		nc, err := nats.Connect(cfg.NATSUrl)
		if err != nil {
			return nil, err
		}
		return natsqueue.New(nc, cfg.NATSSubject, log)
	default:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		return sqsqueue.New(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL, log)
	}
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
