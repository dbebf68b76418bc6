// Command judge is the operator CLI: it judges a single submission by ID,
// re-enqueues one for the daemon, or runs a local source file against a
// test case without touching the database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"

	"github.com/felixcuello/cp-server/internal/compiler"
	"github.com/felixcuello/cp-server/internal/environment"
	"github.com/felixcuello/cp-server/internal/judge"
	"github.com/felixcuello/cp-server/internal/langs"
	"github.com/felixcuello/cp-server/internal/queue"
	"github.com/felixcuello/cp-server/internal/queue/natsqueue"
	"github.com/felixcuello/cp-server/internal/queue/sqsqueue"
	"github.com/felixcuello/cp-server/internal/sandbox"
	"github.com/felixcuello/cp-server/internal/store"
)

func main() {
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelWarn,
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(log)

	cmd := &cli.Command{
		Name:  "judge",
		Usage: "judge submissions from the command line",
		Commands: []*cli.Command{
			submissionCommand(log),
			enqueueCommand(log),
			runCommand(log),
			examplesCommand(),
			addExampleCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func submissionCommand(log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "submission",
		Usage:     "judge one stored submission immediately",
		ArgsUsage: "<submission-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := submissionIDArg(cmd)
			if err != nil {
				return err
			}

			cfg, err := environment.ReadEnvConfig()
			if err != nil {
				return err
			}
			db, err := store.NewPostgres(cfg.SqlxConnString)
			if err != nil {
				return err
			}
			defer db.Close()

			orchestrator, err := buildOrchestrator(cfg, db, db, log)
			if err != nil {
				return err
			}
			if err := orchestrator.Judge(ctx, id); err != nil {
				return err
			}

			sub, err := db.GetSubmission(ctx, id)
			if err != nil {
				return err
			}
			printStatus(sub.Status, sub.TimeUsed)
			return nil
		},
	}
}

func enqueueCommand(log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "enqueue",
		Usage:     "push one stored submission onto the judging queue",
		ArgsUsage: "<submission-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := submissionIDArg(cmd)
			if err != nil {
				return err
			}

			cfg, err := environment.ReadEnvConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateQueue(); err != nil {
				return err
			}
			enqueuer, err := newEnqueuer(ctx, cfg, log)
			if err != nil {
				return err
			}
			if err := enqueuer.Enqueue(ctx, queue.Job{SubmissionID: id}); err != nil {
				return err
			}
			fmt.Printf("submission %d enqueued\n", id)
			return nil
		},
	}
}

func runCommand(log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "judge a local source file against a test case, no database",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "languages", Value: "languages.toml", Usage: "language registry file"},
			&cli.StringFlag{Name: "language", Required: true, Usage: "language name from the registry"},
			&cli.StringFlag{Name: "source", Required: true, Usage: "source file to judge"},
			&cli.StringFlag{Name: "input", Required: true, Usage: "stdin for the program"},
			&cli.StringFlag{Name: "expected", Required: true, Usage: "expected stdout"},
			&cli.IntFlag{Name: "time-limit", Value: 1, Usage: "time limit in seconds"},
			&cli.IntFlag{Name: "memory-limit", Value: 262144, Usage: "memory limit in KB"},
			&cli.BoolFlag{Name: "ignore-line-order", Usage: "accept output lines in any order"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			registry, err := langs.Load(cmd.String("languages"))
			if err != nil {
				return err
			}
			lang, ok := registry.ByName(cmd.String("language"))
			if !ok {
				return fmt.Errorf("language %q is not in the registry", cmd.String("language"))
			}

			source, err := os.ReadFile(cmd.String("source"))
			if err != nil {
				return err
			}
			input, err := os.ReadFile(cmd.String("input"))
			if err != nil {
				return err
			}
			expected, err := os.ReadFile(cmd.String("expected"))
			if err != nil {
				return err
			}

			cfg, err := environment.ReadEnvConfig()
			if err != nil {
				return err
			}

			mem := store.NewMemory()
			mem.AddLanguage(lang)
			mem.AddProblem(judge.Problem{
				ID:                    1,
				Title:                 "local run",
				TimeLimitSec:          int(cmd.Int("time-limit")),
				MemoryLimitKB:         int(cmd.Int("memory-limit")),
				TestingMode:           judge.TestingModeStdinStdout,
				IgnoreOutputLineOrder: cmd.Bool("ignore-line-order"),
			})
			mem.AddExample(judge.Example{
				ID:        1,
				ProblemID: 1,
				Input:     string(input),
				Output:    string(expected),
				SortOrder: 1,
			})
			mem.AddSubmission(judge.Submission{
				ID:         1,
				ProblemID:  1,
				LanguageID: lang.ID,
				UserID:     1,
				SourceCode: string(source),
				Status:     judge.StatusQueued,
			})

			orchestrator, err := buildOrchestrator(cfg, mem, mem, log)
			if err != nil {
				return err
			}
			if err := orchestrator.Judge(ctx, 1); err != nil {
				return err
			}

			sub, err := mem.GetSubmission(ctx, 1)
			if err != nil {
				return err
			}
			printStatus(sub.Status, sub.TimeUsed)
			return nil
		},
	}
}

func examplesCommand() *cli.Command {
	return &cli.Command{
		Name:      "examples",
		Usage:     "list a problem's visible examples, the preview users see",
		ArgsUsage: "<problem-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var problemID int64
			if _, err := fmt.Sscanf(cmd.Args().First(), "%d", &problemID); err != nil || problemID < 1 {
				return fmt.Errorf("expected a positive problem id, got %q", cmd.Args().First())
			}

			cfg, err := environment.ReadEnvConfig()
			if err != nil {
				return err
			}
			db, err := store.NewPostgres(cfg.SqlxConnString)
			if err != nil {
				return err
			}
			defer db.Close()

			examples, err := db.OrderedExamples(ctx, problemID)
			if err != nil {
				return err
			}
			visible := judge.VisibleExamples(examples)
			if len(visible) == 0 {
				fmt.Printf("problem %d has no visible examples (%d hidden)\n",
					problemID, len(examples))
				return nil
			}
			for i, ex := range visible {
				color.Cyan("example %d", i+1)
				fmt.Printf("input:\n%s\noutput:\n%s\n", ex.Input, ex.Output)
			}
			return nil
		},
	}
}

func addExampleCommand() *cli.Command {
	return &cli.Command{
		Name:  "add-example",
		Usage: "store a new test case for a problem",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "problem", Required: true, Usage: "problem id"},
			&cli.StringFlag{Name: "input", Required: true, Usage: "file with the case's stdin"},
			&cli.StringFlag{Name: "expected", Required: true, Usage: "file with the expected stdout"},
			&cli.IntFlag{Name: "order", Value: 1, Usage: "execution order among the problem's cases"},
			&cli.BoolFlag{Name: "hidden", Usage: "exclude the case from the user-facing preview"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			input, err := os.ReadFile(cmd.String("input"))
			if err != nil {
				return err
			}
			expected, err := os.ReadFile(cmd.String("expected"))
			if err != nil {
				return err
			}

			cfg, err := environment.ReadEnvConfig()
			if err != nil {
				return err
			}
			db, err := store.NewPostgres(cfg.SqlxConnString)
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := db.AddExample(ctx, judge.Example{
				ProblemID: cmd.Int("problem"),
				Input:     string(input),
				Output:    string(expected),
				SortOrder: int(cmd.Int("order")),
				IsHidden:  cmd.Bool("hidden"),
			})
			if err != nil {
				return err
			}
			fmt.Printf("example %d added to problem %d\n", id, cmd.Int("problem"))
			return nil
		},
	}
}

func buildOrchestrator(cfg *environment.EnvConfig, problems judge.ProblemStore, submissions judge.SubmissionStore, log *slog.Logger) (*judge.Orchestrator, error) {
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
		return nil, err
	}

	return judge.NewOrchestrator(judge.OrchestratorConfig{
		Problems:    problems,
		Submissions: submissions,
		Evaluator:   evaluator,
		Compiler:    stage,
		ScratchRoot: cfg.ScratchRoot,
		Logger:      log,
	})
}

func newEnqueuer(ctx context.Context, cfg *environment.EnvConfig, log *slog.Logger) (queue.Enqueuer, error) {
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

func submissionIDArg(cmd *cli.Command) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(cmd.Args().First(), "%d", &id); err != nil || id < 1 {
		return 0, fmt.Errorf("expected a positive submission id, got %q", cmd.Args().First())
	}
	return id, nil
}

func printStatus(status judge.Status, timeUsed float64) {
	c := color.New(color.FgRed, color.Bold)
	switch {
	case status == judge.StatusAccepted:
		c = color.New(color.FgGreen, color.Bold)
	case status == judge.StatusTimeLimitExceeded, status == judge.StatusMemoryLimitExceeded:
		c = color.New(color.FgYellow, color.Bold)
	}
	c.Printf("%s %s", status.Icon(), status)
	fmt.Printf("  (%.2fs)\n", timeUsed)
}
