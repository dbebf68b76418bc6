package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/felixcuello/cp-server/internal/compiler"
)

// ErrAlreadyJudged is returned when a judge invocation loses the claim on a
// submission: another worker holds it, or it already reached a terminal
// status. Re-deliveries from an at-least-once queue end up here and are
// harmless.
var ErrAlreadyJudged = errors.New("submission already claimed or judged")

// Orchestrator drives a submission through the judging state machine:
// claim, compile once, evaluate examples in order until the first failure,
// persist the terminal status and its side effects.
type Orchestrator struct {
	problems    ProblemStore
	submissions SubmissionStore
	evaluator   *Evaluator
	compiler    Compiler
	scratchRoot string
	log         *slog.Logger
}

type OrchestratorConfig struct {
	Problems    ProblemStore
	Submissions SubmissionStore
	Evaluator   *Evaluator
	Compiler    Compiler
	ScratchRoot string
	Logger      *slog.Logger
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem store is required")
	}
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.Compiler == nil {
		return nil, fmt.Errorf("compiler is required")
	}
	if cfg.ScratchRoot == "" {
		cfg.ScratchRoot = os.TempDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		problems:    cfg.Problems,
		submissions: cfg.Submissions,
		evaluator:   cfg.Evaluator,
		compiler:    cfg.Compiler,
		scratchRoot: cfg.ScratchRoot,
		log:         cfg.Logger,
	}, nil
}

// Judge is the worker callback: it judges one submission to a terminal
// status. Nothing below the claim escapes as an error; infrastructure
// failures and panics become the terminal "error" status so a submission
// never wedges a worker.
func (o *Orchestrator) Judge(ctx context.Context, submissionID int64) (err error) {
	log := o.log.With("submission_id", submissionID)

	sub, err := o.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("load submission %d: %w", submissionID, err)
	}

	lang, err := o.problems.GetLanguage(ctx, sub.LanguageID)
	if err != nil {
		return fmt.Errorf("load language %d: %w", sub.LanguageID, err)
	}

	// Check-and-claim guards against duplicate queue deliveries: only a
	// pending submission may enter the state machine, exactly once.
	next := StatusRunning
	if lang.Compiled() {
		next = StatusCompiling
	}
	claimed, err := o.submissions.ClaimForJudging(ctx, submissionID, next)
	if err != nil {
		return fmt.Errorf("claim submission %d: %w", submissionID, err)
	}
	if !claimed {
		log.Info("skipping submission, claim lost", "status", sub.Status)
		return ErrAlreadyJudged
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while judging", "panic", r)
			o.finalize(ctx, sub, StatusError, time.Since(started))
			err = fmt.Errorf("panic while judging submission %d: %v", submissionID, r)
		}
	}()

	status := o.judge(ctx, log, sub, lang)
	o.finalize(ctx, sub, status, time.Since(started))
	log.Info("judging finished", "status", status,
		"elapsed_ms", time.Since(started).Milliseconds())
	return nil
}

func (o *Orchestrator) judge(ctx context.Context, log *slog.Logger, sub Submission, lang Language) Status {
	if err := lang.Validate(); err != nil {
		log.Error("language misconfigured", "err", err)
		return StatusError
	}

	prob, err := o.problems.GetProblem(ctx, sub.ProblemID)
	if err != nil {
		log.Error("load problem failed", "problem_id", sub.ProblemID, "err", err)
		return StatusError
	}

	examples, err := o.problems.OrderedExamples(ctx, sub.ProblemID)
	if err != nil {
		log.Error("load examples failed", "problem_id", sub.ProblemID, "err", err)
		return StatusError
	}
	sort.SliceStable(examples, func(i, j int) bool {
		return examples[i].SortOrder < examples[j].SortOrder
	})

	source, err := o.sourceFor(ctx, prob, lang, sub.SourceCode)
	if err != nil {
		log.Error("preparing source failed", "err", err)
		return StatusError
	}

	// Compile once, run many: the artifact is shared by every test case.
	artifact := ""
	if lang.Compiled() {
		dir := filepath.Join(o.scratchRoot, "submission-"+uuid.NewString())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("create scratch directory failed", "err", err)
			return StatusError
		}
		defer os.RemoveAll(dir)

		sourcePath := filepath.Join(dir, "source."+lang.Extension)
		if err := os.WriteFile(sourcePath, []byte(source), 0o644); err != nil {
			log.Error("write source failed", "err", err)
			return StatusError
		}

		artifact = filepath.Join(dir, "program")
		err := o.compiler.Compile(ctx, lang.CompilerBinary, lang.CompilerFlags, sourcePath, artifact)
		var cerr *compiler.Error
		if errors.As(err, &cerr) {
			log.Info("compilation error", "stderr", cerr.Stderr)
			return StatusCompilationError
		}
		if err != nil {
			log.Error("compiler invocation failed", "err", err)
			return StatusError
		}

		if err := o.submissions.UpdateStatus(ctx, sub.ID, StatusRunning); err != nil {
			log.Error("status update failed", "status", StatusRunning, "err", err)
		}
	}

	// Examples run strictly in sort order and the first failure is final;
	// later cases are never executed.
	for i, ex := range examples {
		res := o.evaluator.Evaluate(ctx, source, lang, ex, prob, artifact)
		if res.Verdict == VerdictPassed {
			continue
		}
		log.Info("example failed", "example", i+1, "verdict", res.Verdict,
			"message", res.ErrorMessage)
		return StatusForVerdict(res.Verdict, i+1)
	}
	return StatusAccepted
}

// sourceFor selects the source-preparation strategy once per submission:
// stdin/stdout problems run the user's code as-is, function-mode problems
// splice it into the language's tester harness.
func (o *Orchestrator) sourceFor(ctx context.Context, prob Problem, lang Language, userCode string) (string, error) {
	if prob.TestingMode != TestingModeFunction {
		return userCode, nil
	}

	template, err := o.problems.TemplateFor(ctx, prob.ID, lang.ID)
	if err != nil {
		return "", fmt.Errorf("load template: %w", err)
	}
	if template == nil {
		return "", fmt.Errorf("template not found for %s: problem %d does not support this language", lang.Name, prob.ID)
	}

	tester, err := o.problems.TesterFor(ctx, prob.ID, lang.ID)
	if err != nil {
		return "", fmt.Errorf("load tester: %w", err)
	}
	if tester == nil {
		return "", fmt.Errorf("tester not found for %s on problem %d", lang.Name, prob.ID)
	}

	return SpliceUserCode(tester.TesterCode, userCode)
}

// finalize persists the terminal state and its side effects. Failures here
// are logged, not propagated: the submission status is the sole
// user-visible channel and a partial side effect must not crash judging.
func (o *Orchestrator) finalize(ctx context.Context, sub Submission, status Status, elapsed time.Duration) {
	log := o.log.With("submission_id", sub.ID)

	if err := o.submissions.UpdateTimeUsed(ctx, sub.ID, elapsed.Seconds()); err != nil {
		log.Error("persist time_used failed", "err", err)
	}
	if err := o.submissions.UpdateStatus(ctx, sub.ID, status); err != nil {
		log.Error("persist status failed", "status", status, "err", err)
	}

	total, accepted, err := o.submissions.CountForProblem(ctx, sub.ProblemID)
	if err != nil {
		log.Error("count submissions failed", "err", err)
	} else if err := o.problems.UpdateStatistics(ctx, sub.ProblemID, total, accepted); err != nil {
		log.Error("update problem statistics failed", "err", err)
	}

	if err := o.submissions.UpsertUserProblemStatus(ctx, sub.UserID, sub.ProblemID, status == StatusAccepted); err != nil {
		log.Error("upsert user problem status failed", "err", err)
	}
}
