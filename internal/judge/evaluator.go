package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/felixcuello/cp-server/internal/compiler"
	"github.com/felixcuello/cp-server/internal/sandbox"
)

// Compiler is the compilation-stage dependency of the evaluator and the
// orchestrator. *compiler.Stage satisfies it.
type Compiler interface {
	Compile(ctx context.Context, binary, flagTemplate, sourcePath, artifactPath string) error
}

// Evaluator runs one submission against one example: materialize files,
// compile if needed, execute in the sandbox, compare outputs. It is
// stateless across cases and safe for concurrent use.
type Evaluator struct {
	runner      sandbox.Runner
	compiler    Compiler
	scratchRoot string
	log         *slog.Logger
}

type EvaluatorConfig struct {
	Runner   sandbox.Runner
	Compiler Compiler
	// ScratchRoot is where ephemeral per-case directories are created.
	// Defaults to the system temp directory.
	ScratchRoot string
	Logger      *slog.Logger
}

func NewEvaluator(cfg EvaluatorConfig) (*Evaluator, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("sandbox runner is required")
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
	return &Evaluator{
		runner:      cfg.Runner,
		compiler:    cfg.Compiler,
		scratchRoot: cfg.ScratchRoot,
		log:         cfg.Logger,
	}, nil
}

// Evaluate judges source against one example of prob. artifactPath, when
// non-empty, is a precompiled binary reused across cases (compile once,
// run many); an empty artifactPath for a compiled language makes the
// evaluator compile on the spot.
//
// Every file the evaluation touches lives in a process-unique scratch
// directory that is removed on every exit path.
func (e *Evaluator) Evaluate(ctx context.Context, source string, lang Language, ex Example, prob Problem, artifactPath string) CaseResult {
	dir := filepath.Join(e.scratchRoot, "judge-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return infraError(fmt.Errorf("create scratch directory: %w", err))
	}
	defer os.RemoveAll(dir)

	sourcePath := filepath.Join(dir, "source."+lang.Extension)
	inputPath := filepath.Join(dir, "input.in")
	outputPath := filepath.Join(dir, "output.out")

	if err := os.WriteFile(sourcePath, []byte(source), 0o644); err != nil {
		return infraError(fmt.Errorf("write source file: %w", err))
	}
	if err := os.WriteFile(inputPath, []byte(ex.Input), 0o644); err != nil {
		return infraError(fmt.Errorf("write input file: %w", err))
	}

	if lang.Compiled() && artifactPath == "" {
		artifactPath = filepath.Join(dir, "program")
		err := e.compiler.Compile(ctx, lang.CompilerBinary, lang.CompilerFlags, sourcePath, artifactPath)
		var cerr *compiler.Error
		if errors.As(err, &cerr) {
			return CaseResult{
				Verdict:      VerdictCompilationError,
				ErrorMessage: cerr.Stderr,
			}
		}
		if err != nil {
			return infraError(err)
		}
	}

	timeLimit := EffectiveTimeLimitSec(lang, prob)
	memoryLimit := EffectiveMemoryLimitMB(lang, prob)

	spec := sandbox.RunSpec{
		InputFile:     inputPath,
		OutputFile:    outputPath,
		TimeoutSec:    timeLimit,
		MemoryLimitMB: memoryLimit,
	}
	if lang.Compiled() {
		spec.ProgramFile = artifactPath
	} else {
		spec.ProgramFile = sourcePath
		spec.Interpreter = interpreterArgv(lang)
	}

	res, err := e.runner.Run(ctx, spec)
	if err != nil {
		e.log.Error("sandbox run failed", "example_id", ex.ID, "err", err)
		return infraError(err)
	}

	return e.mapResult(res, ex, prob, timeLimit)
}

// mapResult applies the verdict precedence: timeout, then OOM, then
// runtime error, then output comparison.
func (e *Evaluator) mapResult(res sandbox.ExecutionResult, ex Example, prob Problem, timeLimit int) CaseResult {
	switch {
	case res.ExitCode == sandbox.ExitCodeNotFound:
		// Broken sandbox infrastructure, not a user failure.
		e.log.Error("sandbox misconfigured", "stderr", res.Stderr)
		return CaseResult{
			Verdict:      VerdictError,
			RuntimeMs:    res.ExecutionTimeMs,
			ErrorMessage: res.Stderr,
		}
	case res.TimedOut:
		return CaseResult{
			Verdict:      VerdictTimeLimitExceeded,
			RuntimeMs:    res.ExecutionTimeMs,
			ErrorMessage: fmt.Sprintf("Time limit exceeded (> %ds)", timeLimit),
		}
	case res.OomKilled:
		return CaseResult{
			Verdict:      VerdictMemoryLimitExceeded,
			RuntimeMs:    res.ExecutionTimeMs,
			ErrorMessage: "Memory limit exceeded",
		}
	case !res.Success():
		msg := fmt.Sprintf("Runtime error (exit code %d)", res.ExitCode)
		if strings.TrimSpace(res.Stderr) != "" {
			msg += "\n" + res.Stderr
		}
		return CaseResult{
			Verdict:      VerdictRuntimeError,
			Output:       res.Stdout,
			RuntimeMs:    res.ExecutionTimeMs,
			ErrorMessage: msg,
		}
	}

	verdict := CompareOutputs(res.Stdout, ex.Output, prob.IgnoreOutputLineOrder)
	result := CaseResult{
		Verdict:   verdict,
		Output:    res.Stdout,
		RuntimeMs: res.ExecutionTimeMs,
	}
	switch verdict {
	case VerdictPresentationError:
		result.ErrorMessage = "Output is correct but formatting differs"
	case VerdictWrongAnswer:
		result.ErrorMessage = "Output does not match expected"
	}
	return result
}

func interpreterArgv(lang Language) []string {
	argv := []string{lang.InterpreterBinary}
	argv = append(argv, strings.Fields(lang.InterpreterFlags)...)
	return argv
}

func infraError(err error) CaseResult {
	return CaseResult{
		Verdict:      VerdictError,
		ErrorMessage: err.Error(),
	}
}
