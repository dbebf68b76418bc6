// Package compiler invokes a language's compiler to turn submitted source
// into a runnable artifact. Compiler flags come from configuration as a
// single template string with {source_file} and {compiled_file}
// placeholders; substitution happens on individual arguments and the
// compiler is always invoked with a discrete argument vector, never through
// a shell.
package compiler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

const (
	sourcePlaceholder   = "{source_file}"
	artifactPlaceholder = "{compiled_file}"
)

// Error is a user-caused compilation failure carrying the compiler's
// diagnostics for display.
type Error struct {
	Stderr string
}

func (e *Error) Error() string {
	return e.Stderr
}

// Stage compiles source files on the host. One Stage is shared by all
// judgments; it holds no per-submission state.
type Stage struct {
	log *slog.Logger
}

func NewStage(log *slog.Logger) *Stage {
	if log == nil {
		log = slog.Default()
	}
	return &Stage{log: log}
}

// Compile runs binary with the flag template expanded against sourcePath
// and artifactPath. A non-zero compiler exit yields a *Error with the
// compiler's stderr; the artifact is removed so a failed compilation never
// leaves a runnable file behind.
func (s *Stage) Compile(ctx context.Context, binary, flagTemplate, sourcePath, artifactPath string) error {
	args := SplitFlags(flagTemplate, sourcePath, artifactPath)

	s.log.Info("compiling", "binary", binary, "args", strings.Join(args, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if _, ok := err.(*exec.ExitError); !ok {
		// The compiler itself could not be invoked: deployment problem,
		// not a user error.
		return fmt.Errorf("invoke compiler %s: %w", binary, err)
	}

	_ = os.Remove(artifactPath)

	diagnostics := stderr.String()
	if strings.TrimSpace(diagnostics) == "" {
		diagnostics = "Compilation failed (no error details)"
	}
	s.log.Warn("compilation failed", "binary", binary, "stderr", diagnostics)
	return &Error{Stderr: diagnostics}
}

// SplitFlags splits a flag template on whitespace and substitutes the path
// placeholders into each argument separately. Quoted arguments are not
// supported; configured flags never need them.
func SplitFlags(flagTemplate, sourcePath, artifactPath string) []string {
	fields := strings.Fields(flagTemplate)
	args := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, sourcePlaceholder, sourcePath)
		f = strings.ReplaceAll(f, artifactPlaceholder, artifactPath)
		args = append(args, f)
	}
	return args
}
