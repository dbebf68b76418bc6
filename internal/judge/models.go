package judge

import (
	"fmt"
	"time"
)

// TestingMode selects how a problem's submissions are evaluated.
type TestingMode string

const (
	// TestingModeStdinStdout runs the submission as a standalone program
	// reading stdin and writing stdout.
	TestingModeStdinStdout TestingMode = "stdin_stdout"
	// TestingModeFunction splices the submission into a per-language
	// tester harness before running it.
	TestingModeFunction TestingMode = "function"
)

type Difficulty int

const (
	DifficultyEasy Difficulty = iota
	DifficultyMedium
	DifficultyHard
)

func (d Difficulty) String() string {
	switch d {
	case DifficultyEasy:
		return "easy"
	case DifficultyMedium:
		return "medium"
	case DifficultyHard:
		return "hard"
	default:
		return "unknown"
	}
}

type Problem struct {
	ID         int64
	Title      string
	Difficulty Difficulty

	// Floor limits; the enforced limit is the max of these and the
	// language's own floors.
	TimeLimitSec  int
	MemoryLimitKB int

	TestingMode           TestingMode
	IgnoreOutputLineOrder bool

	TotalSubmissions    int
	AcceptedSubmissions int
}

// AcceptanceRate returns the accepted percentage, rounded to one decimal.
func (p Problem) AcceptanceRate() float64 {
	if p.TotalSubmissions == 0 {
		return 0
	}
	rate := float64(p.AcceptedSubmissions) / float64(p.TotalSubmissions) * 100
	return float64(int(rate*10+0.5)) / 10
}

// Example is one test case. SortOrder defines execution order; the first
// failing example, in sort order, determines the submission's verdict.
type Example struct {
	ID        int64
	ProblemID int64
	Input     string
	Output    string
	SortOrder int
	IsHidden  bool
}

// VisibleExamples filters out hidden cases for the user-facing preview.
// Full judging always runs every example, hidden or not.
func VisibleExamples(examples []Example) []Example {
	visible := make([]Example, 0, len(examples))
	for _, ex := range examples {
		if !ex.IsHidden {
			visible = append(visible, ex)
		}
	}
	return visible
}

// Language describes a programming language. Exactly one of CompilerBinary
// and InterpreterBinary must be set; that choice selects the execution path
// for every submission in the language.
type Language struct {
	ID   int64
	Name string

	CompilerBinary string
	// CompilerFlags is a template containing {source_file} and
	// {compiled_file} placeholders.
	CompilerFlags string

	InterpreterBinary string
	InterpreterFlags  string

	MemoryLimitKB int
	TimeLimitSec  int
	Extension     string
}

func (l Language) Compiled() bool {
	return l.CompilerBinary != ""
}

func (l Language) Validate() error {
	if l.CompilerBinary != "" && l.InterpreterBinary != "" {
		return fmt.Errorf("language %q configures both a compiler and an interpreter", l.Name)
	}
	if l.CompilerBinary == "" && l.InterpreterBinary == "" {
		return fmt.Errorf("language %q configures neither a compiler nor an interpreter", l.Name)
	}
	return nil
}

type Submission struct {
	ID         int64  `db:"id"`
	ProblemID  int64  `db:"problem_id"`
	LanguageID int64  `db:"language_id"`
	UserID     int64  `db:"user_id"`
	ContestID  *int64 `db:"contest_id"`

	SourceCode string `db:"source_code"`
	Status     Status `db:"status"`

	// TimeUsed is the wall clock duration of the whole judging run, in
	// seconds.
	TimeUsed     float64 `db:"time_used"`
	MemoryUsedKB *int64  `db:"memory_used"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// EffectiveTimeLimitSec is the enforced wall time limit: the language's
// floor must never be tighter than what the problem author configured, so
// the larger of the two wins.
func EffectiveTimeLimitSec(lang Language, prob Problem) int {
	return max(lang.TimeLimitSec, prob.TimeLimitSec)
}

// EffectiveMemoryLimitMB applies the same max-of-floors policy to memory,
// converted from KB to MB for the sandbox.
func EffectiveMemoryLimitMB(lang Language, prob Problem) int {
	return max(lang.MemoryLimitKB, prob.MemoryLimitKB) / 1024
}
