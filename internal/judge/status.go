package judge

import (
	"fmt"
	"strings"
)

// Status is the persisted submission-level state. Transitions are monotonic
// along queued/enqueued -> compiling -> running -> terminal; terminal
// states are final and never retried automatically.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusEnqueued  Status = "enqueued"
	StatusCompiling Status = "compiling"
	StatusRunning   Status = "running"

	StatusAccepted            Status = "accepted"
	StatusWrongAnswer         Status = "wrong answer"
	StatusPresentationError   Status = "presentation error"
	StatusTimeLimitExceeded   Status = "time limit exceeded"
	StatusMemoryLimitExceeded Status = "memory limit exceeded"
	StatusRuntimeError        Status = "runtime error"
	StatusCompilationError    Status = "compilation error"
	StatusError               Status = "error"
)

// WrongAnswerAt annotates a wrong answer with the 1-based index of the
// failing example, e.g. "wrong answer (example 3)".
func WrongAnswerAt(example int) Status {
	return Status(fmt.Sprintf("%s (example %d)", StatusWrongAnswer, example))
}

// Pending reports whether a submission in this status may be claimed for
// judging.
func (s Status) Pending() bool {
	return s == StatusQueued || s == StatusEnqueued
}

func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusPresentationError, StatusTimeLimitExceeded,
		StatusMemoryLimitExceeded, StatusRuntimeError,
		StatusCompilationError, StatusError:
		return true
	}
	return strings.HasPrefix(string(s), string(StatusWrongAnswer))
}

// Icon returns the single-character marker shown next to a status.
func (s Status) Icon() string {
	switch {
	case s == StatusAccepted:
		return "✓"
	case strings.HasPrefix(string(s), string(StatusWrongAnswer)):
		return "✗"
	case s == StatusQueued, s == StatusEnqueued, s == StatusCompiling,
		s == StatusRunning, s == StatusTimeLimitExceeded:
		return "⏱"
	case s == StatusMemoryLimitExceeded:
		return "💾"
	case s == StatusCompilationError:
		return "🔧"
	case s == StatusRuntimeError:
		return "⚠"
	case s == StatusPresentationError:
		return "~"
	default:
		return "•"
	}
}
