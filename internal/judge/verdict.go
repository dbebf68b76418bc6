package judge

// Verdict is the outcome of evaluating one submission against one example.
type Verdict string

const (
	VerdictPassed              Verdict = "passed"
	VerdictWrongAnswer         Verdict = "wrong_answer"
	VerdictPresentationError   Verdict = "presentation_error"
	VerdictTimeLimitExceeded   Verdict = "time_limit_exceeded"
	VerdictMemoryLimitExceeded Verdict = "memory_limit_exceeded"
	VerdictRuntimeError        Verdict = "runtime_error"
	VerdictCompilationError    Verdict = "compilation_error"
	VerdictError               Verdict = "error"
)

// CaseResult is the per-example verdict produced by the evaluator. Only the
// aggregated submission status is persisted; individual case results are
// consumed by the orchestrator and dropped.
type CaseResult struct {
	Verdict      Verdict
	Output       string
	RuntimeMs    int64
	ErrorMessage string
}

// StatusForVerdict maps a failing case's verdict to the submission's
// terminal status. exampleIndex is the 1-based position of the case; it is
// embedded for wrong answers so the failing case can be identified later.
func StatusForVerdict(v Verdict, exampleIndex int) Status {
	switch v {
	case VerdictPassed:
		return StatusAccepted
	case VerdictWrongAnswer:
		return WrongAnswerAt(exampleIndex)
	case VerdictPresentationError:
		return StatusPresentationError
	case VerdictTimeLimitExceeded:
		return StatusTimeLimitExceeded
	case VerdictMemoryLimitExceeded:
		return StatusMemoryLimitExceeded
	case VerdictRuntimeError:
		return StatusRuntimeError
	case VerdictCompilationError:
		return StatusCompilationError
	default:
		return StatusError
	}
}
