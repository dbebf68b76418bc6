package sandbox

// ExecutionResult describes one sandboxed program run. It is ephemeral:
// the evaluator consumes it immediately and nothing of it is persisted.
type ExecutionResult struct {
	ExitCode        int
	Stdout          string
	Stderr          string
	TimedOut        bool
	OomKilled       bool
	ExecutionTimeMs int64
}

func (r ExecutionResult) Success() bool {
	return r.ExitCode == 0
}

// Exit code conventions consumed by the evaluator.
const (
	// ExitCodeKilled is 128+SIGKILL: the jailed process was killed for
	// exceeding a resource limit. nsjail reports the same code whether the
	// limit was wall time or memory, so TimedOut and OomKilled may both be
	// set and TimedOut takes precedence in status mapping. A configured
	// cgroup probe resolves the ambiguity from the oom_kill counter delta
	// and leaves only the attributed flag set.
	ExitCodeKilled = 137

	// ExitCodeTimeout is the coreutils timeout(1) convention, also mapped
	// to a timeout.
	ExitCodeTimeout = 124

	// ExitCodeNotFound signals broken sandbox infrastructure: missing
	// chroot, interpreter, or nsjail binary. Reported in the result rather
	// than as an error so the caller surfaces it as a judging "error"
	// verdict instead of an unhandled fault.
	ExitCodeNotFound = 127
)
