package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Runner executes one program against one input under isolation.
type Runner interface {
	Run(ctx context.Context, spec RunSpec) (ExecutionResult, error)
}

// RunSpec describes a single jailed execution.
type RunSpec struct {
	// Interpreter is the in-jail argument vector prefix, e.g.
	// ["/usr/bin/python3"]. Empty means ProgramFile is a compiled binary
	// executed directly.
	Interpreter []string

	// ProgramFile is the host path of the source file or compiled binary.
	// It is bind-mounted read-only into the workspace.
	ProgramFile string

	// InputFile is redirected to the program's stdin.
	InputFile string

	// OutputFile receives the program's stdout and stderr.
	OutputFile string

	TimeoutSec    int
	MemoryLimitMB int
}

// Config holds the sandbox deployment layout and the fixed security limits.
type Config struct {
	NsjailBinary  string
	ChrootPath    string
	WorkspacePath string

	// CgroupPath, when set, points at the cgroup v2 directory the jailed
	// process runs in. Its memory.events oom_kill counter is sampled
	// before and after each run; a positive delta attributes the kill to
	// memory rather than wall time. Empty disables the probe.
	CgroupPath string

	MaxFileSizeMB      int
	MaxProcesses       int
	MaxFileDescriptors int

	// ExtraTimeoutSec is added on top of the per-run wall limit before the
	// runner itself gives up on nsjail.
	ExtraTimeoutSec int
}

func DefaultConfig() Config {
	return Config{
		NsjailBinary:       "/usr/local/bin/nsjail",
		ChrootPath:         "/chroot",
		WorkspacePath:      "/workspace",
		MaxFileSizeMB:      10,
		MaxProcesses:       50,
		MaxFileDescriptors: 100,
		ExtraTimeoutSec:    5,
	}
}

// NsjailRunner runs untrusted programs through the nsjail binary: chroot,
// unprivileged uid/gid, no /proc, no network, rlimits on address space,
// file size, descriptors and process count.
type NsjailRunner struct {
	cfg Config
	log *slog.Logger
}

func NewNsjailRunner(cfg Config, log *slog.Logger) *NsjailRunner {
	if log == nil {
		log = slog.Default()
	}
	return &NsjailRunner{cfg: cfg, log: log}
}

func (r *NsjailRunner) Run(ctx context.Context, spec RunSpec) (ExecutionResult, error) {
	var result ExecutionResult

	if res, broken := r.preflight(spec); broken {
		return res, nil
	}

	args := r.buildArgs(spec)

	input, err := os.Open(spec.InputFile)
	if err != nil {
		return result, fmt.Errorf("open input file: %w", err)
	}
	defer input.Close()

	output, err := os.Create(spec.OutputFile)
	if err != nil {
		return result, fmt.Errorf("create output file: %w", err)
	}
	defer output.Close()

	runCtx := ctx
	if spec.TimeoutSec > 0 {
		var cancel context.CancelFunc
		wall := time.Duration(spec.TimeoutSec+r.cfg.ExtraTimeoutSec) * time.Second
		runCtx, cancel = context.WithTimeout(ctx, wall)
		defer cancel()
	}

	var stderrBuf bytes.Buffer
	cmd := exec.CommandContext(runCtx, r.cfg.NsjailBinary, args...)
	cmd.Stdin = input
	cmd.Stdout = output
	cmd.Stderr = io.MultiWriter(output, &stderrBuf)

	r.log.Debug("running nsjail", "program", spec.ProgramFile,
		"timeout_sec", spec.TimeoutSec, "memory_mb", spec.MemoryLimitMB)

	// The counter is cumulative across runs; only the delta over this run
	// belongs to this submission.
	var oomBefore int64
	if r.cfg.CgroupPath != "" {
		oomBefore = readOomKills(r.cfg.CgroupPath)
	}

	start := time.Now()
	runErr := cmd.Run()
	wallMs := time.Since(start).Milliseconds()

	result.ExitCode = exitCode(runErr, cmd)
	if runErr != nil && result.ExitCode == 0 {
		// Run failed before the process produced an exit status.
		return result, fmt.Errorf("run nsjail: %w", runErr)
	}

	result.ExecutionTimeMs = cpuTimeMs(cmd, wallMs)
	result.Stderr = stderrBuf.String()

	mapKillStatus(&result)
	deadlineHit := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	if deadlineHit {
		result.TimedOut = true
		if result.ExitCode == 0 || result.ExitCode == -1 {
			result.ExitCode = ExitCodeKilled
		}
	}
	if r.cfg.CgroupPath != "" {
		// The probe settles the exit-137 ambiguity: an oom_kill recorded
		// during this run means the kill was for memory, so the timeout
		// reading from the shared signal is dropped; no delta clears the
		// heuristic OomKilled flag instead.
		if readOomKills(r.cfg.CgroupPath)-oomBefore > 0 {
			result.OomKilled = true
			if !deadlineHit {
				result.TimedOut = false
			}
		} else {
			result.OomKilled = false
		}
	}

	if out, err := os.ReadFile(spec.OutputFile); err == nil {
		result.Stdout = string(out)
	}

	return result, nil
}

// preflight verifies the sandbox infrastructure before attempting a run.
// A broken deployment is reported through the result (exit code 127 and a
// descriptive stderr), never as an error.
func (r *NsjailRunner) preflight(spec RunSpec) (ExecutionResult, bool) {
	var res ExecutionResult
	res.ExitCode = ExitCodeNotFound

	if _, err := os.Stat(r.cfg.NsjailBinary); err != nil {
		res.Stderr = fmt.Sprintf("ERROR: nsjail binary %s not found", r.cfg.NsjailBinary)
		return res, true
	}
	if _, err := os.Stat(r.cfg.ChrootPath); err != nil {
		res.Stderr = fmt.Sprintf("ERROR: chroot directory %s does not exist", r.cfg.ChrootPath)
		return res, true
	}
	if len(spec.Interpreter) > 0 {
		inJail := spec.Interpreter[0]
		hostPath := filepath.Join(r.cfg.ChrootPath, strings.TrimPrefix(inJail, "/"))
		if _, err := os.Stat(hostPath); err != nil {
			res.Stderr = fmt.Sprintf("ERROR: interpreter not found in chroot, expected %s", hostPath)
			return res, true
		}
	}
	if _, err := os.Stat(spec.ProgramFile); err != nil {
		res.Stderr = fmt.Sprintf("ERROR: program file %s not found", spec.ProgramFile)
		return res, true
	}
	return ExecutionResult{}, false
}

// buildArgs assembles the nsjail argument vector. The jailed command is
// always a discrete argv; nothing is ever routed through a shell.
func (r *NsjailRunner) buildArgs(spec RunSpec) []string {
	programName := "program"
	if len(spec.Interpreter) > 0 {
		programName = "source"
	}
	programMount := path.Join(r.cfg.WorkspacePath, programName)

	args := []string{
		"--quiet",
		"--chroot", r.cfg.ChrootPath,
		"--user", "65534",
		"--group", "65534",
		"--hostname", "NSJAIL",
		"--cwd", r.cfg.WorkspacePath,
		"--time_limit", strconv.Itoa(spec.TimeoutSec),
		"--max_cpus", "1",
		"--rlimit_as", strconv.Itoa(spec.MemoryLimitMB * 1024 * 1024),
		"--rlimit_core", "0",
		"--rlimit_fsize", strconv.Itoa(r.cfg.MaxFileSizeMB * 1024 * 1024),
		"--rlimit_nofile", strconv.Itoa(r.cfg.MaxFileDescriptors),
		"--rlimit_nproc", strconv.Itoa(r.cfg.MaxProcesses),
		"--disable_proc",
		"--iface_no_lo",
		"--bindmount_ro", spec.ProgramFile + ":" + programMount,
	}

	// With a cgroup configured the jail is placed in it so the oom_kill
	// counter sampled around the run is attributable to this process.
	if r.cfg.CgroupPath != "" {
		args = append(args,
			"--use_cgroupv2",
			"--cgroup_mem_max", strconv.Itoa(spec.MemoryLimitMB*1024*1024),
		)
	}

	args = append(args, "--")

	if len(spec.Interpreter) > 0 {
		args = append(args, spec.Interpreter...)
	}
	args = append(args, programMount)
	return args
}

func exitCode(err error, cmd *exec.Cmd) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 0
}

// cpuTimeMs prefers actual CPU time consumed (user+system) from the reaped
// process, falling back to the wall clock measured around the call. A
// program blocked on I/O is not charged the same as one spinning the CPU.
func cpuTimeMs(cmd *exec.Cmd, wallMs int64) int64 {
	state := cmd.ProcessState
	if state == nil {
		return wallMs
	}
	cpu := (state.UserTime() + state.SystemTime()).Milliseconds()
	if cpu > 0 {
		return cpu
	}
	return wallMs
}

// mapKillStatus applies the shared-signal heuristic: exit 137 means the
// process was killed for breaching a limit, but the code alone cannot tell
// wall time from memory, so both flags are raised.
func mapKillStatus(res *ExecutionResult) {
	switch res.ExitCode {
	case ExitCodeKilled:
		res.TimedOut = true
		res.OomKilled = true
	case ExitCodeTimeout:
		res.TimedOut = true
	}
}

// readOomKills reads the cumulative cgroup v2 memory.events oom_kill
// counter. 0 on any read or parse failure.
func readOomKills(cgroupPath string) int64 {
	data, err := os.ReadFile(filepath.Join(cgroupPath, "memory.events"))
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[0] != "oom_kill" {
			continue
		}
		n, _ := strconv.ParseInt(fields[1], 10, 64)
		return n
	}
	return 0
}
