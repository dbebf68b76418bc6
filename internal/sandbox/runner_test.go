package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ChrootPath = t.TempDir()
	return cfg
}

func TestBuildArgs_CompiledBinary(t *testing.T) {
	cfg := testConfig(t)
	r := NewNsjailRunner(cfg, nil)

	args := r.buildArgs(RunSpec{
		ProgramFile:   "/tmp/scratch/program",
		TimeoutSec:    2,
		MemoryLimitMB: 256,
	})

	assert.Equal(t, "--quiet", args[0])
	assert.Contains(t, args, "--chroot")
	assert.Contains(t, args, cfg.ChrootPath)
	assert.Contains(t, args, "--disable_proc")
	assert.Contains(t, args, "--iface_no_lo")

	// Limits are numeric argv values, never shell text.
	assertFlagValue(t, args, "--time_limit", "2")
	assertFlagValue(t, args, "--rlimit_as", "268435456")
	assertFlagValue(t, args, "--rlimit_core", "0")
	assertFlagValue(t, args, "--user", "65534")
	assertFlagValue(t, args, "--group", "65534")
	assertFlagValue(t, args, "--bindmount_ro", "/tmp/scratch/program:/workspace/program")

	// The binary is the only in-jail argv element.
	sep := indexOf(t, args, "--")
	assert.Equal(t, []string{"/workspace/program"}, args[sep+1:])
}

func TestBuildArgs_Interpreted(t *testing.T) {
	r := NewNsjailRunner(testConfig(t), nil)

	args := r.buildArgs(RunSpec{
		Interpreter:   []string{"/usr/bin/ruby", "--disable-gems"},
		ProgramFile:   "/tmp/scratch/source.rb",
		TimeoutSec:    1,
		MemoryLimitMB: 128,
	})

	assertFlagValue(t, args, "--bindmount_ro", "/tmp/scratch/source.rb:/workspace/source")

	sep := indexOf(t, args, "--")
	assert.Equal(t, []string{"/usr/bin/ruby", "--disable-gems", "/workspace/source"}, args[sep+1:])
}

func TestBuildArgs_CgroupPlacement(t *testing.T) {
	cfg := testConfig(t)
	cfg.CgroupPath = t.TempDir()
	r := NewNsjailRunner(cfg, nil)

	args := r.buildArgs(RunSpec{
		ProgramFile:   "/tmp/scratch/program",
		TimeoutSec:    1,
		MemoryLimitMB: 64,
	})

	assert.Contains(t, args, "--use_cgroupv2")
	assertFlagValue(t, args, "--cgroup_mem_max", "67108864")

	// Without a cgroup configured the flags are absent.
	plain := NewNsjailRunner(testConfig(t), nil)
	args = plain.buildArgs(RunSpec{ProgramFile: "/p", TimeoutSec: 1, MemoryLimitMB: 64})
	assert.NotContains(t, args, "--use_cgroupv2")
}

func TestBuildArgs_NoShellMetacharacters(t *testing.T) {
	r := NewNsjailRunner(testConfig(t), nil)

	args := r.buildArgs(RunSpec{
		ProgramFile:   "/tmp/scratch/program",
		TimeoutSec:    1,
		MemoryLimitMB: 64,
	})

	for _, arg := range args {
		assert.NotContains(t, arg, "<")
		assert.NotContains(t, arg, ">")
		assert.NotContains(t, arg, "sh -c")
	}
}

func TestPreflight_MissingNsjailBinary(t *testing.T) {
	cfg := testConfig(t)
	cfg.NsjailBinary = filepath.Join(t.TempDir(), "nope")
	r := NewNsjailRunner(cfg, nil)

	res, broken := r.preflight(RunSpec{ProgramFile: "/tmp/whatever"})
	require.True(t, broken)
	assert.Equal(t, ExitCodeNotFound, res.ExitCode)
	assert.Contains(t, res.Stderr, "nsjail binary")
}

func TestPreflight_MissingChroot(t *testing.T) {
	cfg := testConfig(t)
	cfg.NsjailBinary = writeExecutable(t, "nsjail")
	cfg.ChrootPath = filepath.Join(t.TempDir(), "missing")
	r := NewNsjailRunner(cfg, nil)

	res, broken := r.preflight(RunSpec{ProgramFile: "/tmp/whatever"})
	require.True(t, broken)
	assert.Equal(t, ExitCodeNotFound, res.ExitCode)
	assert.Contains(t, res.Stderr, "chroot directory")
}

func TestPreflight_InterpreterMustExistInChroot(t *testing.T) {
	cfg := testConfig(t)
	cfg.NsjailBinary = writeExecutable(t, "nsjail")
	r := NewNsjailRunner(cfg, nil)

	res, broken := r.preflight(RunSpec{
		Interpreter: []string{"/usr/bin/ruby"},
		ProgramFile: "/tmp/whatever",
	})
	require.True(t, broken)
	assert.Equal(t, ExitCodeNotFound, res.ExitCode)
	assert.Contains(t, res.Stderr, "interpreter not found in chroot")

	// Placing the interpreter inside the chroot satisfies the check.
	inChroot := filepath.Join(cfg.ChrootPath, "usr", "bin")
	require.NoError(t, os.MkdirAll(inChroot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(inChroot, "ruby"), []byte("#!"), 0o755))

	program := filepath.Join(t.TempDir(), "source.rb")
	require.NoError(t, os.WriteFile(program, []byte("puts 3"), 0o644))

	_, broken = r.preflight(RunSpec{
		Interpreter: []string{"/usr/bin/ruby"},
		ProgramFile: program,
	})
	assert.False(t, broken)
}

func TestMapKillStatus(t *testing.T) {
	killed := ExecutionResult{ExitCode: ExitCodeKilled}
	mapKillStatus(&killed)
	assert.True(t, killed.TimedOut)
	assert.True(t, killed.OomKilled)

	timeout := ExecutionResult{ExitCode: ExitCodeTimeout}
	mapKillStatus(&timeout)
	assert.True(t, timeout.TimedOut)
	assert.False(t, timeout.OomKilled)

	clean := ExecutionResult{ExitCode: 0}
	mapKillStatus(&clean)
	assert.False(t, clean.TimedOut)
	assert.False(t, clean.OomKilled)
}

func TestReadOomKills(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "memory.events")

	require.NoError(t, os.WriteFile(events,
		[]byte("low 0\nhigh 0\nmax 4\noom 3\noom_kill 2\n"), 0o644))
	assert.Equal(t, int64(2), readOomKills(dir))

	require.NoError(t, os.WriteFile(events,
		[]byte("low 0\nhigh 0\nmax 0\noom 0\noom_kill 0\n"), 0o644))
	assert.Zero(t, readOomKills(dir))

	assert.Zero(t, readOomKills(filepath.Join(dir, "missing")))
}

// jailFixture stands up a runnable fake sandbox: a shell script in place of
// nsjail, an existing chroot, and a cgroup directory with a seeded
// memory.events counter.
type jailFixture struct {
	cfg    Config
	events string
	spec   RunSpec
}

func newJailFixture(t *testing.T, script string, oomKills int) *jailFixture {
	t.Helper()
	dir := t.TempDir()

	nsjail := filepath.Join(dir, "nsjail")
	require.NoError(t, os.WriteFile(nsjail, []byte(script), 0o755))

	cgroup := filepath.Join(dir, "cgroup")
	require.NoError(t, os.MkdirAll(cgroup, 0o755))
	events := filepath.Join(cgroup, "memory.events")
	require.NoError(t, os.WriteFile(events,
		[]byte(fmt.Sprintf("low 0\nhigh 0\nmax 0\noom %d\noom_kill %d\n", oomKills, oomKills)), 0o644))

	program := filepath.Join(dir, "program")
	require.NoError(t, os.WriteFile(program, []byte("binary"), 0o755))
	input := filepath.Join(dir, "input.in")
	require.NoError(t, os.WriteFile(input, []byte("1 2\n"), 0o644))

	cfg := DefaultConfig()
	cfg.NsjailBinary = nsjail
	cfg.ChrootPath = t.TempDir()
	cfg.CgroupPath = cgroup

	return &jailFixture{
		cfg:    cfg,
		events: events,
		spec: RunSpec{
			ProgramFile:   program,
			InputFile:     input,
			OutputFile:    filepath.Join(dir, "output.out"),
			TimeoutSec:    2,
			MemoryLimitMB: 64,
		},
	}
}

func TestRun_StaleOomCounterDoesNotFlagCleanRun(t *testing.T) {
	// An oom_kill left behind by an earlier submission must not taint a
	// run that exits cleanly with correct output.
	f := newJailFixture(t, "#!/bin/sh\necho 3\nexit 0\n", 1)
	r := NewNsjailRunner(f.cfg, nil)

	res, err := r.Run(context.Background(), f.spec)
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.OomKilled)
	assert.False(t, res.TimedOut)
	assert.Equal(t, "3\n", res.Stdout)
}

func TestRun_OomDeltaUpgradesSharedKillSignal(t *testing.T) {
	// The jailed process is OOM-killed: the counter advances during the
	// run and exit 137 resolves to a memory kill, not a timeout.
	f := newJailFixture(t, "#!/bin/sh\nexit 137\n", 1)
	script := fmt.Sprintf(
		"#!/bin/sh\nprintf 'low 0\\nhigh 0\\nmax 1\\noom 2\\noom_kill 2\\n' > '%s'\nexit 137\n",
		f.events)
	require.NoError(t, os.WriteFile(f.cfg.NsjailBinary, []byte(script), 0o755))

	r := NewNsjailRunner(f.cfg, nil)
	res, err := r.Run(context.Background(), f.spec)
	require.NoError(t, err)

	assert.Equal(t, ExitCodeKilled, res.ExitCode)
	assert.True(t, res.OomKilled)
	assert.False(t, res.TimedOut, "an attributed memory kill is not a timeout")
}

func TestRun_KillWithoutOomDeltaStaysTimeout(t *testing.T) {
	f := newJailFixture(t, "#!/bin/sh\nexit 137\n", 1)
	r := NewNsjailRunner(f.cfg, nil)

	res, err := r.Run(context.Background(), f.spec)
	require.NoError(t, err)

	assert.Equal(t, ExitCodeKilled, res.ExitCode)
	assert.True(t, res.TimedOut)
	assert.False(t, res.OomKilled, "no oom_kill recorded during the run")
}

func TestExecutionResultSuccess(t *testing.T) {
	assert.True(t, ExecutionResult{ExitCode: 0}.Success())
	assert.False(t, ExecutionResult{ExitCode: 1}.Success())
	assert.False(t, ExecutionResult{ExitCode: ExitCodeKilled}.Success())
}

func assertFlagValue(t *testing.T, args []string, flag, want string) {
	t.Helper()
	i := indexOf(t, args, flag)
	require.Less(t, i+1, len(args), "flag %s has no value", flag)
	assert.Equal(t, want, args[i+1], "value of %s", flag)
}

func indexOf(t *testing.T, args []string, want string) int {
	t.Helper()
	for i, arg := range args {
		if arg == want {
			return i
		}
	}
	t.Fatalf("%q not found in %v", want, args)
	return -1
}

func writeExecutable(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}
