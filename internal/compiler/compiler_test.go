package compiler_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixcuello/cp-server/internal/compiler"
)

func TestSplitFlags(t *testing.T) {
	args := compiler.SplitFlags(
		"-std=c++17 -O2 -o {compiled_file} {source_file}",
		"/scratch/source.cpp", "/scratch/program")

	assert.Equal(t, []string{
		"-std=c++17", "-O2", "-o", "/scratch/program", "/scratch/source.cpp",
	}, args)
}

func TestSplitFlags_PlaceholderInsideArgument(t *testing.T) {
	args := compiler.SplitFlags(
		"-o{compiled_file} {source_file}",
		"/s/a.c", "/s/a")

	assert.Equal(t, []string{"-o/s/a", "/s/a.c"}, args)
}

func TestSplitFlags_Empty(t *testing.T) {
	assert.Empty(t, compiler.SplitFlags("", "/s/a.c", "/s/a"))
}

func TestCompile_Success(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.txt")
	artifact := filepath.Join(dir, "program")
	require.NoError(t, os.WriteFile(source, []byte("hello"), 0o644))

	stage := compiler.NewStage(nil)

	// cp stands in for a compiler: reads the source, writes the artifact.
	err := stage.Compile(context.Background(), "cp", "{source_file} {compiled_file}", source, artifact)
	require.NoError(t, err)

	out, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestCompile_FailureYieldsCompilerError(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "does-not-exist")
	artifact := filepath.Join(dir, "program")

	stage := compiler.NewStage(nil)

	err := stage.Compile(context.Background(), "cp", "{source_file} {compiled_file}", source, artifact)
	require.Error(t, err)

	var cerr *compiler.Error
	require.ErrorAs(t, err, &cerr)
	assert.NotEmpty(t, cerr.Stderr)

	_, statErr := os.Stat(artifact)
	assert.True(t, os.IsNotExist(statErr), "failed compilation must not leave an artifact")
}

func TestCompile_MissingBinaryIsInfrastructureError(t *testing.T) {
	dir := t.TempDir()

	stage := compiler.NewStage(nil)

	err := stage.Compile(context.Background(), filepath.Join(dir, "no-such-compiler"),
		"{source_file} {compiled_file}", "a", "b")
	require.Error(t, err)

	// An uninvokable compiler is a deployment problem, not a user-facing
	// compilation error.
	var cerr *compiler.Error
	assert.NotErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "invoke compiler")
}
