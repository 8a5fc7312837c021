package gitexec

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestRepo(t *testing.T, dir string) {
	t.Helper()
	cmds := [][]string{
		{"git", "-C", dir, "init", "-b", "main"},
		{"git", "-C", dir, "config", "user.email", "test@test.com"},
		{"git", "-C", dir, "config", "user.name", "Test"},
	}
	for _, args := range cmds {
		require.NoError(t, exec.Command(args[0], args[1:]...).Run())
	}
}

func TestRun_CleanExit(t *testing.T) {
	dir := t.TempDir()
	initTestRepo(t, dir)

	r := NewRunner()
	res, err := r.Run(context.Background(), dir, "rev-parse", "--show-toplevel")
	require.NoError(t, err)
	assert.True(t, res.Ok())
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, dir)
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	initTestRepo(t, dir)

	r := NewRunner()
	res, err := r.Run(context.Background(), dir, "rev-parse", "--verify", "no-such-ref")
	require.NoError(t, err)
	assert.False(t, res.Ok())
	assert.NotZero(t, res.ExitCode)
	assert.NotEmpty(t, res.Stderr)
}

func TestRun_Timeout(t *testing.T) {
	dir := t.TempDir()
	initTestRepo(t, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := NewRunner()
	start := time.Now()
	// --paginate forces git to wait on a pager reading from a pipe, which
	// blocks until the deadline fires.
	res, err := r.Run(ctx, dir, "-c", "core.pager=sleep 30", "--paginate", "log", "--all")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Ok())
	assert.Less(t, elapsed, 5*time.Second, "should not wait for the full sleep")
}

func TestRun_SpawnFailure(t *testing.T) {
	r := NewRunner()
	_, err := r.Run(context.Background(), "/no/such/directory", "status")
	assert.Error(t, err)
}

func TestOutput_Success(t *testing.T) {
	dir := t.TempDir()
	initTestRepo(t, dir)

	r := NewRunner()
	out, err := r.Output(dir, "rev-parse", "--abbrev-ref", "HEAD")
	require.NoError(t, err)
	assert.Equal(t, "main", out)
}

func TestOutput_FailureCarriesStderr(t *testing.T) {
	dir := t.TempDir()
	initTestRepo(t, dir)

	r := NewRunner()
	_, err := r.Output(dir, "branch", "-d", "no-such-branch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-branch")
}
