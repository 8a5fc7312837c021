// Package gitexec runs git subprocesses with output capture, deadlines,
// and two-stage termination (SIGTERM, then SIGKILL after a grace window).
package gitexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// DefaultGrace is how long a timed-out process gets between the graceful
// termination signal and the forced kill.
const DefaultGrace = 1 * time.Second

// Result holds the captured outcome of a subprocess. A non-zero ExitCode
// is not an error at this layer; callers inspect it explicitly.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Signaled bool
}

// Ok reports whether the process exited cleanly.
func (r *Result) Ok() bool {
	return r.ExitCode == 0 && !r.TimedOut && !r.Signaled
}

// Combined returns stdout and stderr joined, trimmed.
func (r *Result) Combined() string {
	return strings.TrimSpace(r.Stdout + r.Stderr)
}

// Runner executes commands in a working directory. It can be swapped for a
// fake in tests.
type Runner interface {
	// Run executes git with the given arguments and returns a Result even
	// when the process exits non-zero. The returned error is reserved for
	// spawn failures (binary missing, bad directory).
	Run(ctx context.Context, cwd string, args ...string) (*Result, error)

	// Output runs git synchronously and returns trimmed stdout, converting
	// a non-zero exit into an error carrying stderr. Used for destructive
	// operations where failure must surface immediately.
	Output(cwd string, args ...string) (string, error)
}

// GitRunner is the real Runner backed by the git binary.
type GitRunner struct {
	// Grace is the window between SIGTERM and SIGKILL on cancellation.
	Grace time.Duration
}

// NewRunner returns a GitRunner with the default grace window.
func NewRunner() *GitRunner {
	return &GitRunner{Grace: DefaultGrace}
}

func (g *GitRunner) grace() time.Duration {
	if g.Grace > 0 {
		return g.Grace
	}
	return DefaultGrace
}

// Run executes git under ctx. On ctx expiry the process receives SIGTERM
// and, after the grace window, SIGKILL. Non-zero exits and terminations
// are reported through the Result, never as an error.
func (g *GitRunner) Run(ctx context.Context, cwd string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = g.grace()

	err := cmd.Run()

	res := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		return res, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			res.Signaled = true
		}
		return res, nil
	}

	// Spawn failure: git missing, cwd gone, etc.
	return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
}

// Output runs git synchronously with no deadline and returns trimmed
// stdout. Any failure, including non-zero exit, is an error carrying the
// command and stderr.
func (g *GitRunner) Output(cwd string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = cwd

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}
