// Package worktree creates and tears down git worktree/branch pairs with
// bounded wait time. Failed creations are cleaned up so no partial state
// is left for the user to discover.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joescharf/strand/internal/gitexec"
)

// DefaultCreateTimeout bounds how long a worktree-add may run. Large repos
// with slow checkouts are the common reason to raise it.
const DefaultCreateTimeout = 120 * time.Second

// ErrTimeout marks a creation that exceeded its deadline. Callers retry
// with a larger budget after running CleanupFailed.
var ErrTimeout = errors.New("worktree creation timed out")

// ErrSignaled marks a creation whose git process was killed by a signal.
var ErrSignaled = errors.New("worktree creation terminated by signal")

// CheckoutKind classifies what lives at a path.
type CheckoutKind int

const (
	// KindNone means the path is not a git checkout at all.
	KindNone CheckoutKind = iota
	// KindPrimary is the main repository checkout (.git is a directory).
	KindPrimary
	// KindWorktree is a linked worktree checkout (.git is a file).
	KindWorktree
)

// MaxBranchNameLength bounds user-supplied branch names.
const MaxBranchNameLength = 100

// Git branch names cannot contain space, ~, ^, :, ?, *, [, \ or control
// characters, cannot start with - and cannot end with .lock.
var validBranchName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9/_.-]*$`)

// ValidateBranchName checks a branch name against git's ref rules.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name is required")
	}
	if len(branch) > MaxBranchNameLength {
		return fmt.Errorf("branch name too long (max %d characters)", MaxBranchNameLength)
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}
	if strings.HasSuffix(branch, ".lock") {
		return fmt.Errorf("branch name cannot end with '.lock'")
	}
	if strings.Contains(branch, "..") {
		return fmt.Errorf("branch name cannot contain '..'")
	}
	if !validBranchName.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters (use letters, numbers, /, _, ., -)")
	}
	return nil
}

// Manager creates and removes worktrees for one repository.
type Manager struct {
	runner   gitexec.Runner
	repoPath string
}

// NewManager returns a Manager bound to the repository at repoPath.
func NewManager(runner gitexec.Runner, repoPath string) *Manager {
	return &Manager{runner: runner, repoPath: repoPath}
}

// BranchExists reports whether a local branch exists.
func (m *Manager) BranchExists(ctx context.Context, branch string) bool {
	res, err := m.runner.Run(ctx, m.repoPath, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil && res.Ok()
}

// CreateWithTimeout runs `git worktree add -b <branch> <path>` under a
// deadline (DefaultCreateTimeout when zero). On success it returns the
// captured output. The three failure shapes are distinguishable: ErrTimeout
// when the deadline fired, ErrSignaled when the process died to a signal,
// and a plain error carrying git's output for a non-zero exit.
func (m *Manager) CreateWithTimeout(ctx context.Context, path, branch string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultCreateTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := m.runner.Run(ctx, m.repoPath, "worktree", "add", "-b", branch, path)
	if err != nil {
		return "", err
	}

	output := res.Combined()
	switch {
	case res.TimedOut:
		return output, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, output)
	case res.Signaled:
		return output, fmt.Errorf("%w: %s", ErrSignaled, output)
	case res.ExitCode != 0:
		return output, fmt.Errorf("git worktree add exited %d: %s", res.ExitCode, output)
	}

	return output, nil
}

// CleanupFailed removes the remnants of a failed creation: the partial
// directory, stale worktree registrations, and — only when this manager
// created it — the branch, via a safe delete that leaves branches with
// commits alone. Every step is best-effort; the function never fails and
// is safe to call when nothing was actually created.
func (m *Manager) CleanupFailed(ctx context.Context, path, branch string, branchCreated bool) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			_ = os.RemoveAll(path)
		}
	}

	_, _ = m.runner.Run(ctx, m.repoPath, "worktree", "prune")

	if branchCreated && branch != "" {
		// -d, not -D: a branch that accumulated commits is kept for the
		// user to inspect.
		_, _ = m.runner.Run(ctx, m.repoPath, "branch", "-d", branch)
	}
}

// Remove deletes a worktree registration and directory, retrying with
// --force when the plain removal is refused (dirty tree).
func (m *Manager) Remove(ctx context.Context, path string) error {
	res, err := m.runner.Run(ctx, m.repoPath, "worktree", "remove", path)
	if err != nil {
		return err
	}
	if res.Ok() {
		return nil
	}

	res, err = m.runner.Run(ctx, m.repoPath, "worktree", "remove", "--force", path)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("git worktree remove: %s", res.Combined())
	}
	return nil
}

// Kind classifies the checkout at path by its .git marker: a file means a
// linked worktree, a directory means the primary checkout, anything else
// means not a repository.
func Kind(path string) CheckoutKind {
	info, err := os.Stat(filepath.Join(path, ".git"))
	if err != nil {
		return KindNone
	}
	if info.IsDir() {
		return KindPrimary
	}
	return KindWorktree
}

// IsGitWorktree reports whether path is a linked worktree checkout.
func IsGitWorktree(path string) bool {
	return Kind(path) == KindWorktree
}
