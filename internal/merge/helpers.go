package merge

import (
	"context"
	"fmt"
	"strings"
)

// CommitChanges stages everything in the session's worktree and commits it.
// A clean tree is success with an empty hash, not an error.
func (e *Engine) CommitChanges(ctx context.Context, path, message string) (string, error) {
	status, err := e.runner.Run(ctx, path, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(status.Stdout) == "" {
		return "", nil
	}

	res, err := e.runner.Run(ctx, path, "add", "-A")
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", fmt.Errorf("stage changes: %s", res.Combined())
	}

	res, err = e.runner.Run(ctx, path, "commit", "-m", message)
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", fmt.Errorf("commit: %s", res.Combined())
	}

	e.detector.Cache().InvalidatePath(path)

	res, err = e.runner.Run(ctx, path, "rev-parse", "HEAD")
	if err != nil || !res.Ok() {
		// The commit landed; the hash is a nicety.
		return "", nil
	}
	return strings.TrimSpace(res.Stdout), nil
}

// StashChanges stashes the worktree including untracked files. A clean
// tree is success.
func (e *Engine) StashChanges(ctx context.Context, path, label string) error {
	status, err := e.runner.Run(ctx, path, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status.Stdout) == "" {
		return nil
	}

	args := []string{"stash", "push", "--include-untracked"}
	if label != "" {
		args = append(args, "-m", label)
	}
	res, err := e.runner.Run(ctx, path, args...)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("stash: %s", res.Combined())
	}

	e.detector.Cache().InvalidatePath(path)
	return nil
}

// UnstashChanges pops the most recent stash entry. An empty stash is
// success.
func (e *Engine) UnstashChanges(ctx context.Context, path string) error {
	res, err := e.runner.Run(ctx, path, "stash", "list")
	if err != nil {
		return err
	}
	if strings.TrimSpace(res.Stdout) == "" {
		return nil
	}

	res, err = e.runner.Run(ctx, path, "stash", "pop")
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("stash pop: %s", res.Combined())
	}

	e.detector.Cache().InvalidatePath(path)
	return nil
}

// DiscardChanges throws away all uncommitted work in the worktree,
// staged and unstaged alike. Untracked files survive.
func (e *Engine) DiscardChanges(ctx context.Context, path string) error {
	res, err := e.runner.Run(ctx, path, "reset", "--mixed", "HEAD")
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("reset: %s", res.Combined())
	}

	res, err = e.runner.Run(ctx, path, "checkout", "--", ".")
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("checkout: %s", res.Combined())
	}

	e.detector.Cache().InvalidatePath(path)
	return nil
}
