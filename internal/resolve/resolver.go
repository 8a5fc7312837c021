package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joescharf/strand/internal/gitexec"
)

// Assist reconciles a source-category conflict that the mechanical
// strategies cannot. Implementations return the merged content and true,
// or false to fall through to the theirs fallback.
type Assist interface {
	Reconcile(ctx context.Context, file, base, ours, theirs string) (string, bool)
}

// Resolver applies planned resolutions inside a repository that is mid
// conflicted merge. Every successful resolution stages the file.
type Resolver struct {
	runner gitexec.Runner
	assist Assist
}

// NewResolver creates a Resolver. assist may be nil.
func NewResolver(r gitexec.Runner, assist Assist) *Resolver {
	return &Resolver{runner: r, assist: assist}
}

// Resolve applies one plan entry in repoPath. It returns nil only when the
// file ended up resolved and staged; a failure is never partial or silent.
func (r *Resolver) Resolve(ctx context.Context, repoPath string, entry PlanEntry) error {
	switch entry.Strategy {
	case StrategyUnion:
		if err := r.unionMerge(ctx, repoPath, entry.File); err != nil {
			// Any missing blob (added on one side only) falls back to the
			// incoming version.
			if err := r.checkoutSide(ctx, repoPath, entry.File, "--theirs"); err != nil {
				return err
			}
		}
	case StrategyTheirs:
		if err := r.checkoutSide(ctx, repoPath, entry.File, "--theirs"); err != nil {
			return err
		}
	case StrategyOurs:
		if err := r.checkoutSide(ctx, repoPath, entry.File, "--ours"); err != nil {
			return err
		}
	case StrategyRecursive:
		if err := r.reconcileSource(ctx, repoPath, entry.File); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s: unknown strategy %q", entry.File, entry.Strategy)
	}

	return r.stage(ctx, repoPath, entry.File)
}

// unionMerge performs a true three-way union merge from the base, ours,
// and theirs blobs using git's union merge driver.
func (r *Resolver) unionMerge(ctx context.Context, repoPath, file string) error {
	base, err := r.blob(ctx, repoPath, 1, file)
	if err != nil {
		return err
	}
	ours, err := r.blob(ctx, repoPath, 2, file)
	if err != nil {
		return err
	}
	theirs, err := r.blob(ctx, repoPath, 3, file)
	if err != nil {
		return err
	}

	tmp, err := os.MkdirTemp("", "strand-union-")
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	defer os.RemoveAll(tmp)

	oursPath := filepath.Join(tmp, "ours")
	basePath := filepath.Join(tmp, "base")
	theirsPath := filepath.Join(tmp, "theirs")
	for p, content := range map[string]string{oursPath: ours, basePath: base, theirsPath: theirs} {
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	}

	// merge-file rewrites the ours file in place and exits with the number
	// of conflicting hunks, which --union has already resolved; only a
	// hard failure counts as an error.
	res, err := r.runner.Run(ctx, repoPath, "merge-file", "--union", oursPath, basePath, theirsPath)
	if err != nil {
		return err
	}
	if res.TimedOut || res.Signaled || res.ExitCode >= 127 {
		return fmt.Errorf("%s: merge-file failed: %s", file, res.Combined())
	}

	merged, err := os.ReadFile(oursPath)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	if err := os.WriteFile(filepath.Join(repoPath, file), merged, 0644); err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	return nil
}

// reconcileSource handles source-category files: the assist gets the first
// attempt when configured; otherwise, and on assist failure, the incoming
// version is taken so no source file is ever left unresolved.
func (r *Resolver) reconcileSource(ctx context.Context, repoPath, file string) error {
	if r.assist != nil {
		base, errB := r.blob(ctx, repoPath, 1, file)
		ours, errO := r.blob(ctx, repoPath, 2, file)
		theirs, errT := r.blob(ctx, repoPath, 3, file)
		if errB == nil && errO == nil && errT == nil {
			if merged, ok := r.assist.Reconcile(ctx, file, base, ours, theirs); ok {
				if err := os.WriteFile(filepath.Join(repoPath, file), []byte(merged), 0644); err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				return nil
			}
		}
	}
	return r.checkoutSide(ctx, repoPath, file, "--theirs")
}

func (r *Resolver) checkoutSide(ctx context.Context, repoPath, file, side string) error {
	res, err := r.runner.Run(ctx, repoPath, "checkout", side, "--", file)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("%s: checkout %s: %s", file, side, res.Combined())
	}
	return nil
}

func (r *Resolver) stage(ctx context.Context, repoPath, file string) error {
	res, err := r.runner.Run(ctx, repoPath, "add", "--", file)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("%s: stage: %s", file, res.Combined())
	}
	return nil
}

// blob reads the index-stage content of a conflicted file.
func (r *Resolver) blob(ctx context.Context, repoPath string, stage int, file string) (string, error) {
	res, err := r.runner.Run(ctx, repoPath, "show", fmt.Sprintf(":%d:%s", stage, file))
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", fmt.Errorf("%s: no stage-%d blob: %s", file, stage, res.Combined())
	}
	return res.Stdout, nil
}
