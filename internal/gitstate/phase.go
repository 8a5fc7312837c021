package gitstate

import (
	"context"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/strand/internal/gitexec"
	"github.com/joescharf/strand/internal/models"
)

// Detector answers phase and branch queries for sessions, caching results
// keyed by worktree path.
type Detector struct {
	runner   gitexec.Runner
	cache    *Cache
	mainPath string
}

// NewDetector creates a Detector rooted at the primary repository path.
func NewDetector(runner gitexec.Runner, cache *Cache, mainPath string) *Detector {
	return &Detector{runner: runner, cache: cache, mainPath: mainPath}
}

// Cache exposes the detector's cache so mutating components (the merge
// engine) can invalidate paths they touch.
func (d *Detector) Cache() *Cache { return d.cache }

// MainBranch resolves the primary branch name. Resolution order: origin's
// HEAD symbolic ref, a local main branch, a local master branch, then
// "main" as the last resort. The answer is cached.
func (d *Detector) MainBranch(ctx context.Context) string {
	key := Key("main-branch", d.mainPath)
	if v := d.cache.Get(key); v != nil {
		return v.(string)
	}

	branch := d.resolveMainBranch(ctx)
	d.cache.Set(key, branch)
	return branch
}

func (d *Detector) resolveMainBranch(ctx context.Context) string {
	res, err := d.runner.Run(ctx, d.mainPath, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil && res.Ok() {
		ref := strings.TrimSpace(res.Stdout)
		if name, ok := strings.CutPrefix(ref, "refs/remotes/origin/"); ok && name != "" {
			return name
		}
	}

	for _, candidate := range []string{"main", "master"} {
		res, err := d.runner.Run(ctx, d.mainPath, "rev-parse", "--verify", "refs/heads/"+candidate)
		if err == nil && res.Ok() {
			return candidate
		}
	}

	return "main"
}

// CurrentBranch returns the checked-out branch at path, cached.
func (d *Detector) CurrentBranch(ctx context.Context, path string) (string, error) {
	key := Key("branch", path)
	if v := d.cache.Get(key); v != nil {
		return v.(string), nil
	}

	res, err := d.runner.Run(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(res.Stdout)
	if res.Ok() && branch != "" {
		d.cache.Set(key, branch)
	}
	return branch, nil
}

// CommitsAhead counts commits on the session's HEAD that are not on the
// main branch. Subprocess failure degrades to zero.
func (d *Detector) CommitsAhead(ctx context.Context, path string) int {
	main := d.MainBranch(ctx)
	res, err := d.runner.Run(ctx, path, "rev-list", "--count", main+"..HEAD")
	if err != nil || !res.Ok() {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		return 0
	}
	return n
}

// IsDirty reports whether the working tree at path has uncommitted
// changes. Subprocess failure degrades to clean.
func (d *Detector) IsDirty(ctx context.Context, path string) bool {
	res, err := d.runner.Run(ctx, path, "status", "--porcelain")
	if err != nil || !res.Ok() {
		return false
	}
	return strings.TrimSpace(res.Stdout) != ""
}

// PhaseFor derives the session's phase. Merged sessions and the main
// checkout short-circuit to merged; a missing worktree path reports todo.
// If the derivation fails outright the session is assumed active and
// reports coding.
func (d *Detector) PhaseFor(ctx context.Context, s *models.Session) models.Phase {
	if s.Merged() || s.IsMain {
		return models.PhaseMerged
	}
	if _, err := os.Stat(s.Path); err != nil {
		return models.PhaseTodo
	}

	key := Key("phase", s.Path)
	if v := d.cache.Get(key); v != nil {
		return v.(models.Phase)
	}

	phase, err := d.derivePhase(ctx, s.Path)
	if err != nil {
		// An error mid-work is assumed to be active work.
		return models.PhaseCoding
	}

	d.cache.Set(key, phase)
	return phase
}

func (d *Detector) derivePhase(ctx context.Context, path string) (models.Phase, error) {
	main := d.MainBranch(ctx)

	ahead := 0
	res, err := d.runner.Run(ctx, path, "rev-list", "--count", main+"..HEAD")
	if err != nil {
		return "", err
	}
	if res.Ok() {
		if n, convErr := strconv.Atoi(strings.TrimSpace(res.Stdout)); convErr == nil {
			ahead = n
		}
	}

	dirty := false
	res, err = d.runner.Run(ctx, path, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if res.Ok() {
		dirty = strings.TrimSpace(res.Stdout) != ""
	}

	return models.DeterminePhase(ahead, dirty), nil
}

// SessionPhase pairs a session with its derived phase.
type SessionPhase struct {
	Session *models.Session
	Phase   models.Phase
}

// PhasesFor derives phases for all sessions concurrently. Each worktree is
// an independent checkout, so the queries fan out and join with no
// ordering dependency; the output preserves input order.
func (d *Detector) PhasesFor(ctx context.Context, sessions []*models.Session) []SessionPhase {
	out := make([]SessionPhase, len(sessions))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range sessions {
		g.Go(func() error {
			out[i] = SessionPhase{Session: s, Phase: d.PhaseFor(gctx, s)}
			return nil
		})
	}
	// PhaseFor is total: derivation failures degrade to a phase instead of
	// an error, so Wait cannot fail.
	_ = g.Wait()

	return out
}
