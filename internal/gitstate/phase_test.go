package gitstate

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/strand/internal/gitexec"
	"github.com/joescharf/strand/internal/models"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	full := append([]string{"-C", dir}, args...)
	out, err := exec.Command("git", full...).CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// newTestRepo creates a repo with one commit on main and returns its path.
func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# repo\n"), 0644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial")
	return dir
}

// addWorktree creates a worktree with a new branch and returns its path.
func addWorktree(t *testing.T, repo, branch string) string {
	t.Helper()
	wtPath := filepath.Join(t.TempDir(), branch)
	runGit(t, repo, "worktree", "add", "-b", branch, wtPath)
	return wtPath
}

func newDetector(repo string) *Detector {
	return NewDetector(gitexec.NewRunner(), NewCache(0), repo)
}

func TestMainBranch_LocalRepo(t *testing.T) {
	repo := newTestRepo(t)
	d := newDetector(repo)

	assert.Equal(t, "main", d.MainBranch(context.Background()))
}

func TestPhaseFor_EarlyExits(t *testing.T) {
	repo := newTestRepo(t)
	d := newDetector(repo)
	ctx := context.Background()

	now := time.Now()
	merged := &models.Session{ID: "s1", Path: repo, MergedAt: &now}
	assert.Equal(t, models.PhaseMerged, d.PhaseFor(ctx, merged))

	main := &models.Session{ID: "s2", Path: repo, IsMain: true}
	assert.Equal(t, models.PhaseMerged, d.PhaseFor(ctx, main))

	missing := &models.Session{ID: "s3", Path: filepath.Join(repo, "does-not-exist")}
	assert.Equal(t, models.PhaseTodo, d.PhaseFor(ctx, missing))
}

func TestPhaseFor_Todo(t *testing.T) {
	repo := newTestRepo(t)
	wt := addWorktree(t, repo, "feature-todo")
	d := newDetector(repo)

	s := &models.Session{ID: "s1", Path: wt, Branch: "feature-todo"}
	assert.Equal(t, models.PhaseTodo, d.PhaseFor(context.Background(), s))
}

func TestPhaseFor_CodingAndReview(t *testing.T) {
	repo := newTestRepo(t)
	wt := addWorktree(t, repo, "feature-x")
	d := newDetector(repo)
	ctx := context.Background()

	// One commit ahead, clean tree: review.
	require.NoError(t, os.WriteFile(filepath.Join(wt, "a.txt"), []byte("a\n"), 0644))
	runGit(t, wt, "add", ".")
	runGit(t, wt, "commit", "-m", "work")

	s := &models.Session{ID: "s1", Path: wt, Branch: "feature-x"}
	assert.Equal(t, models.PhaseReview, d.PhaseFor(ctx, s))

	// Dirty the tree: coding. The previous answer is cached, so invalidate.
	require.NoError(t, os.WriteFile(filepath.Join(wt, "b.txt"), []byte("b\n"), 0644))
	d.Cache().InvalidatePath(wt)
	assert.Equal(t, models.PhaseCoding, d.PhaseFor(ctx, s))
}

func TestPhaseFor_CachedWithinTTL(t *testing.T) {
	repo := newTestRepo(t)
	wt := addWorktree(t, repo, "feature-cache")
	d := newDetector(repo)
	ctx := context.Background()

	s := &models.Session{ID: "s1", Path: wt, Branch: "feature-cache"}
	assert.Equal(t, models.PhaseTodo, d.PhaseFor(ctx, s))

	// New commit without invalidation: the cached todo answer sticks.
	require.NoError(t, os.WriteFile(filepath.Join(wt, "a.txt"), []byte("a\n"), 0644))
	runGit(t, wt, "add", ".")
	runGit(t, wt, "commit", "-m", "work")
	assert.Equal(t, models.PhaseTodo, d.PhaseFor(ctx, s))

	d.Cache().Invalidate(Key("phase", wt))
	assert.Equal(t, models.PhaseReview, d.PhaseFor(ctx, s))
}

func TestPhasesFor_PreservesOrder(t *testing.T) {
	repo := newTestRepo(t)
	d := newDetector(repo)

	wt1 := addWorktree(t, repo, "batch-1")
	wt2 := addWorktree(t, repo, "batch-2")
	require.NoError(t, os.WriteFile(filepath.Join(wt2, "a.txt"), []byte("a\n"), 0644))
	runGit(t, wt2, "add", ".")
	runGit(t, wt2, "commit", "-m", "work")

	sessions := []*models.Session{
		{ID: "main", Path: repo, IsMain: true},
		{ID: "s1", Path: wt1, Branch: "batch-1"},
		{ID: "s2", Path: wt2, Branch: "batch-2"},
	}

	out := d.PhasesFor(context.Background(), sessions)
	require.Len(t, out, 3)
	assert.Equal(t, "main", out[0].Session.ID)
	assert.Equal(t, models.PhaseMerged, out[0].Phase)
	assert.Equal(t, "s1", out[1].Session.ID)
	assert.Equal(t, models.PhaseTodo, out[1].Phase)
	assert.Equal(t, "s2", out[2].Session.ID)
	assert.Equal(t, models.PhaseReview, out[2].Phase)
}

func TestCurrentBranch(t *testing.T) {
	repo := newTestRepo(t)
	wt := addWorktree(t, repo, "feature-branch")
	d := newDetector(repo)

	branch, err := d.CurrentBranch(context.Background(), wt)
	require.NoError(t, err)
	assert.Equal(t, "feature-branch", branch)
}
