package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/strand/internal/gitexec"
	"github.com/joescharf/strand/internal/gitstate"
	"github.com/joescharf/strand/internal/registry"
)

func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runner := gitexec.NewRunner()
	for _, args := range [][]string{
		{"init", "-b", "main"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
		{"commit", "--allow-empty", "-m", "initial"},
	} {
		_, err := runner.Output(dir, args...)
		require.NoError(t, err, "git %v", args)
	}
	return dir
}

func newTestStore(t *testing.T) registry.Store {
	t.Helper()
	s, err := registry.NewSQLiteStore(filepath.Join(t.TempDir(), "strand.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureMainSession_RegistersOnce(t *testing.T) {
	repo := newTestRepo(t)
	s := newTestStore(t)
	detector := gitstate.NewDetector(gitexec.NewRunner(), gitstate.NewCache(time.Minute), repo)

	ensureMainSession(s, detector, repo)
	ensureMainSession(s, detector, repo)

	sessions, err := s.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].IsMain)
	assert.Equal(t, repo, sessions[0].Path)
	assert.Equal(t, "main", sessions[0].Branch)
}

func TestEnsureMainSession_FollowsMovedRepo(t *testing.T) {
	repo := newTestRepo(t)
	s := newTestStore(t)
	detector := gitstate.NewDetector(gitexec.NewRunner(), gitstate.NewCache(time.Minute), repo)

	ensureMainSession(s, detector, repo)

	// The repository moved on disk: the existing main row must follow
	// rather than a second one appearing.
	moved := newTestRepo(t)
	ensureMainSession(s, gitstate.NewDetector(gitexec.NewRunner(), gitstate.NewCache(time.Minute), moved), moved)

	sessions, err := s.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].IsMain)
	assert.Equal(t, moved, sessions[0].Path)

	main, err := s.MainSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, moved, main.Path)
}
