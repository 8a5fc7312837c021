package merge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitChanges(t *testing.T) {
	mainPath := newMainRepo(t)
	engine, _ := newTestEngine(t, mainPath)
	sess := addSessionWorktree(t, mainPath, "helper-commit")

	t.Run("clean tree is a no-op", func(t *testing.T) {
		hash, err := engine.CommitChanges(context.Background(), sess.Path, "nothing here")
		require.NoError(t, err)
		assert.Empty(t, hash)
	})

	t.Run("commits staged and unstaged work", func(t *testing.T) {
		writeFile(t, sess.Path, "new.go", "package new\n")
		hash, err := engine.CommitChanges(context.Background(), sess.Path, "add new file")
		require.NoError(t, err)
		assert.NotEmpty(t, hash)

		subject := runGit(t, sess.Path, "log", "-1", "--format=%s")
		assert.Equal(t, "add new file", strings.TrimSpace(subject))
		status := runGit(t, sess.Path, "status", "--porcelain")
		assert.Empty(t, strings.TrimSpace(status))
	})
}

func TestStashAndUnstash(t *testing.T) {
	mainPath := newMainRepo(t)
	engine, _ := newTestEngine(t, mainPath)
	sess := addSessionWorktree(t, mainPath, "helper-stash")

	require.NoError(t, engine.StashChanges(context.Background(), sess.Path, "clean tree"))
	require.NoError(t, engine.UnstashChanges(context.Background(), sess.Path), "empty stash pops fine")

	writeFile(t, sess.Path, "wip.go", "package wip\n")
	require.NoError(t, engine.StashChanges(context.Background(), sess.Path, "park wip"))
	assert.NoFileExists(t, filepath.Join(sess.Path, "wip.go"))

	require.NoError(t, engine.UnstashChanges(context.Background(), sess.Path))
	assert.FileExists(t, filepath.Join(sess.Path, "wip.go"))
}

func TestDiscardChanges(t *testing.T) {
	mainPath := newMainRepo(t)
	engine, _ := newTestEngine(t, mainPath)
	sess := addSessionWorktree(t, mainPath, "helper-discard")

	writeFile(t, sess.Path, "tracked.go", "package tracked\n")
	commitAll(t, sess.Path, "add tracked")

	// Stage one edit, leave another unstaged, add an untracked file.
	writeFile(t, sess.Path, "tracked.go", "package tracked // staged edit\n")
	runGit(t, sess.Path, "add", "tracked.go")
	writeFile(t, sess.Path, "README.md", "# project\nedited\n")
	writeFile(t, sess.Path, "untracked.txt", "scratch\n")

	require.NoError(t, engine.DiscardChanges(context.Background(), sess.Path))

	data, err := os.ReadFile(filepath.Join(sess.Path, "tracked.go"))
	require.NoError(t, err)
	assert.Equal(t, "package tracked\n", string(data))
	data, err = os.ReadFile(filepath.Join(sess.Path, "README.md"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "edited")
	assert.FileExists(t, filepath.Join(sess.Path, "untracked.txt"), "untracked files survive a discard")
}
