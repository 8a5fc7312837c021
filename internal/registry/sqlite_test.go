package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/strand/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSessionCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &models.Session{
		Path:   "/tmp/repo/.strand-worktrees/feature-a",
		Branch: "strand/feature-a",
	}
	require.NoError(t, s.CreateSession(ctx, sess))
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, models.ThreadTypeBase, sess.ThreadType)
	assert.Equal(t, models.TaskStatusReady, sess.TaskStatus)
	assert.False(t, sess.CreatedAt.IsZero())

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Branch, got.Branch)
	assert.Nil(t, got.MergedAt)

	got.Nickname = "feature a"
	got.ThreadType = models.ThreadTypeParallel
	now := time.Now().UTC().Truncate(time.Second)
	got.MergedAt = &now
	require.NoError(t, s.UpdateSession(ctx, got))

	got2, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "feature a", got2.Nickname)
	assert.Equal(t, models.ThreadTypeParallel, got2.ThreadType)
	require.NotNil(t, got2.MergedAt)
	assert.True(t, got2.Merged())

	require.NoError(t, s.RemoveSession(ctx, sess.ID))
	_, err = s.GetSession(ctx, sess.ID)
	assert.Error(t, err)
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestGetSessionByBranchAndPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &models.Session{Path: "/wt/x", Branch: "strand/x"}
	require.NoError(t, s.CreateSession(ctx, sess))

	byBranch, err := s.GetSessionByBranch(ctx, "strand/x")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, byBranch.ID)

	byPath, err := s.GetSessionByPath(ctx, "/wt/x")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, byPath.ID)

	_, err = s.GetSessionByBranch(ctx, "missing")
	assert.Error(t, err)
}

func TestMainSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.MainSession(ctx)
	assert.Error(t, err)

	require.NoError(t, s.CreateSession(ctx, &models.Session{Path: "/repo", Branch: "main", IsMain: true}))
	require.NoError(t, s.CreateSession(ctx, &models.Session{Path: "/wt/a", Branch: "a"}))

	main, err := s.MainSession(ctx)
	require.NoError(t, err)
	assert.True(t, main.IsMain)
	assert.Equal(t, "main", main.Branch)
}

func TestListSessions_MainFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &models.Session{Path: "/wt/a", Branch: "a"}))
	require.NoError(t, s.CreateSession(ctx, &models.Session{Path: "/repo", Branch: "main", IsMain: true}))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.True(t, sessions[0].IsMain)
}

func TestCreateSession_DuplicateBranchRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &models.Session{Path: "/wt/a", Branch: "dup"}))
	err := s.CreateSession(ctx, &models.Session{Path: "/wt/b", Branch: "dup"})
	assert.Error(t, err)
}
