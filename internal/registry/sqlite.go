package registry

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/strand/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all access through Go's pool, preventing "database is
	// locked" errors when commands overlap.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sessionColumns = `id, path, branch, nickname, is_main, thread_type, task_status, story, last_active, merged_at, created_at`

func scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	s := &models.Session{}
	var mergedAt sql.NullTime
	err := row.Scan(&s.ID, &s.Path, &s.Branch, &s.Nickname, &s.IsMain,
		&s.ThreadType, &s.TaskStatus, &s.Story, &s.LastActive, &mergedAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	if mergedAt.Valid {
		t := mergedAt.Time
		s.MergedAt = &t
	}
	return s, nil
}

// CreateSession inserts a session, assigning an ID and defaulting the
// thread type, task status, and timestamps when unset.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *models.Session) error {
	if sess.ID == "" {
		sess.ID = newULID()
	}
	if sess.ThreadType == "" {
		sess.ThreadType = models.ThreadType(models.ThreadTypeMachine.Initial())
	}
	if sess.TaskStatus == "" {
		sess.TaskStatus = models.TaskStatus(models.TaskStatusMachine.Initial())
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.LastActive.IsZero() {
		sess.LastActive = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Path, sess.Branch, sess.Nickname, boolToInt(sess.IsMain),
		string(sess.ThreadType), string(sess.TaskStatus), sess.Story,
		sess.LastActive, sess.MergedAt, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) GetSessionByBranch(ctx context.Context, branch string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE branch = ?`, branch)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no session for branch: %s", branch)
	}
	if err != nil {
		return nil, fmt.Errorf("get session by branch: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) GetSessionByPath(ctx context.Context, path string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE path = ?`, path)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no session at path: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("get session by path: %w", err)
	}
	return sess, nil
}

// MainSession returns the session marked as the primary checkout.
func (s *SQLiteStore) MainSession(ctx context.Context) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE is_main = 1`)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no main session registered")
	}
	if err != nil {
		return nil, fmt.Errorf("get main session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY is_main DESC, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *models.Session) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET path=?, branch=?, nickname=?, is_main=?, thread_type=?, task_status=?, story=?, last_active=?, merged_at=? WHERE id=?`,
		sess.Path, sess.Branch, sess.Nickname, boolToInt(sess.IsMain),
		string(sess.ThreadType), string(sess.TaskStatus), sess.Story,
		sess.LastActive, sess.MergedAt, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %s", sess.ID)
	}
	return nil
}

func (s *SQLiteStore) RemoveSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}
