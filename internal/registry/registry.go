// Package registry persists session records. It is the only place
// long-lived session state is written; phase and merge outcomes are
// derived from the repository, never stored here as ground truth.
package registry

import (
	"context"

	"github.com/joescharf/strand/internal/models"
)

// Store defines the persistence interface for sessions.
type Store interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetSessionByBranch(ctx context.Context, branch string) (*models.Session, error)
	GetSessionByPath(ctx context.Context, path string) (*models.Session, error)
	MainSession(ctx context.Context) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	UpdateSession(ctx context.Context, s *models.Session) error
	RemoveSession(ctx context.Context, id string) error

	Migrate(ctx context.Context) error
	Close() error
}
