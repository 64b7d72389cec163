package repository

import (
	"context"

	"github.com/expandinAI/particle/internal/domain/project"
	"github.com/expandinAI/particle/internal/domain/session"
)

// SessionRepository manages session persistence for one backend.
type SessionRepository interface {
	Create(ctx context.Context, sess *session.Session) error
	// Upsert writes a session keyed by its id, overwriting any existing row.
	// The migration runner and re-synced writes rely on this being an
	// overwrite rather than a duplicate when the row already exists.
	Upsert(ctx context.Context, sess *session.Session) error
	Get(ctx context.Context, id string) (*session.Session, error)
	Update(ctx context.Context, sess *session.Session) error
	Delete(ctx context.Context, id string) error
	// List returns all non-deleted sessions ordered by completion time.
	List(ctx context.Context) ([]session.Session, error)
}

// ProjectRepository manages project persistence for one backend.
type ProjectRepository interface {
	Create(ctx context.Context, proj *project.Project) error
	Upsert(ctx context.Context, proj *project.Project) error
	Get(ctx context.Context, id string) (*project.Project, error)
	Update(ctx context.Context, proj *project.Project) error
	Delete(ctx context.Context, id string) error
	// List returns all non-deleted projects, archived ones included.
	List(ctx context.Context) ([]project.Project, error)
}
