package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/expandinAI/particle/internal/domain/project"
	"github.com/expandinAI/particle/internal/repository"
)

// ProjectRepository implements repository.ProjectRepository for SQLite
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, name, brightness, archived, created_at, deleted_at`

// Create inserts a new project
func (r *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, projectArgs(proj)...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// Upsert writes a project keyed by id, overwriting any existing row.
func (r *ProjectRepository) Upsert(ctx context.Context, proj *project.Project) error {
	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			brightness = excluded.brightness,
			archived = excluded.archived,
			created_at = excluded.created_at,
			deleted_at = excluded.deleted_at
	`

	if _, err := r.db.ExecContext(ctx, query, projectArgs(proj)...); err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	return nil
}

// Get retrieves a non-deleted project by ID
func (r *ProjectRepository) Get(ctx context.Context, id string) (*project.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE id = ? AND deleted_at IS NULL
	`

	proj, err := scanProject(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return proj, nil
}

// Update overwrites the mutable fields of a non-deleted project
func (r *ProjectRepository) Update(ctx context.Context, proj *project.Project) error {
	query := `
		UPDATE projects
		SET name = ?, brightness = ?, archived = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		proj.Name,
		proj.Brightness,
		proj.Archived,
		proj.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete soft-deletes a project
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE projects
		SET deleted_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns all non-deleted projects sorted by name, case-insensitively
func (r *ProjectRepository) List(ctx context.Context) ([]project.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE deleted_at IS NULL
		ORDER BY LOWER(name) ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		proj, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *proj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

func projectArgs(proj *project.Project) []any {
	return []any{
		proj.ID,
		proj.Name,
		proj.Brightness,
		proj.Archived,
		proj.CreatedAt,
		proj.DeletedAt,
	}
}

func scanProject(row rowScanner) (*project.Project, error) {
	var (
		proj      project.Project
		deletedAt sql.NullTime
	)

	err := row.Scan(
		&proj.ID,
		&proj.Name,
		&proj.Brightness,
		&proj.Archived,
		&proj.CreatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if deletedAt.Valid {
		proj.DeletedAt = &deletedAt.Time
	}
	return &proj, nil
}
