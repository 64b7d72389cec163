package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/expandinAI/particle/internal/domain/session"
	"github.com/expandinAI/particle/internal/repository"
)

// SessionRepository implements repository.SessionRepository for SQLite
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	id, type, duration, completed_at, task, project_id,
	estimated_pomodoros, preset_id, overflow_duration, estimated_duration,
	deleted_at
`

// Create inserts a new session
func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, sessionArgs(sess)...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Upsert writes a session keyed by id, overwriting any existing row. The
// migration runner depends on re-insertion being an overwrite, not a
// duplicate.
func (r *SessionRepository) Upsert(ctx context.Context, sess *session.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			duration = excluded.duration,
			completed_at = excluded.completed_at,
			task = excluded.task,
			project_id = excluded.project_id,
			estimated_pomodoros = excluded.estimated_pomodoros,
			preset_id = excluded.preset_id,
			overflow_duration = excluded.overflow_duration,
			estimated_duration = excluded.estimated_duration,
			deleted_at = excluded.deleted_at
	`

	if _, err := r.db.ExecContext(ctx, query, sessionArgs(sess)...); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// Get retrieves a non-deleted session by ID
func (r *SessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE id = ? AND deleted_at IS NULL
	`

	sess, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// Update overwrites the mutable fields of a non-deleted session
func (r *SessionRepository) Update(ctx context.Context, sess *session.Session) error {
	query := `
		UPDATE sessions
		SET type = ?, duration = ?, completed_at = ?, task = ?, project_id = ?,
		    estimated_pomodoros = ?, preset_id = ?, overflow_duration = ?,
		    estimated_duration = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		sess.Type,
		sess.Duration,
		sess.CompletedAt,
		sess.Task,
		sess.ProjectID,
		sess.EstimatedPomodoros,
		sess.PresetID,
		sess.OverflowDuration,
		sess.EstimatedDuration,
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
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

// Delete soft-deletes a session. The row stays behind for sync
// reconciliation but disappears from all reads.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE sessions
		SET deleted_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
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

// List returns all non-deleted sessions ordered by completion time
func (r *SessionRepository) List(ctx context.Context) ([]session.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE deleted_at IS NULL
		ORDER BY completed_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

func sessionArgs(sess *session.Session) []any {
	return []any{
		sess.ID,
		sess.Type,
		sess.Duration,
		sess.CompletedAt,
		sess.Task,
		sess.ProjectID,
		sess.EstimatedPomodoros,
		sess.PresetID,
		sess.OverflowDuration,
		sess.EstimatedDuration,
		sess.DeletedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess               session.Session
		task               sql.NullString
		projectID          sql.NullString
		estimatedPomodoros sql.NullInt64
		presetID           sql.NullString
		overflowDuration   sql.NullInt64
		estimatedDuration  sql.NullInt64
		deletedAt          sql.NullTime
	)

	err := row.Scan(
		&sess.ID,
		&sess.Type,
		&sess.Duration,
		&sess.CompletedAt,
		&task,
		&projectID,
		&estimatedPomodoros,
		&presetID,
		&overflowDuration,
		&estimatedDuration,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Task = task.String
	if projectID.Valid {
		sess.ProjectID = &projectID.String
	}
	if estimatedPomodoros.Valid {
		v := int(estimatedPomodoros.Int64)
		sess.EstimatedPomodoros = &v
	}
	if presetID.Valid {
		sess.PresetID = &presetID.String
	}
	if overflowDuration.Valid {
		v := int(overflowDuration.Int64)
		sess.OverflowDuration = &v
	}
	if estimatedDuration.Valid {
		v := int(estimatedDuration.Int64)
		sess.EstimatedDuration = &v
	}
	if deletedAt.Valid {
		sess.DeletedAt = &deletedAt.Time
	}

	return &sess, nil
}
