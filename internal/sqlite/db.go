// Package sqlite implements the structured backend: a local SQLite database
// with typed tables and soft deletes for sessions and projects.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New opens a SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps statement ordering simple and avoids
	// SQLITE_BUSY on concurrent writes from the same process.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

// InitSchema creates the tables if they don't exist. It runs on every load,
// before the storage mode is resolved, so it must be idempotent.
func (db *DB) InitSchema() error {
	schema := `
-- Projects table. deleted_at marks soft-deleted rows kept for sync
-- reconciliation.
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    brightness INTEGER NOT NULL DEFAULT 0,
    archived INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    deleted_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_projects_deleted ON projects(deleted_at);

-- Sessions table. project_id intentionally carries no foreign key: legacy
-- flat-store rows may reference projects that no longer exist and must
-- still migrate.
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL CHECK(type IN ('work', 'shortBreak', 'longBreak')),
    duration INTEGER NOT NULL CHECK(duration >= 0),
    completed_at TIMESTAMP NOT NULL,
    task TEXT NOT NULL DEFAULT '',
    project_id TEXT,
    estimated_pomodoros INTEGER,
    preset_id TEXT,
    overflow_duration INTEGER,
    estimated_duration INTEGER,
    deleted_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sessions_completed ON sessions(completed_at);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);
CREATE INDEX IF NOT EXISTS idx_sessions_deleted ON sessions(deleted_at);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
