// Package remote talks to the cloud backend: account provisioning,
// per-item upserts for the initial upload, and the settings sync rows.
package remote

import (
	"context"
	"time"

	"github.com/expandinAI/particle/internal/settings"
)

// User is a provisioned cloud account.
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Project is the cloud representation of a project. LocalID carries the
// device-side id so re-uploads land on the same row.
type Project struct {
	ID         string    `json:"id,omitempty"`
	LocalID    string    `json:"local_id"`
	Name       string    `json:"name"`
	Brightness int       `json:"brightness"`
	Archived   bool      `json:"archived"`
	Deleted    bool      `json:"deleted"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Session is the cloud representation of a completed timer session.
// LocalProjectID references the project by its device-side id; the backend
// resolves it against previously uploaded projects.
type Session struct {
	ID             string    `json:"id,omitempty"`
	LocalID        string    `json:"local_id"`
	Type           string    `json:"type"`
	Duration       int       `json:"duration"`
	CompletedAt    time.Time `json:"completed_at"`
	Task           string    `json:"task,omitempty"`
	LocalProjectID *string   `json:"local_project_id,omitempty"`
	Deleted        bool      `json:"deleted"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// SettingsRow is the per-user settings record with the server-side
// timestamp used for last-writer-wins comparisons.
type SettingsRow struct {
	UserID    string          `json:"user_id"`
	Settings  settings.Synced `json:"settings"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Client is the cloud backend surface the sync layer depends on.
type Client interface {
	// EnsureUser provisions (or finds) the account for an external
	// identity and returns it.
	EnsureUser(ctx context.Context, externalID string) (*User, error)

	// UpsertProject writes one project row keyed by its local id.
	UpsertProject(ctx context.Context, userID string, p Project) error

	// UpsertSession writes one session row keyed by its local id.
	UpsertSession(ctx context.Context, userID string, s Session) error

	// UpsertSettings replaces the user's settings row and returns the
	// server timestamp of the write.
	UpsertSettings(ctx context.Context, userID string, synced settings.Synced) (time.Time, error)

	// FetchSettings returns the user's settings row, or (nil, nil) when
	// the user has never synced settings.
	FetchSettings(ctx context.Context, userID string) (*SettingsRow, error)
}
