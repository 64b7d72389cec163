package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/expandinAI/particle/internal/domain/project"
	"github.com/expandinAI/particle/internal/domain/session"
	"github.com/expandinAI/particle/internal/remote"
	"github.com/expandinAI/particle/internal/settings"
	"github.com/expandinAI/particle/internal/storage"
)

// Upload phases reported through the progress callback.
const (
	PhaseProjects = "projects"
	PhaseSessions = "sessions"
)

// Progress is one progress tick during the initial upload.
type Progress struct {
	Phase string
	Done  int
	Total int
}

// LocalDataSummary counts what an initial upload would send.
type LocalDataSummary struct {
	SessionCount int
	ProjectCount int
	HasSettings  bool
	TotalItems   int
}

// UploadResult reports the outcome of an initial upload. Success follows a
// partial-failure policy: the upload succeeds as long as at least one item
// made it (or there was nothing to send); it fails outright only when the
// account could not be provisioned or every single item was rejected.
type UploadResult struct {
	Success          bool
	ProjectsUploaded int
	SessionsUploaded int
	Errors           []string
}

// Uploader performs the one-time upload of pre-existing local data when a
// user first signs in.
type Uploader struct {
	backends storage.Backends
	settings *settings.Store
	logger   *slog.Logger
}

// NewUploader creates an uploader reading from the resolved backends.
func NewUploader(backends storage.Backends, settingsStore *settings.Store, logger *slog.Logger) *Uploader {
	return &Uploader{backends: backends, settings: settingsStore, logger: logger}
}

// Summarize counts the local data an upload would cover.
func (u *Uploader) Summarize(ctx context.Context) (LocalDataSummary, error) {
	sessions, err := u.backends.Sessions.List(ctx)
	if err != nil {
		return LocalDataSummary{}, fmt.Errorf("counting sessions: %w", err)
	}
	projects, err := u.backends.Projects.List(ctx)
	if err != nil {
		return LocalDataSummary{}, fmt.Errorf("counting projects: %w", err)
	}
	hasSettings, err := u.settings.Exists()
	if err != nil {
		return LocalDataSummary{}, fmt.Errorf("checking settings: %w", err)
	}

	summary := LocalDataSummary{
		SessionCount: len(sessions),
		ProjectCount: len(projects),
		HasSettings:  hasSettings,
		TotalItems:   len(sessions) + len(projects),
	}
	if hasSettings {
		summary.TotalItems++
	}
	return summary, nil
}

// PerformInitialUpload provisions the account and pushes all local projects,
// then all local sessions, then settings. Projects go first so the backend
// can resolve session project references by local id. Item failures are
// collected, not fatal; onProgress (optional) is called after each item.
func (u *Uploader) PerformInitialUpload(ctx context.Context, client remote.Client, externalID string, onProgress func(Progress)) (*UploadResult, error) {
	user, err := client.EnsureUser(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("ensuring user: %w", err)
	}

	projects, err := u.backends.Projects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	sessions, err := u.backends.Sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	result := &UploadResult{}
	attempted := 0

	for i, proj := range projects {
		if err := client.UpsertProject(ctx, user.ID, toRemoteProject(proj)); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("project %s: %v", proj.ID, err))
			u.logger.Warn("project upload failed", "project_id", proj.ID, "error", err)
		} else {
			result.ProjectsUploaded++
		}
		attempted++
		report(onProgress, Progress{Phase: PhaseProjects, Done: i + 1, Total: len(projects)})
	}

	for i, sess := range sessions {
		if err := client.UpsertSession(ctx, user.ID, toRemoteSession(sess)); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("session %s: %v", sess.ID, err))
			u.logger.Warn("session upload failed", "session_id", sess.ID, "error", err)
		} else {
			result.SessionsUploaded++
		}
		attempted++
		report(onProgress, Progress{Phase: PhaseSessions, Done: i + 1, Total: len(sessions)})
	}

	if hasSettings, err := u.settings.Exists(); err == nil && hasSettings {
		if _, err := client.UpsertSettings(ctx, user.ID, u.settings.Extract()); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("settings: %v", err))
			u.logger.Warn("settings upload failed", "error", err)
		}
	}

	uploaded := result.ProjectsUploaded + result.SessionsUploaded
	result.Success = attempted == 0 || uploaded > 0
	u.logger.Info("initial upload finished",
		"user_id", user.ID,
		"projects", result.ProjectsUploaded,
		"sessions", result.SessionsUploaded,
		"errors", len(result.Errors),
		"success", result.Success)
	return result, nil
}

func report(onProgress func(Progress), p Progress) {
	if onProgress != nil {
		onProgress(p)
	}
}

func toRemoteProject(proj project.Project) remote.Project {
	return remote.Project{
		LocalID:    proj.ID,
		Name:       proj.Name,
		Brightness: proj.Brightness,
		Archived:   proj.Archived,
		Deleted:    proj.DeletedAt != nil,
		CreatedAt:  proj.CreatedAt,
	}
}

func toRemoteSession(sess session.Session) remote.Session {
	return remote.Session{
		LocalID:        sess.ID,
		Type:           string(sess.Type),
		Duration:       sess.Duration,
		CompletedAt:    sess.CompletedAt,
		Task:           sess.Task,
		LocalProjectID: sess.ProjectID,
		Deleted:        sess.DeletedAt != nil,
	}
}
