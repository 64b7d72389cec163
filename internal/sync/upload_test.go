package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/expandinAI/particle/internal/domain/project"
	"github.com/expandinAI/particle/internal/domain/session"
	"github.com/expandinAI/particle/internal/flat"
	"github.com/expandinAI/particle/internal/remote"
	"github.com/expandinAI/particle/internal/settings"
	"github.com/expandinAI/particle/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBackends(t *testing.T) (storage.Backends, *flat.Store) {
	t.Helper()
	store, err := flat.Open(t.TempDir(), nil)
	require.NoError(t, err)
	return storage.Backends{
		Mode:     storage.ModeFlat,
		Sessions: flat.NewSessionRepository(store),
		Projects: flat.NewProjectRepository(store),
	}, store
}

// recordingClient captures every call in order so tests can assert on the
// upload sequence and on correlation by local id.
type recordingClient struct {
	user     remote.User
	calls    []string
	projects map[string]remote.Project
	sessions map[string]remote.Session
	settings *settings.Synced

	failSessions map[string]error
	ensureErr    error
}

func newRecordingClient() *recordingClient {
	return &recordingClient{
		user:     remote.User{ID: "u1", ExternalID: "device-abc"},
		projects: map[string]remote.Project{},
		sessions: map[string]remote.Session{},
	}
}

func (c *recordingClient) EnsureUser(ctx context.Context, externalID string) (*remote.User, error) {
	if c.ensureErr != nil {
		return nil, c.ensureErr
	}
	c.calls = append(c.calls, "ensure-user")
	return &c.user, nil
}

func (c *recordingClient) UpsertProject(ctx context.Context, userID string, p remote.Project) error {
	c.calls = append(c.calls, "project:"+p.LocalID)
	c.projects[p.LocalID] = p
	return nil
}

func (c *recordingClient) UpsertSession(ctx context.Context, userID string, s remote.Session) error {
	if err := c.failSessions[s.LocalID]; err != nil {
		return err
	}
	c.calls = append(c.calls, "session:"+s.LocalID)
	c.sessions[s.LocalID] = s
	return nil
}

func (c *recordingClient) UpsertSettings(ctx context.Context, userID string, synced settings.Synced) (time.Time, error) {
	c.calls = append(c.calls, "settings")
	c.settings = &synced
	return time.Now().UTC(), nil
}

func (c *recordingClient) FetchSettings(ctx context.Context, userID string) (*remote.SettingsRow, error) {
	if c.settings == nil {
		return nil, nil
	}
	return &remote.SettingsRow{UserID: userID, Settings: *c.settings, UpdatedAt: time.Now().UTC()}, nil
}

func seedProject(t *testing.T, backends storage.Backends, id, name string) {
	t.Helper()
	require.NoError(t, backends.Projects.Upsert(context.Background(), &project.Project{
		ID: id, Name: name, CreatedAt: time.Now().UTC(),
	}))
}

func seedSession(t *testing.T, backends storage.Backends, id string, projectID *string) {
	t.Helper()
	require.NoError(t, backends.Sessions.Upsert(context.Background(), &session.Session{
		ID: id, Type: session.TypeWork, Duration: 1500,
		CompletedAt: time.Now().UTC(), ProjectID: projectID,
	}))
}

func TestUploader_ProjectsBeforeSessions(t *testing.T) {
	backends, kv := testBackends(t)
	seedProject(t, backends, "p-alpha", "Alpha")
	seedProject(t, backends, "p-beta", "Beta")
	alpha := "p-alpha"
	seedSession(t, backends, "s1", &alpha)
	seedSession(t, backends, "s2", nil)
	seedSession(t, backends, "s3", &alpha)
	seedSession(t, backends, "s4", nil)
	seedSession(t, backends, "s5", &alpha)

	client := newRecordingClient()
	u := NewUploader(backends, settings.NewStore(kv), testLogger())
	result, err := u.PerformInitialUpload(context.Background(), client, "device-abc", nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.ProjectsUploaded)
	require.Equal(t, 5, result.SessionsUploaded)
	require.Empty(t, result.Errors)

	// The account is provisioned first, and every project lands before any
	// session so project references resolve.
	require.Equal(t, "ensure-user", client.calls[0])
	lastProject, firstSession := -1, len(client.calls)
	for i, call := range client.calls {
		switch {
		case strings.HasPrefix(call, "project:"):
			lastProject = i
		case strings.HasPrefix(call, "session:"):
			if i < firstSession {
				firstSession = i
			}
		}
	}
	require.Less(t, lastProject, firstSession)

	// Rows correlate by local id, including project references.
	require.Len(t, client.projects, 2)
	require.Len(t, client.sessions, 5)
	require.Equal(t, "Alpha", client.projects["p-alpha"].Name)
	require.Equal(t, "p-alpha", *client.sessions["s1"].LocalProjectID)
	require.Nil(t, client.sessions["s2"].LocalProjectID)
}

func TestUploader_PartialFailureStillSucceeds(t *testing.T) {
	backends, kv := testBackends(t)
	seedSession(t, backends, "s1", nil)
	seedSession(t, backends, "s2", nil)
	seedSession(t, backends, "s3", nil)

	client := newRecordingClient()
	client.failSessions = map[string]error{"s2": errors.New("validation failed")}

	var ticks []Progress
	u := NewUploader(backends, settings.NewStore(kv), testLogger())
	result, err := u.PerformInitialUpload(context.Background(), client, "device-abc", func(p Progress) {
		ticks = append(ticks, p)
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.SessionsUploaded)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "s2")

	// Progress ticks for failed items too.
	require.Len(t, ticks, 3)
	require.Equal(t, Progress{Phase: PhaseSessions, Done: 3, Total: 3}, ticks[2])
}

func TestUploader_AllItemsFailedIsFailure(t *testing.T) {
	backends, kv := testBackends(t)
	seedSession(t, backends, "s1", nil)

	client := newRecordingClient()
	client.failSessions = map[string]error{"s1": errors.New("rejected")}

	u := NewUploader(backends, settings.NewStore(kv), testLogger())
	result, err := u.PerformInitialUpload(context.Background(), client, "device-abc", nil)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Zero(t, result.SessionsUploaded)
}

func TestUploader_NothingToUploadSucceeds(t *testing.T) {
	backends, kv := testBackends(t)
	u := NewUploader(backends, settings.NewStore(kv), testLogger())
	result, err := u.PerformInitialUpload(context.Background(), newRecordingClient(), "device-abc", nil)
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestUploader_EnsureUserFailureAborts(t *testing.T) {
	backends, kv := testBackends(t)
	seedSession(t, backends, "s1", nil)

	client := newRecordingClient()
	client.ensureErr = errors.New("auth rejected")

	u := NewUploader(backends, settings.NewStore(kv), testLogger())
	_, err := u.PerformInitialUpload(context.Background(), client, "device-abc", nil)
	require.Error(t, err)
	require.Empty(t, client.calls)
}

func TestUploader_IncludesSavedSettings(t *testing.T) {
	backends, kv := testBackends(t)
	store := settings.NewStore(kv)
	local := settings.Default()
	local.WorkDuration = 3000
	require.NoError(t, store.Save(local))

	client := newRecordingClient()
	u := NewUploader(backends, store, testLogger())
	result, err := u.PerformInitialUpload(context.Background(), client, "device-abc", nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, client.settings)
	require.Equal(t, 3000, client.settings.WorkDuration)
}

func TestUploader_Summarize(t *testing.T) {
	backends, kv := testBackends(t)
	seedProject(t, backends, "p1", "Alpha")
	seedSession(t, backends, "s1", nil)
	seedSession(t, backends, "s2", nil)
	store := settings.NewStore(kv)
	require.NoError(t, store.Save(settings.Default()))

	u := NewUploader(backends, store, testLogger())
	summary, err := u.Summarize(context.Background())
	require.NoError(t, err)
	require.Equal(t, LocalDataSummary{
		SessionCount: 2,
		ProjectCount: 1,
		HasSettings:  true,
		TotalItems:   4,
	}, summary)
}
