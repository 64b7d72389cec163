package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/expandinAI/particle/internal/bus"
	"github.com/expandinAI/particle/internal/domain/session"
	"github.com/expandinAI/particle/internal/flat"
	"github.com/expandinAI/particle/internal/repository"
	"github.com/expandinAI/particle/internal/sqlite"
	"github.com/expandinAI/particle/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func structuredBackends(t *testing.T) storage.Backends {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })
	return storage.Backends{
		Mode:     storage.ModeStructured,
		DB:       db,
		Sessions: sqlite.NewSessionRepository(db),
		Projects: sqlite.NewProjectRepository(db),
	}
}

func flatBackends(t *testing.T, b *bus.Bus) (storage.Backends, *flat.Store) {
	t.Helper()
	store, err := flat.Open(t.TempDir(), b)
	require.NoError(t, err)
	return storage.Backends{
		Mode:     storage.ModeFlat,
		Sessions: flat.NewSessionRepository(store),
		Projects: flat.NewProjectRepository(store),
	}, store
}

func readySessionStore(t *testing.T) *SessionStore {
	t.Helper()
	backend := structuredBackends(t)
	fallback, _ := flatBackends(t, nil)
	s := NewSessionStore(backend, fallback, nil, nil, testLogger())
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestSessionStore_RejectsWritesBeforeLoad(t *testing.T) {
	backend := structuredBackends(t)
	fallback, _ := flatBackends(t, nil)
	s := NewSessionStore(backend, fallback, nil, nil, testLogger())

	require.Equal(t, StateUninitialized, s.State())
	_, err := s.Create(context.Background(), CreateSessionInput{Type: session.TypeWork, Duration: 60})
	require.ErrorIs(t, err, session.ErrNotReady)
}

func TestSessionStore_CreateValidation(t *testing.T) {
	s := readySessionStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateSessionInput{Type: "nap", Duration: 60})
	require.ErrorIs(t, err, session.ErrInvalidInput)

	_, err = s.Create(ctx, CreateSessionInput{Type: session.TypeWork, Duration: -1})
	require.ErrorIs(t, err, session.ErrInvalidInput)
}

func TestSessionStore_CacheMatchesBackend(t *testing.T) {
	backend := structuredBackends(t)
	fallback, _ := flatBackends(t, nil)
	s := NewSessionStore(backend, fallback, nil, nil, testLogger())
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	created, err := s.Create(ctx, CreateSessionInput{Type: session.TypeWork, Duration: 1500, Task: "draft", CompletedAt: base})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateSessionInput{Type: session.TypeShortBreak, Duration: 300, CompletedAt: base.Add(30 * time.Minute)})
	require.NoError(t, err)

	task := "final draft"
	_, err = s.Update(ctx, created.ID, UpdateSessionInput{Task: &task})
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	// The cache must exactly match what a fresh load would return.
	cached := s.All()
	fresh := NewSessionStore(backend, fallback, nil, nil, testLogger())
	require.NoError(t, fresh.Load(ctx))
	require.Equal(t, fresh.All(), cached)
}

func TestSessionStore_UpdateNotFound(t *testing.T) {
	s := readySessionStore(t)
	task := "anything"
	_, err := s.Update(context.Background(), "missing", UpdateSessionInput{Task: &task})
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestSessionStore_DeleteMissingIsNoOp(t *testing.T) {
	s := readySessionStore(t)
	deleted, err := s.Delete(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestSessionStore_ClearProject(t *testing.T) {
	s := readySessionStore(t)
	ctx := context.Background()

	projectID := "p1"
	created, err := s.Create(ctx, CreateSessionInput{Type: session.TypeWork, Duration: 60, ProjectID: &projectID})
	require.NoError(t, err)

	updated, err := s.Update(ctx, created.ID, UpdateSessionInput{ClearProject: true})
	require.NoError(t, err)
	require.Nil(t, updated.ProjectID)
}

func TestSessionStore_ForDayAndRange(t *testing.T) {
	s := readySessionStore(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := s.Create(ctx, CreateSessionInput{Type: session.TypeWork, Duration: 60, CompletedAt: day.Add(9 * time.Hour)})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateSessionInput{Type: session.TypeWork, Duration: 60, CompletedAt: day.Add(23 * time.Hour)})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateSessionInput{Type: session.TypeWork, Duration: 60, CompletedAt: day.AddDate(0, 0, 1).Add(time.Hour)})
	require.NoError(t, err)

	require.Len(t, s.ForDay(day), 2)
	require.Len(t, s.ForRange(day, day.AddDate(0, 0, 2)), 3)
}

// failingSessions simulates a structured backend that selected fine but
// breaks on first use.
type failingSessions struct{}

func (failingSessions) Create(context.Context, *session.Session) error { return errors.New("io error") }
func (failingSessions) Upsert(context.Context, *session.Session) error { return errors.New("io error") }
func (failingSessions) Get(context.Context, string) (*session.Session, error) {
	return nil, errors.New("io error")
}
func (failingSessions) Update(context.Context, *session.Session) error { return errors.New("io error") }
func (failingSessions) Delete(context.Context, string) error           { return errors.New("io error") }
func (failingSessions) List(context.Context) ([]session.Session, error) {
	return nil, errors.New("io error")
}

var _ repository.SessionRepository = failingSessions{}

func TestSessionStore_LoadFallsBackToFlat(t *testing.T) {
	b := bus.New()
	fallback, flatStore := flatBackends(t, b)
	ctx := context.Background()

	// Pre-existing flat data the fallback load should pick up.
	require.NoError(t, fallback.Sessions.Upsert(ctx, &session.Session{
		ID: "s1", Type: session.TypeWork, Duration: 60, CompletedAt: time.Now().UTC(),
	}))

	broken := storage.Backends{Mode: storage.ModeStructured, Sessions: failingSessions{}}
	s := NewSessionStore(broken, fallback, b, flatStore, testLogger())
	require.NoError(t, s.Load(ctx))

	require.Equal(t, StateReady, s.State())
	require.Equal(t, storage.ModeFlat, s.Mode())
	require.Len(t, s.All(), 1)

	// Writes keep working against the flat backend.
	_, err := s.Create(ctx, CreateSessionInput{Type: session.TypeWork, Duration: 120})
	require.NoError(t, err)
	require.Len(t, s.All(), 2)
}

func TestSessionStore_FlatBroadcastReloadsSiblings(t *testing.T) {
	b := bus.New()
	backend, flatStore := flatBackends(t, b)
	ctx := context.Background()

	first := NewSessionStore(backend, backend, b, flatStore, testLogger())
	second := NewSessionStore(backend, backend, b, flatStore, testLogger())
	defer first.Close()
	defer second.Close()
	require.NoError(t, first.Load(ctx))
	require.NoError(t, second.Load(ctx))

	_, err := first.Create(ctx, CreateSessionInput{Type: session.TypeWork, Duration: 60, Task: "shared"})
	require.NoError(t, err)

	// The broadcast-on-write protocol delivers synchronously in-process.
	require.Len(t, second.All(), 1)
	require.Equal(t, "shared", second.All()[0].Task)

	// Unsubscribed stores stop observing writes.
	second.Close()
	_, err = first.Create(ctx, CreateSessionInput{Type: session.TypeWork, Duration: 60})
	require.NoError(t, err)
	require.Len(t, second.All(), 1)
}

func TestSessionStore_RecentTasks(t *testing.T) {
	b := bus.New()
	backend, flatStore := flatBackends(t, b)
	s := NewSessionStore(backend, backend, b, flatStore, testLogger())
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	for _, task := range []string{"alpha", "beta", "Alpha"} {
		_, err := s.Create(ctx, CreateSessionInput{Type: session.TypeWork, Duration: 60, Task: task})
		require.NoError(t, err)
	}
	// Breaks don't contribute.
	_, err := s.Create(ctx, CreateSessionInput{Type: session.TypeShortBreak, Duration: 300, Task: "ignored"})
	require.NoError(t, err)

	require.Equal(t, []string{"Alpha", "beta"}, s.RecentTasks())
}
