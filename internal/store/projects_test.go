package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/expandinAI/particle/internal/bus"
	"github.com/expandinAI/particle/internal/domain/project"
	"github.com/expandinAI/particle/internal/storage"
)

func readyProjectStore(t *testing.T) *ProjectStore {
	t.Helper()
	backend := structuredBackends(t)
	fallback, _ := flatBackends(t, nil)
	s := NewProjectStore(backend, fallback, nil, testLogger())
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestProjectStore_NameUniquenessInvariant(t *testing.T) {
	s := readyProjectStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, "Work", 70)
	require.NoError(t, err)

	// Case-insensitive collision with an active project.
	_, err = s.Create(ctx, "work", 50)
	require.ErrorIs(t, err, project.ErrNameTaken)

	// Archiving releases the name.
	_, err = s.Archive(ctx, first.ID)
	require.NoError(t, err)
	second, err := s.Create(ctx, "Work", 50)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	// And restoring the original now collides.
	_, err = s.Restore(ctx, first.ID)
	require.ErrorIs(t, err, project.ErrNameTaken)
}

func TestProjectStore_ArchiveRestore(t *testing.T) {
	s := readyProjectStore(t)
	ctx := context.Background()

	proj, err := s.Create(ctx, "Deep Work", 80)
	require.NoError(t, err)

	archived, err := s.Archive(ctx, proj.ID)
	require.NoError(t, err)
	require.True(t, archived.Archived)
	require.Empty(t, s.Active())
	require.Len(t, s.Archived(), 1)

	restored, err := s.Restore(ctx, proj.ID)
	require.NoError(t, err)
	require.False(t, restored.Archived)
	require.Len(t, s.Active(), 1)
	require.Empty(t, s.Archived())
}

func TestProjectStore_UpdateRenameResorts(t *testing.T) {
	s := readyProjectStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "Beta", 0)
	require.NoError(t, err)
	proj, err := s.Create(ctx, "Zulu", 0)
	require.NoError(t, err)

	name := "Alpha"
	_, err = s.Update(ctx, proj.ID, UpdateProjectInput{Name: &name})
	require.NoError(t, err)

	active := s.Active()
	require.Equal(t, "Alpha", active[0].Name)
	require.Equal(t, "Beta", active[1].Name)

	// Renaming onto an existing active name fails.
	taken := "beta"
	_, err = s.Update(ctx, proj.ID, UpdateProjectInput{Name: &taken})
	require.ErrorIs(t, err, project.ErrNameTaken)
}

func TestProjectStore_UpdateNotFound(t *testing.T) {
	s := readyProjectStore(t)
	name := "anything"
	_, err := s.Update(context.Background(), "missing", UpdateProjectInput{Name: &name})
	require.ErrorIs(t, err, project.ErrProjectNotFound)
}

func TestProjectStore_DeleteMissingIsNoOp(t *testing.T) {
	s := readyProjectStore(t)
	deleted, err := s.Delete(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestProjectStore_CacheMatchesBackend(t *testing.T) {
	backend := structuredBackends(t)
	fallback, _ := flatBackends(t, nil)
	s := NewProjectStore(backend, fallback, nil, testLogger())
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	a, err := s.Create(ctx, "Alpha", 10)
	require.NoError(t, err)
	_, err = s.Create(ctx, "Beta", 20)
	require.NoError(t, err)
	_, err = s.Archive(ctx, a.ID)
	require.NoError(t, err)

	cached := s.All()
	fresh := NewProjectStore(backend, fallback, nil, testLogger())
	require.NoError(t, fresh.Load(ctx))
	require.Len(t, cached, 2)
	for i := range cached {
		require.Equal(t, fresh.All()[i].ID, cached[i].ID)
		require.Equal(t, fresh.All()[i].Archived, cached[i].Archived)
		require.Equal(t, fresh.All()[i].Name, cached[i].Name)
	}
}

func TestProjectStore_FlatBroadcastReloadsSiblings(t *testing.T) {
	b := bus.New()
	backend, _ := flatBackends(t, b)
	ctx := context.Background()

	first := NewProjectStore(backend, backend, b, testLogger())
	second := NewProjectStore(backend, backend, b, testLogger())
	defer first.Close()
	defer second.Close()
	require.NoError(t, first.Load(ctx))
	require.NoError(t, second.Load(ctx))

	_, err := first.Create(ctx, "Shared", 0)
	require.NoError(t, err)
	require.Len(t, second.Active(), 1)
}

func TestProjectStore_FlatModeWorksEndToEnd(t *testing.T) {
	b := bus.New()
	backend, _ := flatBackends(t, b)
	s := NewProjectStore(backend, backend, b, testLogger())
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))
	require.Equal(t, storage.ModeFlat, s.Mode())

	proj, err := s.Create(ctx, "Flat Only", 0)
	require.NoError(t, err)
	deleted, err := s.Delete(ctx, proj.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	require.Empty(t, s.All())
}
