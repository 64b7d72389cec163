package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/expandinAI/particle/internal/bus"
	"github.com/expandinAI/particle/internal/domain/project"
	"github.com/expandinAI/particle/internal/repository"
	"github.com/expandinAI/particle/internal/storage"
)

// ProjectStore is the unified entity store for projects. Same contract as
// SessionStore, plus the archive/restore operations and the active-name
// uniqueness invariant.
type ProjectStore struct {
	backend  storage.Backends
	fallback storage.Backends
	bus      *bus.Bus
	logger   *slog.Logger

	mu    sync.Mutex
	state State
	cache []project.Project
	unsub func()
}

// UpdateProjectInput carries the editable project fields; nil leaves a
// field unchanged.
type UpdateProjectInput struct {
	Name       *string
	Brightness *int
}

// NewProjectStore creates a project store over the resolved backend.
func NewProjectStore(backend, fallback storage.Backends, b *bus.Bus, logger *slog.Logger) *ProjectStore {
	s := &ProjectStore{
		backend:  backend,
		fallback: fallback,
		bus:      b,
		logger:   logger,
		state:    StateUninitialized,
	}
	if backend.Mode == storage.ModeFlat && b != nil {
		s.unsub = b.Subscribe(bus.ProjectsChanged, s.onBroadcast)
	}
	return s
}

// Close releases the store's broadcast subscription.
func (s *ProjectStore) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

// State returns the store lifecycle state.
func (s *ProjectStore) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the backend currently serving writes.
func (s *ProjectStore) Mode() storage.Mode {
	return s.backend.Mode
}

// Load fetches all non-deleted projects and replaces the cache wholesale,
// with the same one-shot flat fallback as the session store.
func (s *ProjectStore) Load(ctx context.Context) error {
	s.setState(StateLoading)

	projects, err := s.backend.Projects.List(ctx)
	if err != nil && s.backend.Mode == storage.ModeStructured {
		s.logger.Warn("project load failed on structured backend, retrying on flat", "error", err)
		s.backend = s.fallback
		if s.bus != nil && s.unsub == nil {
			s.unsub = s.bus.Subscribe(bus.ProjectsChanged, s.onBroadcast)
		}
		projects, err = s.backend.Projects.List(ctx)
	}
	if err != nil {
		s.setState(StateError)
		return fmt.Errorf("loading projects: %w", err)
	}

	s.mu.Lock()
	s.cache = projects
	s.sortCacheLocked()
	s.state = StateReady
	s.mu.Unlock()
	return nil
}

// Refresh reloads the cache from the active backend.
func (s *ProjectStore) Refresh(ctx context.Context) error {
	projects, err := s.backend.Projects.List(ctx)
	if err != nil {
		return fmt.Errorf("refreshing projects: %w", err)
	}
	s.mu.Lock()
	s.cache = projects
	s.sortCacheLocked()
	s.mu.Unlock()
	return nil
}

// Create validates the name against active projects and persists a new
// project. Archived projects don't reserve their names.
func (s *ProjectStore) Create(ctx context.Context, name string, brightness int) (*project.Project, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, project.ErrInvalidInput
	}
	if s.nameTaken(name, "") {
		return nil, project.ErrNameTaken
	}

	proj := &project.Project{
		ID:         uuid.NewString(),
		Name:       name,
		Brightness: brightness,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.backend.Projects.Create(ctx, proj); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	s.mergeCache(*proj)
	return proj, nil
}

// Update renames a project or adjusts its brightness. Renames re-check the
// uniqueness invariant and re-sort the cache.
func (s *ProjectStore) Update(ctx context.Context, id string, input UpdateProjectInput) (*project.Project, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	current := s.GetByID(id)
	if current == nil {
		return nil, project.ErrProjectNotFound
	}

	updated := *current
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, project.ErrInvalidInput
		}
		if !updated.Archived && s.nameTaken(name, id) {
			return nil, project.ErrNameTaken
		}
		updated.Name = name
	}
	if input.Brightness != nil {
		updated.Brightness = *input.Brightness
	}

	if err := s.writeThrough(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Archive hides a project from active lists while keeping it on record.
func (s *ProjectStore) Archive(ctx context.Context, id string) (*project.Project, error) {
	return s.setArchived(ctx, id, true)
}

// Restore un-archives a project. Restoring fails if an active project has
// claimed the name in the meantime.
func (s *ProjectStore) Restore(ctx context.Context, id string) (*project.Project, error) {
	return s.setArchived(ctx, id, false)
}

// Delete removes a project: soft in the structured backend, hard in the
// flat one. Returns false (not an error) when the id doesn't exist.
func (s *ProjectStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.requireReady(); err != nil {
		return false, err
	}

	if err := s.backend.Projects.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("deleting project: %w", err)
	}

	s.dropFromCache(id)
	return true, nil
}

// GetByID is a pure cache read.
func (s *ProjectStore) GetByID(id string) *project.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cache {
		if s.cache[i].ID == id {
			proj := s.cache[i]
			return &proj
		}
	}
	return nil
}

// All returns every cached project, archived included, sorted by name.
func (s *ProjectStore) All() []project.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]project.Project, len(s.cache))
	copy(out, s.cache)
	return out
}

// Active returns non-archived projects sorted by name.
func (s *ProjectStore) Active() []project.Project {
	return s.filtered(false)
}

// Archived returns archived projects sorted by name.
func (s *ProjectStore) Archived() []project.Project {
	return s.filtered(true)
}

func (s *ProjectStore) filtered(archived bool) []project.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []project.Project
	for _, proj := range s.cache {
		if proj.Archived == archived {
			out = append(out, proj)
		}
	}
	return out
}

func (s *ProjectStore) setArchived(ctx context.Context, id string, archived bool) (*project.Project, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	current := s.GetByID(id)
	if current == nil {
		return nil, project.ErrProjectNotFound
	}
	if current.Archived == archived {
		return current, nil
	}
	if !archived && s.nameTaken(current.Name, id) {
		return nil, project.ErrNameTaken
	}

	updated := *current
	updated.Archived = archived
	if err := s.writeThrough(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *ProjectStore) writeThrough(ctx context.Context, proj *project.Project) error {
	if err := s.backend.Projects.Update(ctx, proj); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return project.ErrProjectNotFound
		}
		return fmt.Errorf("updating project: %w", err)
	}
	s.mergeCache(*proj)
	return nil
}

// nameTaken reports whether an active project other than excludeID already
// uses the name, case-insensitively.
func (s *ProjectStore) nameTaken(name, excludeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, proj := range s.cache {
		if proj.ID == excludeID || proj.Archived {
			continue
		}
		if strings.EqualFold(proj.Name, name) {
			return true
		}
	}
	return false
}

func (s *ProjectStore) onBroadcast() {
	if s.State() != StateReady {
		return
	}
	if err := s.Refresh(context.Background()); err != nil {
		s.logger.Warn("project cache reload after broadcast failed", "error", err)
	}
}

func (s *ProjectStore) requireReady() error {
	if s.State() != StateReady {
		return project.ErrNotReady
	}
	return nil
}

func (s *ProjectStore) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *ProjectStore) mergeCache(proj project.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.cache {
		if s.cache[i].ID == proj.ID {
			s.cache[i] = proj
			replaced = true
			break
		}
	}
	if !replaced {
		s.cache = append(s.cache, proj)
	}
	s.sortCacheLocked()
}

func (s *ProjectStore) dropFromCache(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cache {
		if s.cache[i].ID == id {
			s.cache = append(s.cache[:i], s.cache[i+1:]...)
			return
		}
	}
}

func (s *ProjectStore) sortCacheLocked() {
	sort.SliceStable(s.cache, func(i, j int) bool {
		return strings.ToLower(s.cache[i].Name) < strings.ToLower(s.cache[j].Name)
	})
}
