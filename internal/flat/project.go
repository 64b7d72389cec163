package flat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/expandinAI/particle/internal/bus"
	"github.com/expandinAI/particle/internal/domain/project"
	"github.com/expandinAI/particle/internal/repository"
)

// ProjectRepository implements repository.ProjectRepository over the flat
// store. Deletes are hard, matching the legacy flat-storage behavior.
type ProjectRepository struct {
	store *Store
}

// NewProjectRepository creates a flat-backed project repository.
func NewProjectRepository(store *Store) *ProjectRepository {
	return &ProjectRepository{store: store}
}

// Create inserts a new project.
func (r *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	return r.write(proj, func(records map[string]json.RawMessage) error {
		if _, ok := records[proj.ID]; ok {
			return repository.ErrDuplicate
		}
		return nil
	})
}

// Upsert writes a project regardless of whether it already exists.
func (r *ProjectRepository) Upsert(ctx context.Context, proj *project.Project) error {
	return r.write(proj, nil)
}

// Update overwrites an existing project.
func (r *ProjectRepository) Update(ctx context.Context, proj *project.Project) error {
	return r.write(proj, func(records map[string]json.RawMessage) error {
		if _, ok := records[proj.ID]; !ok {
			return repository.ErrNotFound
		}
		return nil
	})
}

// Get returns a project by id.
func (r *ProjectRepository) Get(ctx context.Context, id string) (*project.Project, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	records, err := r.store.readCollection(projectsFile)
	if err != nil {
		return nil, err
	}
	raw, ok := records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	var proj project.Project
	if err := json.Unmarshal(raw, &proj); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", id, err)
	}
	return &proj, nil
}

// Delete removes a project from the collection.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	records, err := r.store.readCollection(projectsFile)
	if err != nil {
		r.store.mu.Unlock()
		return err
	}
	if _, ok := records[id]; !ok {
		r.store.mu.Unlock()
		return repository.ErrNotFound
	}
	delete(records, id)
	err = r.store.writeCollection(projectsFile, records)
	r.store.mu.Unlock()
	if err != nil {
		return err
	}

	r.store.broadcast(bus.ProjectsChanged)
	return nil
}

// List returns all projects sorted by name, case-insensitively.
func (r *ProjectRepository) List(ctx context.Context) ([]project.Project, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	records, err := r.store.readCollection(projectsFile)
	if err != nil {
		return nil, err
	}

	projects := make([]project.Project, 0, len(records))
	for id, raw := range records {
		var proj project.Project
		if err := json.Unmarshal(raw, &proj); err != nil {
			continue
		}
		if proj.ID == "" {
			proj.ID = id
		}
		projects = append(projects, proj)
	}

	sort.Slice(projects, func(i, j int) bool {
		return strings.ToLower(projects[i].Name) < strings.ToLower(projects[j].Name)
	})
	return projects, nil
}

func (r *ProjectRepository) write(proj *project.Project, check func(map[string]json.RawMessage) error) error {
	if proj.ID == "" {
		return repository.ErrInvalidInput
	}

	r.store.mu.Lock()
	records, err := r.store.readCollection(projectsFile)
	if err != nil {
		r.store.mu.Unlock()
		return err
	}
	if check != nil {
		if err := check(records); err != nil {
			r.store.mu.Unlock()
			return err
		}
	}

	raw, err := json.Marshal(proj)
	if err != nil {
		r.store.mu.Unlock()
		return fmt.Errorf("encode project %s: %w", proj.ID, err)
	}
	records[proj.ID] = raw
	err = r.store.writeCollection(projectsFile, records)
	r.store.mu.Unlock()
	if err != nil {
		return err
	}

	r.store.broadcast(bus.ProjectsChanged)
	return nil
}
