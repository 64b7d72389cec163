// Package storage selects the authoritative backend for a process and
// migrates legacy flat-store data into the structured backend the first
// time it becomes available.
package storage

import (
	"log/slog"
	"sync"

	"github.com/expandinAI/particle/internal/flat"
	"github.com/expandinAI/particle/internal/repository"
	"github.com/expandinAI/particle/internal/sqlite"
)

// Mode identifies which backend is authoritative for this process.
type Mode string

const (
	ModeStructured Mode = "structured"
	ModeFlat       Mode = "flat"
)

// Backends bundles the repositories for one storage mode.
type Backends struct {
	Mode     Mode
	DB       *sqlite.DB // nil when Mode is flat
	Sessions repository.SessionRepository
	Projects repository.ProjectRepository
}

// Resolver probes the structured backend once per process and memoizes the
// result. Probing never fails the caller: any error during the probe means
// the flat backend stays authoritative.
type Resolver struct {
	dbPath    string
	flatStore *flat.Store
	logger    *slog.Logger

	once     sync.Once
	resolved Backends
}

// NewResolver creates a resolver. dbPath is the structured database
// location; an empty path disables the structured backend outright.
func NewResolver(dbPath string, flatStore *flat.Store, logger *slog.Logger) *Resolver {
	return &Resolver{dbPath: dbPath, flatStore: flatStore, logger: logger}
}

// Resolve returns the backends for the resolved storage mode. The probe
// runs on the first call only; every later call returns the same answer.
func (r *Resolver) Resolve() Backends {
	r.once.Do(func() {
		r.resolved = r.probe()
	})
	return r.resolved
}

// Flat returns flat-backend repositories regardless of the resolved mode.
// Entity stores use these for the one-shot fallback retry, and the
// migration runner reads legacy data through them.
func (r *Resolver) Flat() Backends {
	return Backends{
		Mode:     ModeFlat,
		Sessions: flat.NewSessionRepository(r.flatStore),
		Projects: flat.NewProjectRepository(r.flatStore),
	}
}

func (r *Resolver) probe() Backends {
	if r.dbPath == "" {
		r.logger.Info("structured backend disabled, using flat storage")
		return r.Flat()
	}

	db, err := sqlite.New(r.dbPath)
	if err != nil {
		r.logger.Warn("structured backend unavailable, falling back to flat storage", "error", err)
		return r.Flat()
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		r.logger.Warn("structured backend schema init failed, falling back to flat storage", "error", err)
		return r.Flat()
	}

	return Backends{
		Mode:     ModeStructured,
		DB:       db,
		Sessions: sqlite.NewSessionRepository(db),
		Projects: sqlite.NewProjectRepository(db),
	}
}
