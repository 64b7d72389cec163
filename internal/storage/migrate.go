package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/expandinAI/particle/internal/flat"
)

// ItemResult records the outcome of migrating a single legacy row.
type ItemResult struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Error      string `json:"error,omitempty"`
}

// Summary aggregates one migration pass.
type Summary struct {
	TotalMigrated int
	TotalErrors   int
	Duration      time.Duration
	Results       []ItemResult
}

// Runner copies legacy flat-store rows into the structured backend, once.
// A corrupt row is recorded and skipped, never aborting the batch, and the
// ledger is marked complete even after partial failure: migrations are not
// retried automatically, so a permanently bad row must not wedge startup.
type Runner struct {
	flatStore *flat.Store
	source    Backends
	target    Backends
	logger    *slog.Logger
}

// NewRunner creates a migration runner copying from the flat backend into
// target. Target must be the resolved structured backend.
func NewRunner(flatStore *flat.Store, resolver *Resolver, logger *slog.Logger) *Runner {
	return &Runner{
		flatStore: flatStore,
		source:    resolver.Flat(),
		target:    resolver.Resolve(),
		logger:    logger,
	}
}

// HasPendingMigrations reports whether a migration pass should run. It is
// false when the ledger is already complete, and false when the resolved
// mode is flat (there is no structured backend to migrate into).
func (r *Runner) HasPendingMigrations() (bool, error) {
	if r.target.Mode != ModeStructured {
		return false, nil
	}
	ledger, err := LoadLedger(r.flatStore)
	if err != nil {
		return false, err
	}
	return !ledger.Completed, nil
}

// RunMigrations performs one migration pass and records the ledger.
// Re-running before the ledger is complete cannot create duplicates: rows
// are written with their legacy ids via upsert, so re-insertion overwrites.
func (r *Runner) RunMigrations(ctx context.Context) (*Summary, error) {
	pending, err := r.HasPendingMigrations()
	if err != nil {
		return nil, err
	}
	if !pending {
		return &Summary{}, nil
	}

	start := time.Now()
	summary := &Summary{}

	r.migrateProjects(ctx, summary)
	r.migrateSessions(ctx, summary)

	summary.Duration = time.Since(start)

	ledger := Ledger{
		Completed:     true,
		CompletedAt:   time.Now().UTC(),
		TotalMigrated: summary.TotalMigrated,
		TotalErrors:   summary.TotalErrors,
		DurationMS:    summary.Duration.Milliseconds(),
	}
	for _, res := range summary.Results {
		if res.Error != "" {
			ledger.Errors = append(ledger.Errors, fmt.Sprintf("%s/%s: %s", res.Collection, res.ID, res.Error))
		}
	}
	if err := SaveLedger(r.flatStore, ledger); err != nil {
		return summary, err
	}

	r.logger.Info("migration complete",
		"migrated", summary.TotalMigrated,
		"errors", summary.TotalErrors,
		"duration", summary.Duration,
	)
	return summary, nil
}

func (r *Runner) migrateProjects(ctx context.Context, summary *Summary) {
	projects, err := r.source.Projects.List(ctx)
	if err != nil {
		r.record(summary, "projects", "*", err)
		return
	}
	for i := range projects {
		proj := projects[i]
		err := r.target.Projects.Upsert(ctx, &proj)
		r.record(summary, "projects", proj.ID, err)
	}
}

func (r *Runner) migrateSessions(ctx context.Context, summary *Summary) {
	sessions, err := r.source.Sessions.List(ctx)
	if err != nil {
		r.record(summary, "sessions", "*", err)
		return
	}
	for i := range sessions {
		sess := sessions[i]
		err := r.target.Sessions.Upsert(ctx, &sess)
		r.record(summary, "sessions", sess.ID, err)
	}
}

func (r *Runner) record(summary *Summary, collection, id string, err error) {
	result := ItemResult{Collection: collection, ID: id}
	if err != nil {
		result.Error = err.Error()
		summary.TotalErrors++
		r.logger.Warn("failed to migrate row", "collection", collection, "id", id, "error", err)
	} else {
		summary.TotalMigrated++
	}
	summary.Results = append(summary.Results, result)
}
