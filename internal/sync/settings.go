// Package sync moves local state across the cloud boundary: the settings
// push/pull engine and the one-time initial upload of existing data.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/expandinAI/particle/internal/bus"
	"github.com/expandinAI/particle/internal/flat"
	"github.com/expandinAI/particle/internal/remote"
	"github.com/expandinAI/particle/internal/settings"
)

// SettingsEngine pushes and pulls the synced settings snapshot. Conflict
// resolution is last-writer-wins: a pull overwrites local synced fields with
// whatever the server holds, and a push overwrites the server row. Offline
// edits made on two devices can therefore shadow each other; the server
// timestamp recorded per sync makes the loss observable but not recoverable.
type SettingsEngine struct {
	store  *settings.Store
	client remote.Client
	kv     *flat.Store
	bus    *bus.Bus
	logger *slog.Logger
}

// NewSettingsEngine creates the engine. The bus may be nil when no one
// needs change notifications.
func NewSettingsEngine(store *settings.Store, client remote.Client, kv *flat.Store, b *bus.Bus, logger *slog.Logger) *SettingsEngine {
	return &SettingsEngine{store: store, client: client, kv: kv, bus: b, logger: logger}
}

// Push extracts the synced snapshot and replaces the server row with it.
func (e *SettingsEngine) Push(ctx context.Context, userID string) error {
	synced := e.store.Extract()
	updatedAt, err := e.client.UpsertSettings(ctx, userID, synced)
	if err != nil {
		return fmt.Errorf("pushing settings: %w", err)
	}
	e.recordSyncedAt(updatedAt)
	e.logger.Info("settings pushed", "user_id", userID, "updated_at", updatedAt)
	return nil
}

// Pull fetches the server row and applies it locally, reporting whether
// anything changed. A user who has never synced settings yields (false, nil)
// and leaves local state alone.
func (e *SettingsEngine) Pull(ctx context.Context, userID string) (bool, error) {
	row, err := e.client.FetchSettings(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("pulling settings: %w", err)
	}
	if row == nil {
		return false, nil
	}

	changed, err := e.store.Apply(row.Settings)
	if err != nil {
		return false, fmt.Errorf("applying pulled settings: %w", err)
	}
	e.recordSyncedAt(row.UpdatedAt)

	if changed && e.bus != nil {
		e.bus.Publish(bus.SettingsChanged)
	}
	e.logger.Info("settings pulled", "user_id", userID, "changed", changed)
	return changed, nil
}

// LastSyncedAt returns the server timestamp of the most recent push or
// pull, or the zero time when settings have never synced.
func (e *SettingsEngine) LastSyncedAt() time.Time {
	value, ok, err := e.kv.GetKey(flat.KeySettingsSyncedAt)
	if err != nil || !ok {
		return time.Time{}
	}
	stamp, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return stamp
}

func (e *SettingsEngine) recordSyncedAt(stamp time.Time) {
	if err := e.kv.SetKey(flat.KeySettingsSyncedAt, stamp.UTC().Format(time.RFC3339Nano)); err != nil {
		e.logger.Warn("recording settings sync time failed", "error", err)
	}
}
