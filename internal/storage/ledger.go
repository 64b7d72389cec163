package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/expandinAI/particle/internal/flat"
)

// Ledger is the durable migration record. It lives in the flat KV because
// it must be readable on every load, before the structured backend is even
// probed. Once Completed is true the migration never runs again.
type Ledger struct {
	Completed     bool      `json:"completed"`
	CompletedAt   time.Time `json:"completed_at,omitzero"`
	TotalMigrated int       `json:"total_migrated"`
	TotalErrors   int       `json:"total_errors"`
	DurationMS    int64     `json:"duration_ms"`
	Errors        []string  `json:"errors,omitempty"`
}

// LoadLedger reads the migration ledger. A missing ledger is the zero
// value, meaning no migration has ever run.
func LoadLedger(store *flat.Store) (Ledger, error) {
	value, ok, err := store.GetKey(flat.KeyMigrationLedger)
	if err != nil {
		return Ledger{}, fmt.Errorf("read migration ledger: %w", err)
	}
	if !ok {
		return Ledger{}, nil
	}

	var ledger Ledger
	if err := json.Unmarshal([]byte(value), &ledger); err != nil {
		return Ledger{}, fmt.Errorf("decode migration ledger: %w", err)
	}
	return ledger, nil
}

// SaveLedger persists the migration ledger.
func SaveLedger(store *flat.Store, ledger Ledger) error {
	data, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("encode migration ledger: %w", err)
	}
	if err := store.SetKey(flat.KeyMigrationLedger, string(data)); err != nil {
		return fmt.Errorf("write migration ledger: %w", err)
	}
	return nil
}
