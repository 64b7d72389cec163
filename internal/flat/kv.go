package flat

import (
	"encoding/json"
	"fmt"
)

// Key prefixes. Keys written by older releases used the legacy prefix and
// are renamed in place (not copied) to the current one on first read.
const (
	keyPrefix       = "particle:"
	legacyKeyPrefix = "pomo:"
)

// Well-known KV keys.
const (
	KeyMigrationLedger  = "migration-ledger"
	KeySettings         = "settings"
	KeySettingsSyncedAt = "settings-synced-at"
	KeyRecentTasks      = "recent-tasks"
	KeyInitialUploadAt  = "initial-upload-at"
)

// GetKey returns the value stored under key, reporting whether it exists.
// A legacy-prefixed entry is migrated to the current prefix before being
// returned.
func (s *Store) GetKey(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kv, err := s.readCollection(kvFile)
	if err != nil {
		return "", false, err
	}

	if raw, ok := kv[keyPrefix+key]; ok {
		return decodeKVValue(raw)
	}

	// Rename, not copy, so there is no duplication to reconcile later.
	if raw, ok := kv[legacyKeyPrefix+key]; ok {
		kv[keyPrefix+key] = raw
		delete(kv, legacyKeyPrefix+key)
		if err := s.writeCollection(kvFile, kv); err != nil {
			return "", false, fmt.Errorf("migrate legacy key %q: %w", key, err)
		}
		return decodeKVValue(raw)
	}

	return "", false, nil
}

// SetKey stores value under key with the current prefix.
func (s *Store) SetKey(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kv, err := s.readCollection(kvFile)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %q: %w", key, err)
	}
	kv[keyPrefix+key] = raw
	delete(kv, legacyKeyPrefix+key)

	return s.writeCollection(kvFile, kv)
}

// DeleteKey removes key under both the current and legacy prefixes.
func (s *Store) DeleteKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kv, err := s.readCollection(kvFile)
	if err != nil {
		return err
	}
	delete(kv, keyPrefix+key)
	delete(kv, legacyKeyPrefix+key)

	return s.writeCollection(kvFile, kv)
}

func decodeKVValue(raw json.RawMessage) (string, bool, error) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false, fmt.Errorf("decode kv value: %w", err)
	}
	return value, true, nil
}
