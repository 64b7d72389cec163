// Package flat implements the always-available flat backend: whole-object
// JSON records stored one collection per file in a data directory, plus a
// namespaced key-value file for scalar state.
package flat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/expandinAI/particle/internal/bus"
)

const (
	sessionsFile = "sessions.json"
	projectsFile = "projects.json"
	kvFile       = "kv.json"
)

// Store is the flat backend root. All collection and KV access goes through
// it so that read-modify-write cycles against one file are serialized.
type Store struct {
	dir string
	bus *bus.Bus

	mu sync.Mutex
}

// Open prepares a flat store rooted at dir, creating the directory if
// needed. Writes publish change notifications on b; pass nil to disable
// broadcasting (tests).
func Open(dir string, b *bus.Bus) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create flat store dir: %w", err)
	}
	return &Store{dir: dir, bus: b}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// readCollection loads a collection file into an id-keyed map of raw
// records. A missing file is an empty collection, not an error.
func (s *Store) readCollection(name string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	records := map[string]json.RawMessage{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return records, nil
}

// writeCollection persists a collection atomically via a temp file and
// rename, so a crash mid-write never leaves a truncated collection behind.
func (s *Store) writeCollection(name string, records map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (s *Store) broadcast(topic bus.Topic) {
	if s.bus != nil {
		s.bus.Publish(topic)
	}
}
