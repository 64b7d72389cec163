package settings

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/expandinAI/particle/internal/flat"
)

// Store persists the local configuration in the flat KV. It keeps a small
// in-memory copy so Extract stays pure and synchronous.
type Store struct {
	kv *flat.Store

	mu     sync.Mutex
	local  Local
	loaded bool
}

// NewStore creates a settings store over the flat KV.
func NewStore(kv *flat.Store) *Store {
	return &Store{kv: kv}
}

// Load reads the configuration, falling back to defaults when nothing has
// been saved yet.
func (s *Store) Load() (Local, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return Local{}, err
	}
	return s.local, nil
}

// Save persists and caches the full configuration.
func (s *Store) Save(local Local) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(local)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.kv.SetKey(flat.KeySettings, string(data)); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	s.local = local
	s.loaded = true
	return nil
}

// Exists reports whether any configuration has ever been saved, without
// materializing defaults.
func (s *Store) Exists() (bool, error) {
	_, ok, err := s.kv.GetKey(flat.KeySettings)
	return ok, err
}

// Extract projects the current configuration into the wire snapshot. It
// never fails: an unloaded store extracts the defaults.
func (s *Store) Extract() Synced {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return Default().Synced
	}
	return s.local.Synced
}

// Apply writes an incoming snapshot into the local configuration and
// reports whether anything actually differed, so callers can skip
// redundant refreshes when a pull returns the state they already have.
// Device-local fields are untouched.
func (s *Store) Apply(synced Synced) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return false, err
	}
	if s.local.Synced.Equal(synced) {
		return false, nil
	}

	updated := s.local
	updated.Synced = synced

	data, err := json.Marshal(updated)
	if err != nil {
		return false, fmt.Errorf("encode settings: %w", err)
	}
	if err := s.kv.SetKey(flat.KeySettings, string(data)); err != nil {
		return false, fmt.Errorf("write settings: %w", err)
	}
	s.local = updated
	return true, nil
}

func (s *Store) loadLocked() error {
	if s.loaded {
		return nil
	}

	value, ok, err := s.kv.GetKey(flat.KeySettings)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	local := Default()
	if ok {
		if err := json.Unmarshal([]byte(value), &local); err != nil {
			return fmt.Errorf("decode settings: %w", err)
		}
	}
	s.local = local
	s.loaded = true
	return nil
}
