package flat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/expandinAI/particle/internal/bus"
	"github.com/expandinAI/particle/internal/domain/session"
	"github.com/expandinAI/particle/internal/repository"
)

// SessionRepository implements repository.SessionRepository over the flat
// store. Deletes are hard: the flat backend has no soft-delete column, the
// record is simply removed from the collection file.
type SessionRepository struct {
	store *Store
}

// NewSessionRepository creates a flat-backed session repository.
func NewSessionRepository(store *Store) *SessionRepository {
	return &SessionRepository{store: store}
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	return r.write(sess, func(records map[string]json.RawMessage) error {
		if _, ok := records[sess.ID]; ok {
			return repository.ErrDuplicate
		}
		return nil
	})
}

// Upsert writes a session regardless of whether it already exists.
func (r *SessionRepository) Upsert(ctx context.Context, sess *session.Session) error {
	return r.write(sess, nil)
}

// Update overwrites an existing session.
func (r *SessionRepository) Update(ctx context.Context, sess *session.Session) error {
	return r.write(sess, func(records map[string]json.RawMessage) error {
		if _, ok := records[sess.ID]; !ok {
			return repository.ErrNotFound
		}
		return nil
	})
}

// Get returns a session by id.
func (r *SessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	records, err := r.store.readCollection(sessionsFile)
	if err != nil {
		return nil, err
	}
	raw, ok := records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Delete removes a session from the collection.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	records, err := r.store.readCollection(sessionsFile)
	if err != nil {
		r.store.mu.Unlock()
		return err
	}
	if _, ok := records[id]; !ok {
		r.store.mu.Unlock()
		return repository.ErrNotFound
	}
	delete(records, id)
	err = r.store.writeCollection(sessionsFile, records)
	r.store.mu.Unlock()
	if err != nil {
		return err
	}

	r.store.broadcast(bus.SessionsChanged)
	return nil
}

// List returns all sessions ordered by completion time, oldest first.
// Corrupt records are skipped rather than failing the whole read.
func (r *SessionRepository) List(ctx context.Context) ([]session.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	records, err := r.store.readCollection(sessionsFile)
	if err != nil {
		return nil, err
	}

	sessions := make([]session.Session, 0, len(records))
	for id, raw := range records {
		var sess session.Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			continue
		}
		if sess.ID == "" {
			sess.ID = id
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CompletedAt.Before(sessions[j].CompletedAt)
	})
	return sessions, nil
}

func (r *SessionRepository) write(sess *session.Session, check func(map[string]json.RawMessage) error) error {
	if sess.ID == "" {
		return repository.ErrInvalidInput
	}

	r.store.mu.Lock()
	records, err := r.store.readCollection(sessionsFile)
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

	raw, err := json.Marshal(sess)
	if err != nil {
		r.store.mu.Unlock()
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	records[sess.ID] = raw
	err = r.store.writeCollection(sessionsFile, records)
	r.store.mu.Unlock()
	if err != nil {
		return err
	}

	r.store.broadcast(bus.SessionsChanged)
	return nil
}
