package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/expandinAI/particle/internal/bus"
	"github.com/expandinAI/particle/internal/domain/session"
	"github.com/expandinAI/particle/internal/flat"
	"github.com/expandinAI/particle/internal/repository"
	"github.com/expandinAI/particle/internal/storage"
)

// Callers serialize writes against one id; the store does not queue racing
// writes itself. The mutex protects only cache and state, never a backend
// call, so the flat backend's synchronous broadcast can reload the cache
// without deadlocking the writer.
type SessionStore struct {
	backend  storage.Backends
	fallback storage.Backends
	bus      *bus.Bus
	kv       *flat.Store
	logger   *slog.Logger

	mu    sync.Mutex
	state State
	cache []session.Session
	unsub func()
}

// CreateSessionInput describes a completed interval to record.
type CreateSessionInput struct {
	Type               session.Type
	Duration           int
	CompletedAt        time.Time // zero means now
	Task               string
	ProjectID          *string
	EstimatedPomodoros *int
	PresetID           *string
	OverflowDuration   *int
	EstimatedDuration  *int
}

// UpdateSessionInput carries the user-editable fields. Nil means leave
// unchanged; ClearProject detaches the session from its project.
type UpdateSessionInput struct {
	Task         *string
	ProjectID    *string
	ClearProject bool
}

// NewSessionStore creates a session store over the resolved backend.
// fallback must be the flat backends; kv may be nil to skip recent-task
// tracking.
func NewSessionStore(backend, fallback storage.Backends, b *bus.Bus, kv *flat.Store, logger *slog.Logger) *SessionStore {
	s := &SessionStore{
		backend:  backend,
		fallback: fallback,
		bus:      b,
		kv:       kv,
		logger:   logger,
		state:    StateUninitialized,
	}
	if backend.Mode == storage.ModeFlat && b != nil {
		s.unsub = b.Subscribe(bus.SessionsChanged, s.onBroadcast)
	}
	return s
}

// Close releases the store's broadcast subscription.
func (s *SessionStore) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

// State returns the store lifecycle state.
func (s *SessionStore) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the backend currently serving writes.
func (s *SessionStore) Mode() storage.Mode {
	return s.backend.Mode
}

// Load fetches all non-deleted sessions and replaces the cache wholesale.
// If the structured backend fails, the store re-resolves to flat and
// retries once before surfacing the error.
func (s *SessionStore) Load(ctx context.Context) error {
	s.setState(StateLoading)

	sessions, err := s.backend.Sessions.List(ctx)
	if err != nil && s.backend.Mode == storage.ModeStructured {
		s.logger.Warn("session load failed on structured backend, retrying on flat", "error", err)
		s.backend = s.fallback
		if s.bus != nil && s.unsub == nil {
			s.unsub = s.bus.Subscribe(bus.SessionsChanged, s.onBroadcast)
		}
		sessions, err = s.backend.Sessions.List(ctx)
	}
	if err != nil {
		s.setState(StateError)
		return fmt.Errorf("loading sessions: %w", err)
	}

	s.mu.Lock()
	s.cache = sessions
	s.state = StateReady
	s.mu.Unlock()
	return nil
}

// Refresh reloads the cache from the active backend.
func (s *SessionStore) Refresh(ctx context.Context) error {
	sessions, err := s.backend.Sessions.List(ctx)
	if err != nil {
		return fmt.Errorf("refreshing sessions: %w", err)
	}
	s.mu.Lock()
	s.cache = sessions
	s.mu.Unlock()
	return nil
}

// Create validates and persists a new session, then merges the canonical
// entity into the cache.
func (s *SessionStore) Create(ctx context.Context, input CreateSessionInput) (*session.Session, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	if !input.Type.Valid() || input.Duration < 0 {
		return nil, session.ErrInvalidInput
	}

	completedAt := input.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	sess := &session.Session{
		ID:                 uuid.NewString(),
		Type:               input.Type,
		Duration:           input.Duration,
		CompletedAt:        completedAt,
		Task:               input.Task,
		ProjectID:          input.ProjectID,
		EstimatedPomodoros: input.EstimatedPomodoros,
		PresetID:           input.PresetID,
		OverflowDuration:   input.OverflowDuration,
		EstimatedDuration:  input.EstimatedDuration,
	}

	if err := s.backend.Sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.mergeCache(*sess)
	if sess.Type == session.TypeWork && sess.Task != "" {
		s.recordRecentTask(sess.Task)
	}
	return sess, nil
}

// Update edits the task text or project link of an existing session. A
// missing id returns ErrSessionNotFound and leaves the cache untouched.
func (s *SessionStore) Update(ctx context.Context, id string, input UpdateSessionInput) (*session.Session, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	current := s.GetByID(id)
	if current == nil {
		return nil, session.ErrSessionNotFound
	}

	updated := *current
	if input.Task != nil {
		updated.Task = *input.Task
	}
	if input.ClearProject {
		updated.ProjectID = nil
	} else if input.ProjectID != nil {
		updated.ProjectID = input.ProjectID
	}

	if err := s.backend.Sessions.Update(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("updating session: %w", err)
	}

	s.mergeCache(updated)
	return &updated, nil
}

// Delete removes a session: soft in the structured backend, hard in the
// flat one. Either way the cache entry goes away immediately so UI lists
// shrink. Returns false (not an error) when the id doesn't exist.
func (s *SessionStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.requireReady(); err != nil {
		return false, err
	}

	if err := s.backend.Sessions.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("deleting session: %w", err)
	}

	s.dropFromCache(id)
	return true, nil
}

// GetByID is a pure cache read.
func (s *SessionStore) GetByID(id string) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cache {
		if s.cache[i].ID == id {
			sess := s.cache[i]
			return &sess
		}
	}
	return nil
}

// All returns every cached session ordered by completion time.
func (s *SessionStore) All() []session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.Session, len(s.cache))
	copy(out, s.cache)
	return out
}

// ForDay returns sessions completed on the given calendar day, in the
// day's location.
func (s *SessionStore) ForDay(day time.Time) []session.Session {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return s.ForRange(start, start.AddDate(0, 0, 1))
}

// ForRange returns sessions with from <= CompletedAt < to.
func (s *SessionStore) ForRange(from, to time.Time) []session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.Session
	for _, sess := range s.cache {
		if !sess.CompletedAt.Before(from) && sess.CompletedAt.Before(to) {
			out = append(out, sess)
		}
	}
	return out
}

// RecentTasks returns the most recently used work task labels, newest
// first.
func (s *SessionStore) RecentTasks() []string {
	if s.kv == nil {
		return nil
	}
	value, ok, err := s.kv.GetKey(flat.KeyRecentTasks)
	if err != nil || !ok {
		return nil
	}
	var tasks []string
	if err := json.Unmarshal([]byte(value), &tasks); err != nil {
		return nil
	}
	return tasks
}

const maxRecentTasks = 10

func (s *SessionStore) recordRecentTask(task string) {
	if s.kv == nil {
		return
	}

	tasks := []string{task}
	for _, existing := range s.RecentTasks() {
		if strings.EqualFold(existing, task) {
			continue
		}
		tasks = append(tasks, existing)
		if len(tasks) == maxRecentTasks {
			break
		}
	}

	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	if err := s.kv.SetKey(flat.KeyRecentTasks, string(data)); err != nil {
		s.logger.Warn("failed to record recent task", "error", err)
	}
}

func (s *SessionStore) onBroadcast() {
	if s.State() != StateReady {
		return
	}
	if err := s.Refresh(context.Background()); err != nil {
		s.logger.Warn("session cache reload after broadcast failed", "error", err)
	}
}

func (s *SessionStore) requireReady() error {
	if s.State() != StateReady {
		return session.ErrNotReady
	}
	return nil
}

func (s *SessionStore) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// mergeCache inserts or replaces by id, keeping completion-time order. The
// broadcast reload may already have delivered the row, so this must never
// duplicate.
func (s *SessionStore) mergeCache(sess session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cache {
		if s.cache[i].ID == sess.ID {
			s.cache[i] = sess
			return
		}
	}

	pos := len(s.cache)
	for i := range s.cache {
		if s.cache[i].CompletedAt.After(sess.CompletedAt) {
			pos = i
			break
		}
	}
	s.cache = append(s.cache, session.Session{})
	copy(s.cache[pos+1:], s.cache[pos:])
	s.cache[pos] = sess
}

func (s *SessionStore) dropFromCache(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cache {
		if s.cache[i].ID == id {
			s.cache = append(s.cache[:i], s.cache[i+1:]...)
			return
		}
	}
}
