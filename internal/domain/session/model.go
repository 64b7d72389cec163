package session

import "time"

// Type classifies a completed timer interval.
type Type string

const (
	TypeWork       Type = "work"
	TypeShortBreak Type = "shortBreak"
	TypeLongBreak  Type = "longBreak"
)

// Valid reports whether t is one of the known session types.
func (t Type) Valid() bool {
	switch t {
	case TypeWork, TypeShortBreak, TypeLongBreak:
		return true
	}
	return false
}

// Session is one completed work or break interval ("particle").
// Core fields (ID, Type, Duration, CompletedAt) are write-once; Task and
// ProjectID may be edited afterwards.
type Session struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Duration    int       `json:"duration"` // elapsed seconds
	CompletedAt time.Time `json:"completed_at"`
	Task        string    `json:"task,omitempty"`
	ProjectID   *string   `json:"project_id,omitempty"`

	// Planning metadata consumed by the rhythm/estimation subsystem.
	EstimatedPomodoros *int    `json:"estimated_pomodoros,omitempty"`
	PresetID           *string `json:"preset_id,omitempty"`
	OverflowDuration   *int    `json:"overflow_duration,omitempty"`
	EstimatedDuration  *int    `json:"estimated_duration,omitempty"`

	// DeletedAt marks a soft-deleted row. Soft-deleted sessions are excluded
	// from all reads but retained for sync reconciliation.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the session is soft-deleted.
func (s *Session) Deleted() bool {
	return s.DeletedAt != nil
}
