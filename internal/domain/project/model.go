package project

import "time"

// Project groups work sessions under a user-defined label.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Brightness is a display weight used by the UI; it carries no meaning
	// for storage or sync.
	Brightness int       `json:"brightness"`
	Archived   bool      `json:"archived"`
	CreatedAt  time.Time `json:"created_at"`

	// DeletedAt marks a soft-deleted row in the structured backend. The flat
	// backend deletes hard and never sets it.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Active reports whether the project is live (not archived, not deleted).
func (p *Project) Active() bool {
	return !p.Archived && p.DeletedAt == nil
}
