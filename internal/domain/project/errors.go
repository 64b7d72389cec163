package project

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid project input")
	ErrProjectNotFound = errors.New("project not found")
	// ErrNameTaken is returned when an active project already uses the name,
	// compared case-insensitively. Archived projects don't reserve names.
	ErrNameTaken = errors.New("project name already in use")
	ErrNotReady  = errors.New("project store not ready")
)
