package session

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid session input")
	ErrSessionNotFound = errors.New("session not found")
	ErrNotReady        = errors.New("session store not ready")
)
