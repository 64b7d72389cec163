// Package store provides the unified entity stores: an in-memory cache plus
// a CRUD façade dispatching to whichever backend the storage resolver
// selected. Reads are pure cache lookups; the backend is the durability
// layer for writes. Cache mutation happens only after the backend confirms
// a write, so cache and backend cannot diverge on the happy path.
package store

// State tracks an entity store's lifecycle. Writes are only accepted in
// StateReady.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	// StateError means the initial load failed on the selected backend and
	// the one-shot flat fallback retry failed too.
	StateError State = "error"
)
