package config

import "sync/atomic"

// Store holds the live operator settings behind an atomic pointer so that
// the monitor loop and ramp goroutines each read a consistent snapshot.
// Cross-tick staleness is fine; readers pick up a replaced snapshot on
// their next access.
type Store struct {
	current atomic.Pointer[Settings]
}

// NewStore creates a Store seeded with the given settings.
func NewStore(s *Settings) *Store {
	st := &Store{}
	st.current.Store(s)
	return st
}

// Snapshot returns the current settings snapshot. Callers must treat the
// returned value as read-only.
func (st *Store) Snapshot() *Settings {
	return st.current.Load()
}

// Replace swaps in a new settings snapshot.
func (st *Store) Replace(s *Settings) {
	st.current.Store(s)
}
