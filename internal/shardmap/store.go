package shardmap

import "sync/atomic"

// Store publishes Map snapshots atomically. Readers call Load and get a
// cheap, immutable handle; the coordinator is the sole writer and calls
// Publish with a brand new Map built from the old one. The entire map is
// replaced by snapshot; concurrent readers must either see the old map or
// the new map, never a mix.
type Store struct {
	ptr atomic.Pointer[Map]
}

// NewStore creates a Store seeded with an empty Map.
func NewStore() *Store {
	s := &Store{}
	s.ptr.Store(New())
	return s
}

// Load returns the current Map snapshot. Lock-free, safe to call from the
// hottest routing path.
func (s *Store) Load() *Map {
	return s.ptr.Load()
}

// Publish atomically replaces the current snapshot.
func (s *Store) Publish(m *Map) {
	s.ptr.Store(m)
}
