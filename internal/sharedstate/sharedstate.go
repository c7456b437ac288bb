// Package sharedstate implements the server-wide, read-mostly key/value
// store plugins use to communicate across requests: a reader lock for
// lookups, a writer lock held only for the map mutation itself.
package sharedstate

import "sync"

// Store is a concurrency-safe string map. The zero value is usable.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

// New returns a ready-to-use Store.
func New() *Store {
	return &Store{data: make(map[string]string)}
}

// Get looks up key under the read lock.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set installs key under the write lock. Held only long enough to mutate
// the map, never across a suspension point.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]string)
	}
	s.data[key] = value
}

// Delete removes key, a no-op if absent.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Len reports the number of entries, for introspection/health endpoints.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Keys returns a snapshot of the current key set, for introspection
// endpoints that want to list published values.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}
