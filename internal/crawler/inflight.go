package crawler

import (
	"sort"
	"sync"
)

// InFlightSet is the global set of canonical page keys currently admitted to
// the pipeline. It is shared by every crawl task served by one Engine.
type InFlightSet struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewInFlightSet creates an empty set.
func NewInFlightSet() *InFlightSet {
	return &InFlightSet{keys: make(map[string]struct{})}
}

// TryAdd inserts key and reports whether it was absent.
func (s *InFlightSet) TryAdd(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Remove evicts key so it can be admitted again.
func (s *InFlightSet) Remove(key string) {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
}

// Contains reports whether key is present.
func (s *InFlightSet) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

// Keys returns a sorted snapshot of the set.
func (s *InFlightSet) Keys() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len returns the number of keys.
func (s *InFlightSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
