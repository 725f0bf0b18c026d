package mover

import "sync"

// ProcessedSet records the source paths which have already been relocated.
// It is safe for concurrent use.
type ProcessedSet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// NewProcessedSet returns an empty set.
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{
		paths: make(map[string]struct{}),
	}
}

// Add inserts path into the set.
func (s *ProcessedSet) Add(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paths[path] = struct{}{}
}

// Contains reports whether path has been added before.
func (s *ProcessedSet) Contains(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.paths[path]

	return ok
}

// Len returns the number of paths in the set.
func (s *ProcessedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.paths)
}
