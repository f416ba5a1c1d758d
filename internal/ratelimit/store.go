package ratelimit

import "sync"

// MemoryStore keeps limiter state in a mutex-guarded map. One lock covers
// the request path and the sweep, per the ordering guarantee: successive
// checks for a key observe a consistent, monotonically pruned window.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*State)}
}

// Update implements Store.
func (s *MemoryStore) Update(key string, fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[key]
	if !ok {
		state = &State{}
		s.states[key] = state
	}
	fn(state)
}

// Sweep implements Store.
func (s *MemoryStore) Sweep(fn func(key string, st *State) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, state := range s.states {
		if fn(key, state) {
			delete(s.states, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
