// Package store holds the application's canonical task state.
package store

import (
	"sync"

	"todo-sync/app/tree"
)

// State is the canonical client state.
type State struct {
	Forest  tree.Forest
	Loading bool
}

// Store owns the current State. The application root creates one and passes
// it to every component that reads or changes task state.
type Store struct {
	mu    sync.RWMutex
	state State

	version uint64

	// notify serializes listener delivery. A state superseded before its
	// listeners ran is skipped, so listeners never see an older state after
	// a newer one.
	notify    sync.Mutex
	delivered uint64
	listeners map[int]func(State)
	nextID    int
}

// New creates a store holding initial.
func New(initial State) *Store {
	return &Store{state: initial, listeners: make(map[int]func(State))}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn to be called after every dispatch.
// Listeners must not call Dispatch synchronously.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.notify.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.notify.Unlock()

	return func() {
		s.notify.Lock()
		delete(s.listeners, id)
		s.notify.Unlock()
	}
}

// Dispatch replaces the state with fn(current) atomically and returns the
// new state.
func (s *Store) Dispatch(fn func(State) State) State {
	s.mu.Lock()
	next := fn(s.state)
	s.state = next
	s.version++
	v := s.version
	s.mu.Unlock()

	s.notify.Lock()
	defer s.notify.Unlock()
	if v < s.delivered {
		return next
	}
	s.delivered = v
	for _, l := range s.listeners {
		l(next)
	}
	return next
}

// Update is Dispatch for callers that only touch the forest.
func (s *Store) Update(fn func(tree.Forest) tree.Forest) tree.Forest {
	return s.Dispatch(func(st State) State {
		st.Forest = fn(st.Forest)
		return st
	}).Forest
}
