// Package store is a small Flux-style state container: actions are applied
// by a reducer and the resulting state is broadcast to subscribers.
package store

import "sync"

// Action is anything a reducer understands.
type Action any

// Reducer returns the state that results from applying action to state.
// It must not modify state in place.
type Reducer[S any] func(state S, action Action) S

// Store holds the current state. Dispatch is serialized and subscribers
// see every state in dispatch order, in subscription order. A Dispatch made
// while another one is notifying, from a subscriber or another goroutine,
// queues its state; the notifying goroutine delivers it before returning.
type Store[S any] struct {
	reduce Reducer[S]

	mu    sync.Mutex
	state S
	subs  map[int]func(S)
	order []int
	next  int

	pending   []S
	notifying bool
}

// New creates a store holding initial.
func New[S any](initial S, reduce Reducer[S]) *Store[S] {
	return &Store[S]{
		reduce: reduce,
		state:  initial,
		subs:   make(map[int]func(S)),
	}
}

// State returns the current state.
func (s *Store[S]) State() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies action and notifies subscribers with the new state.
func (s *Store[S]) Dispatch(action Action) S {
	s.mu.Lock()
	s.state = s.reduce(s.state, action)
	state := s.state
	s.pending = append(s.pending, state)
	if s.notifying {
		s.mu.Unlock()
		return state
	}

	s.notifying = true
	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		listeners := s.listeners()
		s.mu.Unlock()

		for _, fn := range listeners {
			fn(next)
		}
		s.mu.Lock()
	}
	s.notifying = false
	s.mu.Unlock()
	return state
}

// listeners snapshots the subscribers. s.mu must be held.
func (s *Store[S]) listeners() []func(S) {
	out := make([]func(S), 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.subs[id])
	}
	return out
}

// Subscribe registers fn for every subsequent state change. The returned
// function removes it and is safe to call more than once.
func (s *Store[S]) Subscribe(fn func(S)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}
