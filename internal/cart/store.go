package cart

import (
	"slices"
	"sync"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
)

// Store holds one cart State and serialises dispatches against it.
type Store struct {
	mu    sync.Mutex
	state State
}

// NewStore returns a Store seeded with initial.
func NewStore(initial State) *Store {
	return &Store{state: Reduce(initial, nil)}
}

// Dispatch reduces action into the held state. changed reports whether the lines differ.
func (s *Store) Dispatch(action Action) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Reduce(s.state, action)
	changed := !slices.EqualFunc(s.state.Items, next.Items, func(a, b domain.CartItem) bool { return a == b })
	s.state = next
	return next, changed
}

// Snapshot returns the current state. The item slice is a copy.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Reduce(s.state, nil)
}
