package room

import (
	"sync"

	"github.com/google/uuid"
)

// Store is the in-memory owner of all room states.
// Rooms live for the lifetime of the process; there is no eviction.
type Store struct {
	rooms map[string]*entry
	mu    sync.RWMutex
}

// entry serializes transitions for a single room
type entry struct {
	mu    sync.Mutex
	state RoomState
}

// NewStore creates an empty room store
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*entry),
	}
}

// Create allocates a new room ID and stores its initial state
func (s *Store) Create() RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	for s.rooms[id] != nil {
		id = uuid.New().String()
	}

	state := newRoomState(id)
	s.rooms[id] = &entry{state: state}
	return state
}

// Get returns a snapshot of the room's state
func (s *Store) Get(roomID string) (RoomState, bool) {
	e := s.lookup(roomID)
	if e == nil {
		return RoomState{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Mutate atomically replaces the room's state with fn(state) and returns the
// new state. fn must not block: it runs with the room locked.
func (s *Store) Mutate(roomID string, fn func(RoomState) RoomState) (RoomState, bool) {
	e := s.lookup(roomID)
	if e == nil {
		return RoomState{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := fn(e.state)
	next.RoomID = e.state.RoomID
	e.state = next
	return next, true
}

// View runs fn with the room locked, so no transition can interleave with it
func (s *Store) View(roomID string, fn func(RoomState)) bool {
	e := s.lookup(roomID)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fn(e.state)
	return true
}

func (s *Store) lookup(roomID string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[roomID]
}
