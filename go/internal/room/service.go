package room

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ChangeKind identifies a room state change pushed to subscribers
type ChangeKind string

const (
	ChangeInit       ChangeKind = "INIT"
	ChangePlay       ChangeKind = "PLAY"
	ChangePause      ChangeKind = "PAUSE"
	ChangeSongChange ChangeKind = "SONG_CHANGE"
)

// Observer is notified after every successful transition, while the room is
// still locked. Implementations must not block.
type Observer interface {
	RoomChanged(kind ChangeKind, state RoomState)
}

// Service is the authoritative state-transition surface for rooms
type Service struct {
	store    *Store
	clock    clockwork.Clock
	observer Observer
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the wall clock, mostly for tests
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithObserver registers the observer notified of every transition
func WithObserver(observer Observer) Option {
	return func(s *Service) {
		s.observer = observer
	}
}

// NewService creates a new room service backed by store
func NewService(store *Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetObserver registers the observer after construction. It must be called
// before the service starts serving requests.
func (s *Service) SetObserver(observer Observer) {
	s.observer = observer
}

// CreateRoom creates an empty room
func (s *Service) CreateRoom() RoomState {
	state := s.store.Create()
	log.Info().Str("room_id", state.RoomID).Msg("room created")
	return state
}

// GetRoom returns the current state of a room
func (s *Service) GetRoom(roomID string) (RoomState, error) {
	state, ok := s.store.Get(roomID)
	if !ok {
		return RoomState{}, fmt.Errorf("get room %s: %w", roomID, ErrRoomNotFound)
	}
	return state, nil
}

// CurrentTime projects the room's playback position at the current wall clock
func (s *Service) CurrentTime(state RoomState) float64 {
	return CurrentTime(state, s.clock.Now())
}

// Play resumes the current song, or starts songID from zero when it differs
// from the current song.
func (s *Service) Play(roomID, songID string) (RoomState, error) {
	return s.transition(roomID, ChangePlay, func(state RoomState) RoomState {
		return Play(state, songID, s.clock.Now())
	})
}

// Pause freezes the room at its current position
func (s *Service) Pause(roomID string) (RoomState, error) {
	return s.transition(roomID, ChangePause, func(state RoomState) RoomState {
		return Pause(state, s.clock.Now())
	})
}

// SetSong switches to songID without playing it
func (s *Service) SetSong(roomID, songID string) (RoomState, error) {
	if songID == "" {
		return RoomState{}, ErrSongRequired
	}
	return s.transition(roomID, ChangeSongChange, func(state RoomState) RoomState {
		return SetSong(state, songID)
	})
}

// Snapshot runs fn with the room's current state while no transition can
// interleave, so fn can register interest without missing an update.
func (s *Service) Snapshot(roomID string, fn func(RoomState)) error {
	if !s.store.View(roomID, fn) {
		return fmt.Errorf("snapshot room %s: %w", roomID, ErrRoomNotFound)
	}
	return nil
}

// transition applies fn atomically and notifies the observer before the
// room is unlocked, so notifications follow the order transitions applied.
func (s *Service) transition(roomID string, kind ChangeKind, fn func(RoomState) RoomState) (RoomState, error) {
	state, ok := s.store.Mutate(roomID, func(current RoomState) RoomState {
		next := fn(current)
		if s.observer != nil {
			s.observer.RoomChanged(kind, next)
		}
		return next
	})
	if !ok {
		return RoomState{}, fmt.Errorf("%s room %s: %w", kind, roomID, ErrRoomNotFound)
	}

	log.Debug().
		Str("room_id", roomID).
		Str("event_type", string(kind)).
		Str("song_id", state.Song()).
		Bool("is_playing", state.IsPlaying()).
		Msg("room transition applied")

	return state, nil
}
