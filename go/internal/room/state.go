package room

// Playback is the timeline state of a room. It is either Playing or Paused;
// there is no other implementation.
type Playback interface {
	playback()
}

// Playing means the timeline is advancing. StartTime is the virtual origin in
// Unix milliseconds: the instant at which the position would have been zero.
type Playing struct {
	StartTime int64
}

// Paused means the timeline is frozen at Position seconds.
type Paused struct {
	Position float64
}

func (Playing) playback() {}
func (Paused) playback()  {}

// RoomState is the authoritative playback state of a single room
type RoomState struct {
	RoomID   string
	SongID   *string
	Playback Playback
}

// newRoomState returns the state of a freshly created room: no song, paused at zero
func newRoomState(roomID string) RoomState {
	return RoomState{
		RoomID:   roomID,
		Playback: Paused{Position: 0},
	}
}

// IsPlaying reports whether the timeline is advancing
func (s RoomState) IsPlaying() bool {
	_, ok := s.Playback.(Playing)
	return ok
}

// StartTime returns the virtual origin in Unix milliseconds, or nil when paused
func (s RoomState) StartTime() *int64 {
	if p, ok := s.Playback.(Playing); ok {
		start := p.StartTime
		return &start
	}
	return nil
}

// PauseTime returns the frozen position in seconds, or nil while playing
func (s RoomState) PauseTime() *float64 {
	if p, ok := s.Playback.(Paused); ok {
		pos := p.Position
		return &pos
	}
	return nil
}

// Song returns the current song ID, or "" when none has been selected
func (s RoomState) Song() string {
	if s.SongID == nil {
		return ""
	}
	return *s.SongID
}
