package room

import (
	"math"
	"time"
)

// Playback clock model.
//
// A playing room never stores its elapsed position. It stores the virtual
// origin (the wall-clock instant at which the position would have been zero)
// and every reader projects the position from it. Resuming shifts the origin
// back by the frozen position so the projection continues where it stopped.

// CurrentTime projects the elapsed playback position in seconds at now
func CurrentTime(state RoomState, now time.Time) float64 {
	switch p := state.Playback.(type) {
	case Playing:
		elapsed := float64(now.UnixMilli()-p.StartTime) / 1000
		if elapsed < 0 {
			return 0
		}
		return elapsed
	case Paused:
		return p.Position
	default:
		return 0
	}
}

// Resume continues the current song from its frozen position.
// A room that is already playing is returned unchanged.
func Resume(state RoomState, now time.Time) RoomState {
	paused, ok := state.Playback.(Paused)
	if !ok {
		return state
	}

	offset := int64(math.Round(paused.Position * 1000))
	state.Playback = Playing{StartTime: now.UnixMilli() - offset}
	return state
}

// StartSong switches to songID and restarts the timeline at zero
func StartSong(state RoomState, songID string, now time.Time) RoomState {
	state.SongID = &songID
	state.Playback = Playing{StartTime: now.UnixMilli()}
	return state
}

// Play resumes when songID is empty or matches the current song, otherwise
// it starts songID from the beginning.
func Play(state RoomState, songID string, now time.Time) RoomState {
	if songID == "" || (state.SongID != nil && *state.SongID == songID) {
		return Resume(state, now)
	}
	return StartSong(state, songID, now)
}

// Pause freezes the timeline at its projected position.
// Pausing a paused room is a no-op.
func Pause(state RoomState, now time.Time) RoomState {
	if !state.IsPlaying() {
		return state
	}

	state.Playback = Paused{Position: CurrentTime(state, now)}
	return state
}

// SetSong selects songID and resets the room to paused at zero
func SetSong(state RoomState, songID string) RoomState {
	state.SongID = &songID
	state.Playback = Paused{Position: 0}
	return state
}
