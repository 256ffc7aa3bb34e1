package room

import "errors"

// ErrRoomNotFound is returned when an operation references an unknown room
var ErrRoomNotFound = errors.New("room not found")

// ErrSongRequired is returned when a song change is requested without a song ID
var ErrSongRequired = errors.New("songId is required")
