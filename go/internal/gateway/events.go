package gateway

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/syncroom/go/internal/room"
)

// Server → client event names
const (
	EventSyncUpdate = "sync_update"
	EventError      = "error"
)

// Client → server message types
const (
	MessageTypeJoin = "join"
)

// ServerMessage is the envelope of every message pushed to a client
type ServerMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// ClientMessage is a control message received from a client
type ClientMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ErrorPayload is the data of an error event
type ErrorPayload struct {
	Message string `json:"message"`
	RoomID  string `json:"roomId,omitempty"`
}

// RoomEvent is a room state change as mirrored to the event bus
type RoomEvent struct {
	ID         string          `json:"eventId"`
	Type       room.ChangeKind `json:"eventType"`
	RoomID     string          `json:"roomId"`
	OccurredAt time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
}

// ChangePayload returns the state fields carried by a change of the given
// kind. Positions are sent as stored (startTime is the virtual origin), never
// projected, so clients compute elapsed time themselves.
func ChangePayload(kind room.ChangeKind, state room.RoomState) map[string]interface{} {
	switch kind {
	case room.ChangePlay:
		return map[string]interface{}{
			"songId":    state.SongID,
			"startTime": state.StartTime(),
		}
	case room.ChangePause:
		return map[string]interface{}{
			"pauseTime": state.PauseTime(),
		}
	case room.ChangeSongChange:
		return map[string]interface{}{
			"songId": state.SongID,
		}
	default:
		return map[string]interface{}{
			"songId":    state.SongID,
			"isPlaying": state.IsPlaying(),
			"startTime": state.StartTime(),
			"pauseTime": state.PauseTime(),
		}
	}
}

// syncUpdate builds the sync_update data for a change. type and roomId
// always win over payload keys of the same name.
func syncUpdate(kind room.ChangeKind, roomID string, payload map[string]interface{}) map[string]interface{} {
	data := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		data[k] = v
	}
	data["type"] = kind
	data["roomId"] = roomID
	return data
}
