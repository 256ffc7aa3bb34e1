package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/syncroom/go/internal/room"
)

// RoomService is what the HTTP surface needs from the room service
type RoomService interface {
	RoomSnapshotter
	CreateRoom() room.RoomState
	GetRoom(roomID string) (room.RoomState, error)
	CurrentTime(state room.RoomState) float64
	Play(roomID, songID string) (room.RoomState, error)
	Pause(roomID string) (room.RoomState, error)
	SetSong(roomID, songID string) (room.RoomState, error)
}

// CreateRoomResponse is returned by POST /rooms
type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
}

// RoomStateResponse is a room's stored state plus its projected position
type RoomStateResponse struct {
	RoomID      string   `json:"roomId"`
	SongID      *string  `json:"songId"`
	IsPlaying   bool     `json:"isPlaying"`
	StartTime   *int64   `json:"startTime"`
	PauseTime   *float64 `json:"pauseTime"`
	CurrentTime float64  `json:"currentTime"`
}

// songRequest is the body of play and set-song requests
type songRequest struct {
	SongID string `json:"songId"`
}

// StateHandler handles HTTP requests for room state. Broadcasting is done by
// the room service observer, so handlers only invoke transitions.
type StateHandler struct {
	rooms RoomService
}

// NewStateHandler creates a new state handler
func NewStateHandler(rooms RoomService) *StateHandler {
	return &StateHandler{
		rooms: rooms,
	}
}

// HandleCreateRoom handles POST /rooms
func (h *StateHandler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	state := h.rooms.CreateRoom()
	writeData(w, http.StatusOK, CreateRoomResponse{RoomID: state.RoomID})
}

// HandleGetRoomState handles GET /rooms/{id}/state
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	state, err := h.rooms.GetRoom(r.PathValue("id"))
	if err != nil {
		h.writeRoomError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, h.stateResponse(state))
}

// HandlePlay handles POST /rooms/{id}/play
func (h *StateHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	var req songRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.rooms.Play(r.PathValue("id"), req.SongID)
	if err != nil {
		h.writeRoomError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, h.stateResponse(state))
}

// HandlePause handles POST /rooms/{id}/pause
func (h *StateHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	state, err := h.rooms.Pause(r.PathValue("id"))
	if err != nil {
		h.writeRoomError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, h.stateResponse(state))
}

// HandleSetSong handles POST /rooms/{id}/song
func (h *StateHandler) HandleSetSong(w http.ResponseWriter, r *http.Request) {
	var req songRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.rooms.SetSong(r.PathValue("id"), req.SongID)
	if err != nil {
		h.writeRoomError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, h.stateResponse(state))
}

// HandleHealth handles GET /health
func (h *StateHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}

// RegisterStateRoutes registers room HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms", h.HandleCreateRoom)
	mux.HandleFunc("GET /rooms/{id}/state", h.HandleGetRoomState)
	mux.HandleFunc("POST /rooms/{id}/play", h.HandlePlay)
	mux.HandleFunc("POST /rooms/{id}/pause", h.HandlePause)
	mux.HandleFunc("POST /rooms/{id}/song", h.HandleSetSong)
	mux.HandleFunc("GET /health", h.HandleHealth)
}

func (h *StateHandler) stateResponse(state room.RoomState) RoomStateResponse {
	return RoomStateResponse{
		RoomID:      state.RoomID,
		SongID:      state.SongID,
		IsPlaying:   state.IsPlaying(),
		StartTime:   state.StartTime(),
		PauseTime:   state.PauseTime(),
		CurrentTime: h.rooms.CurrentTime(state),
	}
}

func (h *StateHandler) writeRoomError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "Room not found")
	case errors.Is(err, room.ErrSongRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("room request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeOptionalBody decodes a JSON body into v; an empty body leaves v untouched
func decodeOptionalBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
