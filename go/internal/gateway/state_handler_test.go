package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/syncroom/go/internal/room"
)

func newStateMux(t *testing.T) (*http.ServeMux, *room.Service, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	rooms := room.NewService(room.NewStore(), room.WithClock(clock))

	mux := http.NewServeMux()
	NewStateHandler(rooms).RegisterStateRoutes(mux)
	return mux, rooms, clock
}

type envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func serve(t *testing.T, mux *http.ServeMux, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, rec.Code, env.Code)
	return rec, env
}

func TestStateHandler_CreateRoom(t *testing.T) {
	mux, rooms, _ := newStateMux(t)

	rec, env := serve(t, mux, http.MethodPost, "/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var created CreateRoomResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	_, err := rooms.GetRoom(created.RoomID)
	assert.NoError(t, err)
}

func TestStateHandler_GetStateIncludesCurrentTime(t *testing.T) {
	mux, rooms, clock := newStateMux(t)
	roomID := rooms.CreateRoom().RoomID

	_, env := serve(t, mux, http.MethodGet, "/rooms/"+roomID+"/state", "")
	assert.JSONEq(t, `{"roomId":"`+roomID+`","songId":null,"isPlaying":false,"startTime":null,"pauseTime":0,"currentTime":0}`, string(env.Data))

	_, err := rooms.Play(roomID, "A")
	require.NoError(t, err)
	clock.Advance(1500 * time.Millisecond)

	_, env = serve(t, mux, http.MethodGet, "/rooms/"+roomID+"/state", "")
	var state RoomStateResponse
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.True(t, state.IsPlaying)
	assert.Nil(t, state.PauseTime)
	require.NotNil(t, state.StartTime)
	assert.InDelta(t, 1.5, state.CurrentTime, 1e-9)
}

func TestStateHandler_PlayPauseSong(t *testing.T) {
	mux, rooms, clock := newStateMux(t)
	roomID := rooms.CreateRoom().RoomID

	rec, env := serve(t, mux, http.MethodPost, "/rooms/"+roomID+"/play", `{"songId":"A"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var state RoomStateResponse
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Equal(t, "A", *state.SongID)
	assert.True(t, state.IsPlaying)

	clock.Advance(4 * time.Second)
	_, env = serve(t, mux, http.MethodPost, "/rooms/"+roomID+"/pause", "")
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.False(t, state.IsPlaying)
	assert.InDelta(t, 4.0, *state.PauseTime, 1e-9)

	// empty body resumes where we paused
	clock.Advance(time.Minute)
	_, env = serve(t, mux, http.MethodPost, "/rooms/"+roomID+"/play", "")
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.True(t, state.IsPlaying)
	assert.InDelta(t, 4.0, state.CurrentTime, 1e-3)

	_, env = serve(t, mux, http.MethodPost, "/rooms/"+roomID+"/song", `{"songId":"B"}`)
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Equal(t, "B", *state.SongID)
	assert.False(t, state.IsPlaying)
	assert.Zero(t, state.CurrentTime)
}

func TestStateHandler_Errors(t *testing.T) {
	mux, rooms, _ := newStateMux(t)
	roomID := rooms.CreateRoom().RoomID

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{name: "state of unknown room", method: http.MethodGet, path: "/rooms/missing/state", wantStatus: http.StatusNotFound},
		{name: "play unknown room", method: http.MethodPost, path: "/rooms/missing/play", body: `{"songId":"A"}`, wantStatus: http.StatusNotFound},
		{name: "pause unknown room", method: http.MethodPost, path: "/rooms/missing/pause", wantStatus: http.StatusNotFound},
		{name: "song unknown room", method: http.MethodPost, path: "/rooms/missing/song", body: `{"songId":"A"}`, wantStatus: http.StatusNotFound},
		{name: "song without songId", method: http.MethodPost, path: "/rooms/" + roomID + "/song", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "song with empty body", method: http.MethodPost, path: "/rooms/" + roomID + "/song", wantStatus: http.StatusBadRequest},
		{name: "song without songId on unknown room", method: http.MethodPost, path: "/rooms/missing/song", wantStatus: http.StatusBadRequest},
		{name: "play with malformed body", method: http.MethodPost, path: "/rooms/" + roomID + "/play", body: `{"songId":`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := serve(t, mux, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, env.Message)
		})
	}

	// failed requests leave the room untouched
	state, err := rooms.GetRoom(roomID)
	require.NoError(t, err)
	assert.Nil(t, state.SongID)
	assert.False(t, state.IsPlaying())
}

func TestStateHandler_Health(t *testing.T) {
	mux, _, _ := newStateMux(t)

	rec, env := serve(t, mux, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"status":"ok"`)
}
