package gateway

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/syncroom/go/internal/room"
)

type harness struct {
	rooms *room.Service
	clock *clockwork.FakeClock
	cm    *ConnectionManager
}

func newHarness(t *testing.T, sendBuffer int) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rooms := room.NewService(room.NewStore(), room.WithClock(clock))

	config := DefaultConnectionConfig()
	config.SendBufferSize = sendBuffer
	cm := NewConnectionManager(config, rooms)
	rooms.SetObserver(cm)

	return &harness{rooms: rooms, clock: clock, cm: cm}
}

// connect registers a connection with no socket behind it
func (h *harness) connect() *Connection {
	conn := h.cm.newConnection(nil)
	h.cm.registerConnection(conn)
	return conn
}

type received struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

func drain(t *testing.T, conn *Connection) []received {
	t.Helper()
	var out []received
	for {
		select {
		case data, ok := <-conn.send:
			if !ok {
				return out
			}
			var msg received
			require.NoError(t, json.Unmarshal(data, &msg))
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestConnectionManager_JoinSendsInit(t *testing.T) {
	h := newHarness(t, 16)
	roomID := h.rooms.CreateRoom().RoomID
	played, err := h.rooms.Play(roomID, "A")
	require.NoError(t, err)

	conn := h.connect()
	h.cm.Join(conn, roomID)

	msgs := drain(t, conn)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventSyncUpdate, msgs[0].Event)
	assert.Equal(t, "INIT", msgs[0].Data["type"])
	assert.Equal(t, roomID, msgs[0].Data["roomId"])
	assert.Equal(t, "A", msgs[0].Data["songId"])
	assert.Equal(t, true, msgs[0].Data["isPlaying"])
	assert.Equal(t, float64(*played.StartTime()), msgs[0].Data["startTime"])
	assert.Nil(t, msgs[0].Data["pauseTime"])
}

func TestConnectionManager_JoinUnknownRoom(t *testing.T) {
	h := newHarness(t, 16)
	conn := h.connect()

	h.cm.Join(conn, "missing")

	msgs := drain(t, conn)
	require.Len(t, msgs, 1)
	assert.Equal(t, EventError, msgs[0].Event)
	assert.Equal(t, "room not found", msgs[0].Data["message"])
	assert.Zero(t, h.cm.GetConnectionStats().ActiveRooms)
}

func TestConnectionManager_BroadcastReachesEverySubscriber(t *testing.T) {
	h := newHarness(t, 16)
	roomID := h.rooms.CreateRoom().RoomID
	otherRoom := h.rooms.CreateRoom().RoomID

	actor := h.connect()
	listener := h.connect()
	outsider := h.connect()
	h.cm.Join(actor, roomID)
	h.cm.Join(listener, roomID)
	h.cm.Join(outsider, otherRoom)
	drain(t, actor)
	drain(t, listener)
	drain(t, outsider)

	_, err := h.rooms.Play(roomID, "A")
	require.NoError(t, err)

	for _, conn := range []*Connection{actor, listener} {
		msgs := drain(t, conn)
		require.Len(t, msgs, 1)
		assert.Equal(t, "PLAY", msgs[0].Data["type"])
		assert.Equal(t, "A", msgs[0].Data["songId"])
		assert.NotNil(t, msgs[0].Data["startTime"])
	}
	assert.Empty(t, drain(t, outsider))
}

func TestConnectionManager_EventsArriveInOrder(t *testing.T) {
	h := newHarness(t, 16)
	roomID := h.rooms.CreateRoom().RoomID
	conn := h.connect()
	h.cm.Join(conn, roomID)

	_, err := h.rooms.Play(roomID, "A")
	require.NoError(t, err)
	_, err = h.rooms.Pause(roomID)
	require.NoError(t, err)
	_, err = h.rooms.SetSong(roomID, "B")
	require.NoError(t, err)

	msgs := drain(t, conn)
	require.Len(t, msgs, 4)
	var kinds []interface{}
	for _, m := range msgs {
		kinds = append(kinds, m.Data["type"])
	}
	assert.Equal(t, []interface{}{"INIT", "PLAY", "PAUSE", "SONG_CHANGE"}, kinds)
	assert.Contains(t, msgs[2].Data, "pauseTime")
	assert.Equal(t, "B", msgs[3].Data["songId"])
}

func TestConnectionManager_JoinIsAdditive(t *testing.T) {
	h := newHarness(t, 16)
	first := h.rooms.CreateRoom().RoomID
	second := h.rooms.CreateRoom().RoomID

	conn := h.connect()
	h.cm.Join(conn, first)
	h.cm.Join(conn, second)
	drain(t, conn)

	_, err := h.rooms.Play(first, "A")
	require.NoError(t, err)
	_, err = h.rooms.Play(second, "B")
	require.NoError(t, err)

	msgs := drain(t, conn)
	require.Len(t, msgs, 2)
	assert.Equal(t, first, msgs[0].Data["roomId"])
	assert.Equal(t, second, msgs[1].Data["roomId"])

	stats := h.cm.GetConnectionStats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 2, stats.ActiveRooms)
}

func TestConnectionManager_SlowSubscriberIsDropped(t *testing.T) {
	h := newHarness(t, 1)
	roomID := h.rooms.CreateRoom().RoomID

	slow := h.connect()
	healthy := h.connect()
	h.cm.Join(slow, roomID) // INIT fills the one-slot buffer
	h.cm.Join(healthy, roomID)
	drain(t, healthy)

	_, err := h.rooms.Play(roomID, "A")
	require.NoError(t, err)

	msgs := drain(t, healthy)
	require.Len(t, msgs, 1)
	assert.Equal(t, "PLAY", msgs[0].Data["type"])

	stats := h.cm.GetConnectionStats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.RoomConnections[roomID])

	// dropping a subscriber never touches room state
	state, err := h.rooms.GetRoom(roomID)
	require.NoError(t, err)
	assert.True(t, state.IsPlaying())
}

func TestConnectionManager_SlowSubscriberSocketClosed(t *testing.T) {
	h := newHarness(t, 1)
	roomID := h.rooms.CreateRoom().RoomID

	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.cm.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	// no pumps running, so INIT stays in the one-slot buffer
	conn := h.cm.newConnection(<-accepted)
	h.cm.registerConnection(conn)
	h.cm.Join(conn, roomID)

	_, err = h.rooms.Play(roomID, "A")
	require.NoError(t, err)
	assert.Zero(t, h.cm.GetConnectionStats().TotalConnections)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = client.ReadMessage()
	require.Error(t, err)
	var netErr net.Error
	assert.False(t, errors.As(err, &netErr) && netErr.Timeout(), "socket should be closed, got %v", err)
}

func TestNewConnectionManager_FillsNonPositiveSettings(t *testing.T) {
	rooms := room.NewService(room.NewStore())
	cm := NewConnectionManager(ConnectionConfig{
		PingInterval:   0,
		WriteTimeout:   -time.Second,
		MaxMessageSize: 4096,
	}, rooms)

	def := DefaultConnectionConfig()
	assert.Equal(t, def.PingInterval, cm.config.PingInterval)
	assert.Equal(t, def.WriteTimeout, cm.config.WriteTimeout)
	assert.Equal(t, def.ReadTimeout, cm.config.ReadTimeout)
	assert.Equal(t, int64(4096), cm.config.MaxMessageSize)

	conn := cm.newConnection(nil)
	assert.Equal(t, def.SendBufferSize, cap(conn.send))
}

func TestConnectionManager_DisconnectRemovesSubscriptions(t *testing.T) {
	h := newHarness(t, 16)
	first := h.rooms.CreateRoom().RoomID
	second := h.rooms.CreateRoom().RoomID

	conn := h.connect()
	h.cm.Join(conn, first)
	h.cm.Join(conn, second)

	h.cm.unregisterConnection(conn)
	h.cm.unregisterConnection(conn) // second call is a no-op

	stats := h.cm.GetConnectionStats()
	assert.Zero(t, stats.TotalConnections)
	assert.Zero(t, stats.ActiveRooms)

	// broadcasting to the abandoned rooms is harmless
	_, err := h.rooms.Play(first, "A")
	require.NoError(t, err)

	// joining with a dead connection does nothing
	h.cm.Join(conn, first)
	assert.Zero(t, h.cm.GetConnectionStats().ActiveRooms)
}

func TestConnectionManager_HandleClientMessage(t *testing.T) {
	h := newHarness(t, 16)
	roomID := h.rooms.CreateRoom().RoomID

	tests := []struct {
		name      string
		message   string
		wantEvent string
		wantType  string
	}{
		{name: "join", message: `{"type":"join","roomId":"` + roomID + `"}`, wantEvent: EventSyncUpdate, wantType: "INIT"},
		{name: "join without room", message: `{"type":"join"}`, wantEvent: EventError},
		{name: "unknown type", message: `{"type":"seek","roomId":"` + roomID + `"}`, wantEvent: EventError},
		{name: "not json", message: `join me`, wantEvent: EventError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := h.connect()
			conn.handleClientMessage([]byte(tt.message))

			msgs := drain(t, conn)
			require.Len(t, msgs, 1)
			assert.Equal(t, tt.wantEvent, msgs[0].Event)
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, msgs[0].Data["type"])
			}
		})
	}
}
