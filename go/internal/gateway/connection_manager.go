package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/syncroom/go/internal/room"
)

// RoomSnapshotter gives the gateway a consistent view of a room while no
// transition can interleave
type RoomSnapshotter interface {
	Snapshot(roomID string, fn func(room.RoomState)) error
}

// ConnectionManager manages WebSocket connections and their room subscriptions
type ConnectionManager struct {
	// Subscribers organized by room ID
	roomConnections map[string]map[*Connection]bool
	// Every live connection, subscribed or not
	connections map[*Connection]bool
	mu          sync.RWMutex

	rooms RoomSnapshotter

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config ConnectionConfig
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	send    chan []byte
	manager *ConnectionManager

	// rooms this connection joined, guarded by manager.mu
	rooms map[string]bool

	ConnectedAt time.Time
	closeOnce   sync.Once
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// withDefaults replaces non-positive timings and sizes with the defaults.
// A zero PingInterval would otherwise panic in writePump.
func (c ConnectionConfig) withDefaults() ConnectionConfig {
	def := DefaultConnectionConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = def.SendBufferSize
	}
	return c
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, rooms RoomSnapshotter) *ConnectionManager {
	config = config.withDefaults()
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		connections:     make(map[*Connection]bool),
		rooms:           rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts its
// pumps. When roomID is set the connection joins that room straight away.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, roomID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := cm.newConnection(conn)
	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	if roomID != "" {
		cm.Join(connection, roomID)
	}
	return nil
}

func (cm *ConnectionManager) newConnection(conn *websocket.Conn) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		send:        make(chan []byte, cm.config.SendBufferSize),
		manager:     cm,
		rooms:       make(map[string]bool),
		ConnectedAt: time.Now(),
	}
}

// registerConnection adds an unsubscribed connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn] = true
}

// unregisterConnection drops the connection from every room it joined.
// Room state is never touched.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.connections[conn] {
		return
	}
	delete(cm.connections, conn)

	for roomID := range conn.rooms {
		if subscribers, exists := cm.roomConnections[roomID]; exists {
			delete(subscribers, conn)
			if len(subscribers) == 0 {
				delete(cm.roomConnections, roomID)
			}
		}
	}
	close(conn.send)

	log.Info().
		Str("connection_id", conn.ID).
		Int("rooms", len(conn.rooms)).
		Msg("connection unregistered")
}

// Join subscribes conn to roomID and pushes it an INIT snapshot. Joining is
// additive: rooms joined earlier stay subscribed.
func (cm *ConnectionManager) Join(conn *Connection, roomID string) {
	var slow bool
	err := cm.rooms.Snapshot(roomID, func(state room.RoomState) {
		// subscribe and enqueue INIT while the room is locked, so any later
		// broadcast for this room is queued behind the snapshot
		data, err := json.Marshal(ServerMessage{
			Event: EventSyncUpdate,
			Data:  syncUpdate(room.ChangeInit, roomID, ChangePayload(room.ChangeInit, state)),
		})
		if err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to marshal INIT")
			return
		}

		cm.mu.Lock()
		defer cm.mu.Unlock()
		if !cm.connections[conn] {
			return
		}
		if cm.roomConnections[roomID] == nil {
			cm.roomConnections[roomID] = make(map[*Connection]bool)
		}
		cm.roomConnections[roomID][conn] = true
		conn.rooms[roomID] = true

		slow = !conn.enqueue(data)

		log.Debug().
			Str("connection_id", conn.ID).
			Str("room_id", roomID).
			Int("subscribers", len(cm.roomConnections[roomID])).
			Msg("connection joined room")
	})
	if errors.Is(err, room.ErrRoomNotFound) {
		log.Debug().Str("connection_id", conn.ID).Str("room_id", roomID).Msg("join for unknown room")
		cm.sendError(conn, "room not found", roomID)
		return
	}
	if slow {
		cm.dropSlow([]*Connection{conn})
	}
}

// Broadcast fans a change out to every subscriber of roomID, the actor
// included. Delivery is a non-blocking enqueue: a subscriber whose buffer is
// full is dropped and never holds up the others.
func (cm *ConnectionManager) Broadcast(kind room.ChangeKind, roomID string, payload map[string]interface{}) {
	data, err := json.Marshal(ServerMessage{
		Event: EventSyncUpdate,
		Data:  syncUpdate(kind, roomID, payload),
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	cm.mu.RLock()
	subscribers := cm.roomConnections[roomID]
	for conn := range subscribers {
		if !conn.enqueue(data) {
			slow = append(slow, conn)
		}
	}
	delivered := len(subscribers) - len(slow)
	cm.mu.RUnlock()

	cm.dropSlow(slow)

	log.Debug().
		Str("event_type", string(kind)).
		Str("room_id", roomID).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// RoomChanged broadcasts a room transition with the fields its kind carries
func (cm *ConnectionManager) RoomChanged(kind room.ChangeKind, state room.RoomState) {
	cm.Broadcast(kind, state.RoomID, ChangePayload(kind, state))
}

func (cm *ConnectionManager) sendError(conn *Connection, message, roomID string) {
	data, err := json.Marshal(ServerMessage{
		Event: EventError,
		Data:  ErrorPayload{Message: message, RoomID: roomID},
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal error event")
		return
	}

	cm.mu.RLock()
	ok := !cm.connections[conn] || conn.enqueue(data)
	cm.mu.RUnlock()

	if !ok {
		cm.dropSlow([]*Connection{conn})
	}
}

// dropSlow unsubscribes the connections right away. Callers may hold a room
// lock, so the sockets are closed on their own goroutines.
func (cm *ConnectionManager) dropSlow(conns []*Connection) {
	for _, conn := range conns {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		go conn.close()
	}
}

// ConnectionStats describes the current subscription table
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	counts := make(map[string]int, len(cm.roomConnections))
	for roomID, subscribers := range cm.roomConnections {
		counts[roomID] = len(subscribers)
	}

	return ConnectionStats{
		TotalConnections: len(cm.connections),
		ActiveRooms:      len(cm.roomConnections),
		RoomConnections:  counts,
	}
}

// enqueue queues data without blocking. The caller holds manager.mu, which
// keeps send open for the duration.
func (c *Connection) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		c.manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.manager.unregisterConnection(c)
		c.close()
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

// handleClientMessage processes messages received from the client
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("invalid client message")
		c.manager.sendError(c, "invalid message", "")
		return
	}

	switch msg.Type {
	case MessageTypeJoin:
		if msg.RoomID == "" {
			c.manager.sendError(c, "roomId is required", "")
			return
		}
		c.manager.Join(c, msg.RoomID)
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", msg.Type).
			Msg("unknown client message type")
		c.manager.sendError(c, "unknown message type", msg.RoomID)
	}
}
