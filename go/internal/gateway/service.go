package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/syncroom/go/internal/room"
)

// Service is the realtime gateway: it owns the WebSocket subscription table,
// the room HTTP routes and the optional event mirror.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	mirror            *EventMirror
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig   ConnectionConfig
	MirrorBufferSize   int
	MirrorPublishLimit time.Duration
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig:   DefaultConnectionConfig(),
		MirrorBufferSize:   1000,
		MirrorPublishLimit: 5 * time.Second,
	}
}

// NewService creates the gateway for rooms. publisher may be nil, which
// disables event mirroring.
func NewService(config Config, rooms RoomService, publisher EventPublisher) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, rooms)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(rooms),
	}
	if publisher != nil {
		s.mirror = NewEventMirror(publisher, config.MirrorBufferSize, config.MirrorPublishLimit)
	}
	return s
}

// RoomChanged fans a room transition out to local subscribers and queues it
// for the mirror. It runs with the room locked and never blocks.
func (s *Service) RoomChanged(kind room.ChangeKind, state room.RoomState) {
	s.connectionManager.RoomChanged(kind, state)
	if s.mirror != nil {
		s.mirror.RoomChanged(kind, state)
	}
}

// Start runs background workers until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("mirror", s.mirror != nil).Msg("starting room gateway service")

	if s.mirror != nil {
		go s.mirror.Start(ctx)
	}

	<-ctx.Done()

	log.Info().Msg("room gateway service shutting down")
	return s.Stop()
}

// Stop releases the mirror's publisher once its worker has exited
func (s *Service) Stop() error {
	if s.mirror != nil {
		<-s.mirror.Done()
		if err := s.mirror.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event publisher")
			return err
		}
	}
	log.Info().Msg("room gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and room HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
