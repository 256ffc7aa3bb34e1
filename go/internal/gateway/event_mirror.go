package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/syncroom/go/internal/room"
)

// EventPublisher publishes room events to an external bus
type EventPublisher interface {
	Publish(ctx context.Context, event RoomEvent) error
	Close() error
}

// EventMirror copies room changes to an EventPublisher off the request path.
// Enqueue never blocks; a single worker publishes in FIFO order.
type EventMirror struct {
	publisher      EventPublisher
	queue          chan RoomEvent
	publishTimeout time.Duration
	done           chan struct{}
}

// NewEventMirror creates a mirror with a queue of bufferSize events
func NewEventMirror(publisher EventPublisher, bufferSize int, publishTimeout time.Duration) *EventMirror {
	return &EventMirror{
		publisher:      publisher,
		queue:          make(chan RoomEvent, bufferSize),
		publishTimeout: publishTimeout,
		done:           make(chan struct{}),
	}
}

// RoomChanged queues a room transition for publishing
func (m *EventMirror) RoomChanged(kind room.ChangeKind, state room.RoomState) {
	payload, err := json.Marshal(ChangePayload(kind, state))
	if err != nil {
		log.Error().Err(err).Str("room_id", state.RoomID).Msg("failed to marshal mirrored event")
		return
	}

	m.Enqueue(RoomEvent{
		ID:         uuid.New().String(),
		Type:       kind,
		RoomID:     state.RoomID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
}

// Enqueue queues event, dropping it when the queue is full
func (m *EventMirror) Enqueue(event RoomEvent) {
	select {
	case m.queue <- event:
	default:
		log.Warn().
			Str("room_id", event.RoomID).
			Str("event_type", string(event.Type)).
			Msg("event mirror queue full, dropping event")
	}
}

// Start publishes queued events until ctx is cancelled
func (m *EventMirror) Start(ctx context.Context) {
	defer close(m.done)
	log.Info().Msg("event mirror started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event mirror shutting down")
			return
		case event := <-m.queue:
			m.publish(ctx, event)
		}
	}
}

// Done is closed once Start has returned
func (m *EventMirror) Done() <-chan struct{} {
	return m.done
}

func (m *EventMirror) publish(ctx context.Context, event RoomEvent) {
	publishCtx, cancel := context.WithTimeout(ctx, m.publishTimeout)
	defer cancel()

	if err := m.publisher.Publish(publishCtx, event); err != nil {
		log.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("room_id", event.RoomID).
			Str("event_type", string(event.Type)).
			Msg("failed to mirror room event")
	}
}

// Close releases the underlying publisher
func (m *EventMirror) Close() error {
	return m.publisher.Close()
}
