package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/syncroom/go/internal/config"
	"github.com/mcdev12/syncroom/go/internal/gateway"
	"github.com/mcdev12/syncroom/go/internal/room"
)

type Services struct {
	Gateway *gateway.Service
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Store → Room service → Gateway, then the gateway observes the service
	store := room.NewStore()
	roomService := room.NewService(store)

	var publisher gateway.EventPublisher
	if cfg.NATS.URL != "" {
		jsPublisher, err := gateway.NewJetStreamPublisher(ctx, jetStreamConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		publisher = jsPublisher
		log.Info().Str("nats_url", cfg.NATS.URL).Msg("room event mirroring enabled")
	}

	gatewayService := gateway.NewService(gatewayConfig(cfg), roomService, publisher)
	roomService.SetObserver(gatewayService)

	return &Services{
		Gateway: gatewayService,
	}, nil
}
