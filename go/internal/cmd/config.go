package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/syncroom/go/internal/config"
	"github.com/mcdev12/syncroom/go/internal/gateway"
)

func setupLogging(cfg config.LogConfig) {
	if strings.EqualFold(cfg.Format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", cfg.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func gatewayConfig(cfg *config.Config) gateway.Config {
	gwCfg := gateway.DefaultConfig()
	gwCfg.ConnectionConfig.PingInterval = cfg.WebSocket.PingInterval
	gwCfg.ConnectionConfig.WriteTimeout = cfg.WebSocket.WriteTimeout
	gwCfg.ConnectionConfig.ReadTimeout = cfg.WebSocket.ReadTimeout
	gwCfg.ConnectionConfig.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	gwCfg.ConnectionConfig.SendBufferSize = cfg.WebSocket.SendBufferSize
	return gwCfg
}

func jetStreamConfig(cfg *config.Config) gateway.JetStreamConfig {
	jsCfg := gateway.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATS.URL
	jsCfg.StreamName = cfg.NATS.StreamName
	jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
	return jsCfg
}
