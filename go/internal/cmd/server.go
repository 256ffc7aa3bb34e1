package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/syncroom/go/internal/config"
	"github.com/mcdev12/syncroom/go/internal/proxy"
)

func setupServer(cfg *config.Config, services *Services) (*http.Server, error) {
	mux := http.NewServeMux()

	// Room HTTP routes and the realtime channel
	services.Gateway.RegisterRoutes(mux)

	// Upstream music API
	upstream, err := proxy.New(proxy.Config{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream proxy: %w", err)
	}
	mux.Handle("/api/", http.StripPrefix("/api", upstream))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if _, err := w.Write([]byte("Yusic Server is running!")); err != nil {
			log.Error().Err(err).Msg("failed to write index response")
		}
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// No WriteTimeout: it would cut long upstream streams short
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}
