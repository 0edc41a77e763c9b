package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wadjakorntonsri/geo-shortener/pkg/app"
	"github.com/wadjakorntonsri/geo-shortener/pkg/config"
	"github.com/wadjakorntonsri/geo-shortener/pkg/logger"
)

func main() {
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, cfg.IsLocal())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Application
	a, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}

	// Workers outlive ctx so queued visits are drained on shutdown
	if err := a.Start(context.WithoutCancel(ctx)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start background jobs")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Application shutdown failed")
	}
}
