package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/wadjakorntonsri/geo-shortener/pkg/adapters/events"
	"github.com/wadjakorntonsri/geo-shortener/pkg/adapters/geolocation"
	"github.com/wadjakorntonsri/geo-shortener/pkg/adapters/handler"
	"github.com/wadjakorntonsri/geo-shortener/pkg/adapters/metrics"
	"github.com/wadjakorntonsri/geo-shortener/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/geo-shortener/pkg/config"
	"github.com/wadjakorntonsri/geo-shortener/pkg/core/services"
	"github.com/wadjakorntonsri/geo-shortener/pkg/logger"
	"github.com/wadjakorntonsri/geo-shortener/pkg/ports"
)

// App wires the adapters and services together. It is shared by the HTTP
// server, the CLI and the serverless entrypoint.
type App struct {
	Config     *config.Config
	Repo       *sqlite.SQLiteRepository
	Resolver   *geolocation.GeoLiteResolver
	Updater    ports.GeolocationDBUpdater
	Metrics    *metrics.Metrics
	Dispatcher *events.Dispatcher
	Locator    *services.VisitLocator
	Links      *services.LinkService

	http      *handler.HTTPHandler
	scheduler *cron.Cron
	logger    zerolog.Logger
}

func New(cfg *config.Config) (*App, error) {
	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	m := metrics.New()
	resolver := geolocation.NewGeoLiteResolver(cfg.GeoLite.DBPath)
	updater := geolocation.NewGeoLiteUpdater(
		cfg.GeoLite,
		logger.Component("geolite_updater"),
		geolocation.WithReloadHook(resolver.Reload),
	)

	instrumentedUpdater := m.InstrumentUpdater(updater)
	locator := services.NewVisitLocator(
		m.InstrumentResolver(resolver),
		repo,
		instrumentedUpdater,
		logger.Component("visit_locator"),
	)

	dispatcher := events.NewDispatcher(cfg.Locator.Workers, cfg.Locator.QueueSize, logger.Component("dispatcher"))
	dispatcher.Subscribe(locator.HandleVisitOccurred)

	links := services.NewLinkService(repo, repo, dispatcher, cfg.AnonymizeRemoteIP, logger.Component("link_service"))

	return &App{
		Config:     cfg,
		Repo:       repo,
		Resolver:   resolver,
		Updater:    instrumentedUpdater,
		Metrics:    m,
		Dispatcher: dispatcher,
		Locator:    locator,
		Links:      links,
		http:       handler.NewHTTPHandler(links, cfg, logger.Component("http")),
		scheduler:  cron.New(),
		logger:     logger.Component("app"),
	}, nil
}

// Handler returns the HTTP router.
func (a *App) Handler() http.Handler {
	return handler.NewRouter(a.http, a.Metrics.Handler(), logger.Component("http"))
}

// Start runs the locator workers and, when a schedule is configured, the
// periodic GeoLite2 refresh.
func (a *App) Start(ctx context.Context) error {
	a.Dispatcher.Start(ctx)

	if a.Config.GeoLite.UpdateSchedule == "" {
		return nil
	}

	_, err := a.scheduler.AddFunc(a.Config.GeoLite.UpdateSchedule, func() {
		if err := a.Updater.CheckForDatabaseUpdate(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("scheduled GeoLite2 update failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling GeoLite2 update %q: %w", a.Config.GeoLite.UpdateSchedule, err)
	}
	a.scheduler.Start()

	return nil
}

// Shutdown stops the scheduler, waits for visits still being recorded by the
// HTTP handler, drains queued visits and releases resources. Call it once the
// HTTP server stopped accepting requests.
func (a *App) Shutdown(ctx context.Context) error {
	wait := a.scheduler.Stop()
	select {
	case <-wait.Done():
	case <-ctx.Done():
	}

	return errors.Join(
		a.http.Wait(ctx),
		a.Dispatcher.Shutdown(ctx),
		a.Resolver.Close(),
		a.Repo.Close(),
	)
}
