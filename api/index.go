package handler

import (
	"context"
	"net/http"

	"github.com/wadjakorntonsri/geo-shortener/pkg/app"
	"github.com/wadjakorntonsri/geo-shortener/pkg/config"
	"github.com/wadjakorntonsri/geo-shortener/pkg/logger"
)

var mux http.Handler

func init() {
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, false)

	// Note: On Vercel, db.sqlite is ephemeral unless using a remote SQL/Turso URL in DATABASE_URL
	a, err := app.New(cfg)
	if err != nil {
		panic(err)
	}

	// No cron on serverless, the database is refreshed on demand by the locator
	cfg.GeoLite.UpdateSchedule = ""
	if err := a.Start(context.Background()); err != nil {
		panic(err)
	}

	mux = a.Handler()
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
