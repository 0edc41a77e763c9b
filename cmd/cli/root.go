package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/wadjakorntonsri/geo-shortener/pkg/app"
	"github.com/wadjakorntonsri/geo-shortener/pkg/config"
)

var flagDB string

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "shortener",
		Short:         "Manage short links and their visits",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagDB, "db", cfg.DatabaseURL, "database URL (defaults to DATABASE_URL)")

	root.AddCommand(
		newExportCmd(cfg),
		newImportCmd(cfg),
		newGeoLiteCmd(cfg),
		newVisitCmd(cfg),
	)

	return root
}

// openApp builds the application against the database selected by --db.
// Background workers are not started, commands call services directly.
func openApp(cfg *config.Config) (*app.App, error) {
	c := *cfg
	c.DatabaseURL = flagDB
	return app.New(&c)
}

func closeApp(a *app.App) {
	_ = a.Shutdown(context.Background())
}
