package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wadjakorntonsri/geo-shortener/pkg/config"
)

func newGeoLiteCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geolite",
		Short: "Manage the GeoLite2 database",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "update",
		Short: "Download the GeoLite2 database if it is missing or outdated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if err := a.Updater.CheckForDatabaseUpdate(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "GeoLite2 database is up to date at %s\n", cfg.GeoLite.DBPath)
			return nil
		},
	})

	return cmd
}

func newVisitCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visit",
		Short: "Manage recorded visits",
	}

	var limit int
	locate := &cobra.Command{
		Use:   "locate",
		Short: "Resolve the location of visits that have none yet",
		Long:  "Run the visit locator over stored visits without a location, e.g. those recorded while the GeoLite2 database was unavailable.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer closeApp(a)

			n, err := a.Locator.LocateUnlocatedVisits(cmd.Context(), limit)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d visits\n", n)
			return nil
		},
	}
	locate.Flags().IntVar(&limit, "limit", 0, "maximum number of visits to process (0 means all)")

	cmd.AddCommand(locate)

	return cmd
}
