package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wadjakorntonsri/geo-shortener/pkg/config"
	"github.com/wadjakorntonsri/geo-shortener/pkg/core/domain"
)

func newExportCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export all links as JSON",
		Long:  "Write every link, deleted ones included, to stdout as a JSON array.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer closeApp(a)

			links, err := a.Repo.Dump(cmd.Context())
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(links)
		},
	}
}

func newImportCmd(cfg *config.Config) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import links from a JSON export",
		Long:  "Create the links found in a file produced by export. Short codes that already exist are skipped.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			defer f.Close()

			var links []domain.Link
			if err := json.NewDecoder(f).Decode(&links); err != nil {
				return fmt.Errorf("decode failed: %w", err)
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx := cmd.Context()
			count := 0
			for _, l := range links {
				existing, _ := a.Repo.GetByShortCode(ctx, l.ShortCode)
				if existing != nil {
					log.Info().Str("short_code", l.ShortCode).Msg("Skipping existing code")
					continue
				}

				if err := a.Repo.Create(ctx, &l); err != nil {
					log.Error().Err(err).Str("short_code", l.ShortCode).Msg("Failed to import link")
					continue
				}
				count++
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d links\n", count)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file to import")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
