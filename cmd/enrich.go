package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rentwise/geoenrich/internal/pipeline"
	"github.com/rentwise/geoenrich/pkg/osrm"

	"github.com/rentwise/geoenrich/internal/geocache"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run the full enrichment pipeline",
	Long:  "Geocodes every distinct property address, computes CBD driving distances and nearest school/MRT station, and writes the property table with enrichment columns appended.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		workers, _ := cmd.Flags().GetInt("workers")
		if workers <= 0 {
			workers = cfg.Enrich.Workers
		}

		log := zap.L().With(
			zap.String("command", "enrich"),
			zap.String("run_id", uuid.NewString()),
		)

		table, err := pipeline.ReadProperties(input, cfg.Input.BlockColumn, cfg.Input.StreetColumn)
		if err != nil {
			return err
		}

		gs, ds, closeCaches, err := openCaches()
		if err != nil {
			return err
		}
		defer closeCaches()

		search := newSearchClient()
		router := newRouterClient()

		schools, stations, err := loadReferenceSets(ctx, search)
		if err != nil {
			return err
		}

		enricher := pipeline.New(search, router, gs, ds,
			osrm.Coordinate{Lon: cfg.CBD.Longitude, Lat: cfg.CBD.Latitude},
			pipeline.Options{
				Workers:              workers,
				CacheTransientErrors: cfg.Cache.TransientErrors,
				OnProgress:           progressReporter(),
			},
		)

		byAddress, stats, err := enricher.Enrich(ctx, table, schools, stations)
		if err != nil {
			return err
		}

		if err := pipeline.WriteEnriched(output, table, byAddress, geocache.NormalizeKey); err != nil {
			return err
		}

		log.Info("run finished",
			zap.Int("properties", stats.Properties),
			zap.Int("addresses", stats.Addresses),
			zap.Int("unresolved", stats.Unresolved),
			zap.String("output", output),
		)
		fmt.Printf("Enriched %d properties (%d distinct addresses, %d unresolved) -> %s\n",
			stats.Properties, stats.Addresses, stats.Unresolved, output)
		return nil
	},
}

func init() {
	enrichCmd.Flags().String("input", "property_database.csv", "property CSV to enrich")
	enrichCmd.Flags().String("output", "property_database_enriched.csv", "output CSV path")
	enrichCmd.Flags().Int("workers", 0, "concurrent geocoding requests (0 = config default)")
	rootCmd.AddCommand(enrichCmd)
}
