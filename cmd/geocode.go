package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rentwise/geoenrich/internal/pipeline"
	"github.com/rentwise/geoenrich/pkg/osrm"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Warm the geocode cache without enriching",
	Long:  "Runs the primary and street-fallback geocoding passes over the property file, persisting results to the cache, without computing distances or nearest points.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		workers, _ := cmd.Flags().GetInt("workers")
		if workers <= 0 {
			workers = cfg.Enrich.Workers
		}

		table, err := pipeline.ReadProperties(input, cfg.Input.BlockColumn, cfg.Input.StreetColumn)
		if err != nil {
			return err
		}

		gs, ds, closeCaches, err := openCaches()
		if err != nil {
			return err
		}
		defer closeCaches()

		enricher := pipeline.New(newSearchClient(), nil, gs, ds,
			osrm.Coordinate{Lon: cfg.CBD.Longitude, Lat: cfg.CBD.Latitude},
			pipeline.Options{
				Workers:              workers,
				CacheTransientErrors: cfg.Cache.TransientErrors,
				OnProgress:           progressReporter(),
			},
		)

		stats, err := enricher.GeocodeOnly(ctx, table)
		if err != nil {
			return err
		}

		fmt.Printf("Geocoded %d distinct addresses: %d cache hits, %d new lookups, %d fixed by fallback, %d unresolved\n",
			stats.Addresses, stats.CacheHits, stats.Geocoded, stats.FallbackFixed, stats.Unresolved)
		return nil
	},
}

func init() {
	geocodeCmd.Flags().String("input", "property_database.csv", "property CSV to geocode")
	geocodeCmd.Flags().Int("workers", 0, "concurrent geocoding requests (0 = config default)")
	rootCmd.AddCommand(geocodeCmd)
}
