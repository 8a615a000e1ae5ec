package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rentwise/geoenrich/internal/geocache"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache statistics",
	RunE: func(_ *cobra.Command, _ []string) error {
		gs, ds, closeCaches, err := openCaches()
		if err != nil {
			return err
		}
		defer closeCaches()

		counts := map[geocache.Status]int{}
		gs.Each(func(e geocache.GeocodeEntry) {
			counts[e.Status]++
		})

		fmt.Printf("Cache driver: %s\n", cfg.Cache.Driver)
		fmt.Printf("Geocode cache: %d entries (%d ok, %d not_found, %d error)\n",
			gs.Len(), counts[geocache.StatusOK], counts[geocache.StatusNotFound], counts[geocache.StatusError])
		fmt.Printf("Distance cache: %d entries\n", ds.Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
