package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rentwise/geoenrich/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geoenrich",
	Short: "Property listing geo-enrichment pipeline",
	Long:  "Geocodes property addresses, computes driving distance to the CBD, and finds the nearest school and MRT station, with persistent lookup caches.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
