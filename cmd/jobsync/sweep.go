package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired cache entries once",
	Long:  "Removes cache entries that expired longer ago than cache.stale_retention, then exits.",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	store, err := buildCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s cache: %w", cfg.Cache.Backend, err)
	}
	defer store.Close()

	removed, err := store.SweepExpired(ctx)
	if err != nil {
		return err
	}
	logger.Info("swept cache", "backend", cfg.Cache.Backend, "removed", removed)
	fmt.Printf("Removed %d expired cache entries\n", removed)
	return nil
}
