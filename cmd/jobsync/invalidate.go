package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var invalidateFlags filterFlags

var invalidateCmd = &cobra.Command{
	Use:   "invalidate QUERY...",
	Short: "Drop the cached result for one search",
	Long:  "Deletes the cache entry for the given query, location and filters so the next search fetches live.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInvalidate,
}

func init() {
	invalidateFlags.register(invalidateCmd)
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, setupLogger(debug))
	if err != nil {
		return err
	}
	defer a.close()

	query := queryArg(args)
	if err := a.agg.Invalidate(ctx, query, invalidateFlags.location, invalidateFlags.filters()); err != nil {
		return err
	}
	fmt.Printf("Invalidated cache for %q\n", query)
	return nil
}
