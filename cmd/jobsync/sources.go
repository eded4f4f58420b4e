package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kenjobs/jobsync/internal/adapter"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and their rate limits",
	Long:  "Reads the config and prints every configured source with its status and rate limit policy.",
	Args:  cobra.NoArgs,
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	fmt.Printf("%-12s %-10s %-10s %-10s %-13s %s\n", "Source", "Status", "Requests", "Window", "Min interval", "When exceeded")
	fmt.Println(strings.Repeat("─", 72))

	enabled := 0
	for _, s := range cfg.Sources {
		status := "disabled"
		if s.Enabled {
			status = "enabled"
			enabled++
		}

		p := cfg.RateLimit.PolicyFor(s.Name)
		requests := "unlimited"
		if p.MaxRequests > 0 {
			requests = fmt.Sprintf("%d", p.MaxRequests)
		}
		mode := "fail"
		if p.Block {
			mode = "wait"
		}
		fmt.Printf("%-12s %-10s %-10s %-10s %-13s %s\n", s.Name, status, requests, p.Window, p.MinInterval, mode)
	}

	fmt.Printf("\nTotal: %d sources (%d enabled). Known adapters: %s\n",
		len(cfg.Sources), enabled, strings.Join(adapter.Names(), ", "))
	return nil
}
