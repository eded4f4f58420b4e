package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kenjobs/jobsync/internal/model"
)

var (
	searchFlags filterFlags
	searchPage  int
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Search all sources once and print the results",
	Long:  "Runs one search through the cache and, on a miss, every enabled source. Prints a table, or the full result as JSON with --json.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchFlags.register(searchCmd)
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "result page")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "jobs per page (default: search.default_limit from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := setupLogger(debug)
	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.close()

	f := searchFlags.filters()
	f.Page = searchPage
	f.Limit = searchLimit

	result, err := a.agg.Search(ctx, queryArg(args), searchFlags.location, f)
	if err != nil {
		return err
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(os.Stdout, result, time.Now())
	return nil
}

func printResult(w io.Writer, r model.Result, now time.Time) {
	fmt.Fprintf(w, "%s · %s jobs · page %d/%d\n\n", r.Source, humanize.Comma(int64(r.Total)), r.Page, max(r.TotalPages, 1))
	if len(r.Jobs) == 0 {
		fmt.Fprintln(w, "No jobs found.")
		return
	}

	fmt.Fprintf(w, "%-40s %-22s %-22s %-10s %s\n", "Title", "Company", "Location", "Source", "Posted")
	fmt.Fprintln(w, strings.Repeat("─", 110))
	for _, j := range r.Jobs {
		posted := "n/a"
		if !j.PostedAt.IsZero() {
			posted = humanize.RelTime(j.PostedAt, now, "ago", "from now")
		}
		fmt.Fprintf(w, "%-40s %-22s %-22s %-10s %s\n",
			truncate(j.Title, 40),
			truncate(j.CompanyName, 22),
			truncate(j.Location, 22),
			truncate(j.Source, 10),
			posted,
		)
	}
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
