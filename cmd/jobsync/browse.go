package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kenjobs/jobsync/internal/browse"
	"github.com/kenjobs/jobsync/internal/model"
)

var (
	browseFlags filterFlags
	browseUser  string
)

var browseCmd = &cobra.Command{
	Use:   "browse [QUERY...]",
	Short: "Browse search results interactively (TUI)",
	Long:  "Searches with a spinner, then opens a list and detail view. Without a query, picks one of the configured warm queries.",
	RunE:  runBrowse,
}

func init() {
	browseFlags.register(browseCmd)
	browseCmd.Flags().StringVar(&browseUser, "user", "", "user id for saving jobs with 's' (needs a store backend)")
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	// Log output would corrupt the alt screen.
	a, err := newApp(context.Background(), silentLogger())
	if err != nil {
		return err
	}
	defer a.close()

	query, location, f := queryArg(args), browseFlags.location, browseFlags.filters()
	if query == "" {
		choices := make([]browse.Choice, 0, len(a.cfg.WarmQueries))
		for _, w := range a.cfg.WarmQueries {
			choices = append(choices, browse.Choice(w))
		}
		if len(choices) == 0 {
			return fmt.Errorf("no query given and no warm_queries configured")
		}
		idx, err := browse.RunPicker(choices)
		if err != nil {
			return err
		}
		if idx < 0 {
			return nil
		}
		c := choices[idx]
		query, location = c.Query, c.Location
		f = model.Filters{RemoteOnly: c.RemoteOnly, DatePosted: c.DatePosted}
	}

	search := func(ctx context.Context, page int) (model.Result, error) {
		pf := f
		pf.Page = page
		return a.agg.Search(ctx, query, location, pf)
	}

	result, err := browse.RunLoader(fmt.Sprintf("%q", query), func(ctx context.Context) (model.Result, error) {
		return search(ctx, 1)
	})
	if errors.Is(err, browse.ErrCancelled) {
		return nil
	}
	if err != nil {
		fmt.Println(browse.ErrorView(err))
		return err
	}

	title := query
	if location != "" {
		title += " in " + location
	}
	opts := browse.Options{Title: title, Fetch: search}
	if browseUser != "" && a.cfg.Store.Backend != "none" {
		opts.Save = func(ctx context.Context, job model.Job) (bool, error) {
			return a.store.ToggleSaved(ctx, browseUser, job)
		}
	}
	return browse.Run(result, opts)
}
