package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kenjobs/jobsync/internal/model"
	"github.com/kenjobs/jobsync/internal/store"
)

var savedUser string

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "Manage a user's saved jobs",
}

var savedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved jobs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSavedList,
}

var savedToggleCmd = &cobra.Command{
	Use:   "toggle JOB_ID",
	Short: "Save a job from the cache, or unsave it if already saved",
	Long:  "Looks the job up by id in the results of --query, then toggles it in the user's saved jobs.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSavedToggle,
}

var savedDeleteCmd = &cobra.Command{
	Use:   "delete JOB_ID",
	Short: "Remove a saved job",
	Args:  cobra.ExactArgs(1),
	RunE:  runSavedDelete,
}

var (
	toggleQuery string
	toggleFlags filterFlags
)

func init() {
	savedCmd.PersistentFlags().StringVarP(&savedUser, "user", "u", "", "user id (required)")
	savedCmd.MarkPersistentFlagRequired("user")

	savedToggleCmd.Flags().StringVarP(&toggleQuery, "query", "q", "", "search whose results contain the job (required)")
	savedToggleCmd.MarkFlagRequired("query")
	toggleFlags.register(savedToggleCmd)

	savedCmd.AddCommand(savedListCmd, savedToggleCmd, savedDeleteCmd)
	rootCmd.AddCommand(savedCmd)
}

// openStore opens only the persistent store; saved jobs never touch the cache
// or the sources.
func openStore(ctx context.Context) (store.Store, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Backend == "none" {
		return nil, fmt.Errorf("saved jobs need store.backend sqlite or postgres: %w", store.ErrStoreDisabled)
	}
	s, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	return s, nil
}

func runSavedList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	saved, err := s.ListSaved(ctx, savedUser)
	if err != nil {
		return err
	}
	if len(saved) == 0 {
		fmt.Printf("No saved jobs for %s.\n", savedUser)
		return nil
	}

	now := time.Now()
	fmt.Printf("%-28s %-36s %-20s %s\n", "Job ID", "Title", "Company", "Saved")
	fmt.Println(strings.Repeat("─", 100))
	for _, sj := range saved {
		fmt.Printf("%-28s %-36s %-20s %s\n",
			truncate(sj.JobID, 28),
			truncate(sj.Job.Title, 36),
			truncate(sj.Job.CompanyName, 20),
			humanize.RelTime(sj.SavedAt, now, "ago", "from now"),
		)
	}
	fmt.Printf("\nTotal: %d saved jobs\n", len(saved))
	return nil
}

func runSavedToggle(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, setupLogger(debug))
	if err != nil {
		return err
	}
	defer a.close()
	if a.cfg.Store.Backend == "none" {
		return fmt.Errorf("saved jobs need store.backend sqlite or postgres: %w", store.ErrStoreDisabled)
	}

	job, err := findJob(ctx, a, args[0])
	if err != nil {
		return err
	}

	saved, err := a.store.ToggleSaved(ctx, savedUser, job)
	if err != nil {
		return err
	}
	if saved {
		fmt.Printf("Saved %s (%s)\n", job.ID, job.Title)
	} else {
		fmt.Printf("Removed %s from saved jobs\n", job.ID)
	}
	return nil
}

// findJob walks the pages of the toggle query until it finds jobID.
func findJob(ctx context.Context, a *app, jobID string) (model.Job, error) {
	f := toggleFlags.filters()
	f.Limit = 100
	for page := 1; ; page++ {
		f.Page = page
		result, err := a.agg.Search(ctx, toggleQuery, toggleFlags.location, f)
		if err != nil {
			return model.Job{}, err
		}
		for _, j := range result.Jobs {
			if j.ID == jobID {
				return j, nil
			}
		}
		if page >= result.TotalPages {
			return model.Job{}, fmt.Errorf("job %s not found in results for %q", jobID, toggleQuery)
		}
	}
}

func runSavedDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteSaved(ctx, savedUser, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
