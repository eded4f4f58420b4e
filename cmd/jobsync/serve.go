package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kenjobs/jobsync/internal/config"
	"github.com/kenjobs/jobsync/internal/model"
	"github.com/kenjobs/jobsync/internal/scheduler"
	"github.com/kenjobs/jobsync/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the cache scheduler",
	Long:  "Serves the search and saved-jobs API, sweeps expired cache entries and keeps warm queries fresh. Blocks until SIGINT/SIGTERM.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := setupLogger(debug)
	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.close()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(a.agg, a.store, logger)
	srv.ExposeSources(a.sourceNames(), a.limiter)

	sched := scheduler.NewScheduler(a.cache, a.agg, warmQueries(a.cfg.WarmQueries), a.cfg.Cache.SweepSchedule, a.cfg.WarmSchedule, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, addr) })
	g.Go(func() error { return sched.Run(ctx) })
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("goodbye")
	return nil
}

func warmQueries(in []config.WarmQuery) []scheduler.WarmQuery {
	out := make([]scheduler.WarmQuery, 0, len(in))
	for _, w := range in {
		out = append(out, scheduler.WarmQuery{
			Query:    w.Query,
			Location: w.Location,
			Filters:  model.Filters{RemoteOnly: w.RemoteOnly, DatePosted: w.DatePosted},
		})
	}
	return out
}
