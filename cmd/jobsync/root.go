package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kenjobs/jobsync/internal/adapter"
	"github.com/kenjobs/jobsync/internal/aggregator"
	"github.com/kenjobs/jobsync/internal/cache"
	"github.com/kenjobs/jobsync/internal/config"
	"github.com/kenjobs/jobsync/internal/model"
	"github.com/kenjobs/jobsync/internal/ratelimit"
	"github.com/kenjobs/jobsync/internal/retry"
	"github.com/kenjobs/jobsync/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:           "jobsync",
	Short:         "Aggregate and cache jobs from external boards",
	Long:          "jobsync searches several job APIs at once, normalizes and caches the results, and merges them with jobs posted on the board itself.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBSYNC_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBSYNC_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	return config.Load(config.ResolvePath(path))
}

// setupLogger logs to stderr so search output on stdout stays parseable.
func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildSources creates one adapter per enabled source, each wrapped as
// retry(rateLimit(adapter)) so every attempt is admitted by the shared limiter.
func buildSources(cfg *config.Config, httpClient *http.Client, limiter *ratelimit.Limiter, logger *slog.Logger) []model.Source {
	var sources []model.Source
	for _, sc := range cfg.EnabledSources() {
		src, err := adapter.New(sc.Name, sc.Settings(), httpClient)
		if err != nil {
			logger.Warn("skipping source", "source", sc.Name, "error", err)
			continue
		}
		src = ratelimit.NewRateLimitedSource(src, limiter)
		src = retry.NewRetrySource(src, cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, logger)
		sources = append(sources, src)
		logger.Debug("registered source", "source", sc.Name)
	}
	return sources
}

func buildCache(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	retention := cfg.Cache.StaleRetention
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemoryStore(retention), nil
	case "redis":
		client, err := cache.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		return cache.NewRedisStore(client, retention), nil
	default:
		return cache.NewSQLiteStore(cfg.Cache.SQLitePath, retention)
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Store.SQLitePath)
	case "postgres":
		pool, err := store.NewPostgresPool(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pg, err := store.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return pg, nil
	default:
		return store.NewNopStore(), nil
	}
}

// app holds the components shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	limiter *ratelimit.Limiter
	cache   cache.Store
	store   store.Store
	agg     *aggregator.Aggregator
}

func newApp(ctx context.Context, logger *slog.Logger) (*app, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	cacheStore, err := buildCache(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", cfg.Cache.Backend, err)
	}
	jobStore, err := buildStore(ctx, cfg)
	if err != nil {
		cacheStore.Close()
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	limiter := ratelimit.NewLimiter(cfg.RateLimit.Default, cfg.RateLimit.Sources)
	sources := buildSources(cfg, httpClient, limiter, logger)
	if len(sources) == 0 {
		cacheStore.Close()
		jobStore.Close()
		return nil, fmt.Errorf("no usable sources configured")
	}

	agg := aggregator.New(sources, cacheStore, jobStore, aggregator.Options{
		DefaultLocation: cfg.DefaultLocation,
		TTL:             cfg.Cache.TTL,
		RefreshAhead:    cfg.Cache.RefreshAhead,
		SourceTimeout:   cfg.Search.SourceTimeout,
		PagesPerSource:  cfg.Search.PagesPerSource,
		DefaultLimit:    cfg.Search.DefaultLimit,
	}, logger)

	logger.Debug("config loaded",
		"sources", len(sources),
		"cache", cfg.Cache.Backend,
		"store", cfg.Store.Backend,
		"ttl", cfg.Cache.TTL.String(),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		limiter: limiter,
		cache:   cacheStore,
		store:   jobStore,
		agg:     agg,
	}, nil
}

// close waits for background refreshes, then releases the backends.
func (a *app) close() {
	a.agg.Wait()
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("closing cache", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}

func (a *app) sourceNames() []string {
	var names []string
	for _, s := range a.agg.Sources() {
		names = append(names, s.Name())
	}
	return names
}

// filterFlags are the search filters shared by several commands.
type filterFlags struct {
	location   string
	remote     bool
	datePosted string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.location, "location", "l", "", "location to search (default: default_location from config)")
	cmd.Flags().BoolVar(&f.remote, "remote", false, "only remote jobs")
	cmd.Flags().StringVar(&f.datePosted, "date-posted", "", "posting window: all, today, 3days, week, month")
}

func (f *filterFlags) filters() model.Filters {
	return model.Filters{RemoteOnly: f.remote, DatePosted: f.datePosted}
}

func queryArg(args []string) string {
	return strings.Join(args, " ")
}
