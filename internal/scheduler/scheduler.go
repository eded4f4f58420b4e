// Package scheduler runs periodic cache maintenance: sweeping expired
// entries and re-warming popular searches.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kenjobs/jobsync/internal/model"
)

const (
	DefaultSweepSpec = "@every 1h"
	DefaultWarmSpec  = "@every 12h"
)

// Sweeper deletes expired cache entries.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Refresher re-fetches one search and replaces its cache entry.
type Refresher interface {
	Refresh(ctx context.Context, query, location string, f model.Filters) (int, error)
}

// WarmQuery is a search kept fresh in the cache.
type WarmQuery struct {
	Query    string
	Location string
	Filters  model.Filters
}

// Scheduler owns the cron loop for sweeping and warming the cache.
type Scheduler struct {
	cron      *cron.Cron
	sweeper   Sweeper
	refresher Refresher
	warm      []WarmQuery
	sweepSpec string
	warmSpec  string
	pause     time.Duration
	logger    *slog.Logger
}

// NewScheduler creates a scheduler. Empty specs fall back to the defaults.
func NewScheduler(
	sweeper Sweeper,
	refresher Refresher,
	warm []WarmQuery,
	sweepSpec, warmSpec string,
	logger *slog.Logger,
) *Scheduler {
	if sweepSpec == "" {
		sweepSpec = DefaultSweepSpec
	}
	if warmSpec == "" {
		warmSpec = DefaultWarmSpec
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		sweeper:   sweeper,
		refresher: refresher,
		warm:      warm,
		sweepSpec: sweepSpec,
		warmSpec:  warmSpec,
		pause:     time.Second,
		logger:    logger,
	}
}

// Run registers the jobs, warms every query once, then blocks until ctx is
// cancelled. It returns nil on graceful shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.sweepSpec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("scheduling sweep %q: %w", s.sweepSpec, err)
	}
	if len(s.warm) > 0 && s.refresher != nil {
		if _, err := s.cron.AddFunc(s.warmSpec, func() { s.WarmAll(ctx) }); err != nil {
			return fmt.Errorf("scheduling warm-up %q: %w", s.warmSpec, err)
		}
	}

	s.logger.Info("starting scheduler",
		"sweep", s.sweepSpec,
		"warm", s.warmSpec,
		"warm_queries", len(s.warm),
	)
	s.cron.Start()

	s.WarmAll(ctx)

	<-ctx.Done()
	s.logger.Info("shutting down scheduler")
	<-s.cron.Stop().Done()
	return nil
}

// Sweep runs one cache sweep.
func (s *Scheduler) Sweep(ctx context.Context) {
	removed, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("cache sweep failed", "error", err)
		return
	}
	s.logger.Info("swept cache", "removed", removed)
}

// WarmAll refreshes each warm query in order with a short pause between them.
func (s *Scheduler) WarmAll(ctx context.Context) {
	if s.refresher == nil {
		return
	}
	for i, w := range s.warm {
		if ctx.Err() != nil {
			return
		}

		n, err := s.refresher.Refresh(ctx, w.Query, w.Location, w.Filters)
		if err != nil {
			s.logger.Error("warm-up failed",
				"query", w.Query,
				"location", w.Location,
				"error", err,
			)
		} else {
			s.logger.Info("warmed query", "query", w.Query, "location", w.Location, "jobs", n)
		}

		if i < len(s.warm)-1 && s.pause > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.pause):
			}
		}
	}
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
