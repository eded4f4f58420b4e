// Package aggregator runs cached, fan-out searches across job sources.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kenjobs/jobsync/internal/bridge"
	"github.com/kenjobs/jobsync/internal/cache"
	"github.com/kenjobs/jobsync/internal/filter"
	"github.com/kenjobs/jobsync/internal/model"
	"github.com/kenjobs/jobsync/internal/normalize"
)

const (
	DefaultSourceTimeout = 8 * time.Second
	DefaultTTL           = 48 * time.Hour
	DefaultLimit         = 10
	MaxLimit             = 100
)

// ErrAllSourcesFailed is returned by Refresh when no source produced jobs and
// at least one of them failed.
var ErrAllSourcesFailed = errors.New("all sources failed")

// Options tune the aggregator. Zero values fall back to defaults.
type Options struct {
	DefaultLocation string
	TTL             time.Duration
	RefreshAhead    time.Duration // age at which a cache hit triggers a background refresh; zero disables
	SourceTimeout   time.Duration
	PagesPerSource  int
	DefaultLimit    int
}

// Aggregator answers searches from the cache, falling back to a concurrent
// fetch across all sources on a miss.
type Aggregator struct {
	sources    []model.Source
	cache      cache.Store
	internal   model.InternalJobSource
	normalizer *normalize.Normalizer
	opts       Options
	logger     *slog.Logger
	now        func() time.Time

	flight     singleflight.Group
	refreshing sync.Map
	bg         sync.WaitGroup
}

// New creates an aggregator. Sources are consulted in the given order, which
// is also the order their jobs appear in results. internal may be nil.
func New(
	sources []model.Source,
	store cache.Store,
	internal model.InternalJobSource,
	opts Options,
	logger *slog.Logger,
) *Aggregator {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultSourceTimeout
	}
	if opts.PagesPerSource <= 0 {
		opts.PagesPerSource = 1
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	return &Aggregator{
		sources:    sources,
		cache:      store,
		internal:   internal,
		normalizer: normalize.New(),
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source used for fetch timestamps, refresh-ahead
// age checks and date filters.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
	a.normalizer = normalize.NewWithClock(now)
}

// Sources returns the configured sources in fetch order.
func (a *Aggregator) Sources() []model.Source {
	return slices.Clone(a.sources)
}

// Search returns one page of jobs for query. The only error it returns wraps
// model.ErrInvalidQuery; every other failure degrades to fewer or stale jobs.
func (a *Aggregator) Search(ctx context.Context, query, location string, f model.Filters) (model.Result, error) {
	q, f, err := a.prepare(query, location, f)
	if err != nil {
		return model.Result{}, err
	}
	key := cache.Key(q.Text, q.Location, f)

	jobs, provenance := a.lookup(ctx, key, q, f)
	internal := a.internalJobs(ctx, query, location, f)
	merged := bridge.Merge(internal, jobs)

	return paginate(merged, provenance, f.Page, f.Limit), nil
}

// Refresh fetches query live and replaces its cache entry. It returns the
// number of jobs cached.
func (a *Aggregator) Refresh(ctx context.Context, query, location string, f model.Filters) (int, error) {
	q, f, err := a.prepare(query, location, f)
	if err != nil {
		return 0, err
	}
	key := cache.Key(q.Text, q.Location, f)
	out, err := a.fetchShared(ctx, key, q, f)
	if err != nil {
		return 0, fmt.Errorf("refreshing %q: %w", q.Text, err)
	}
	if len(out.jobs) == 0 && out.failed > 0 {
		return 0, fmt.Errorf("refreshing %q: %w (%d of %d)", q.Text, ErrAllSourcesFailed, out.failed, len(a.sources))
	}
	return len(out.jobs), nil
}

// Invalidate removes the cache entry for a search.
func (a *Aggregator) Invalidate(ctx context.Context, query, location string, f model.Filters) error {
	q, f, err := a.prepare(query, location, f)
	if err != nil {
		return err
	}
	key := cache.Key(q.Text, q.Location, f)
	if err := a.cache.Invalidate(ctx, key); err != nil {
		return fmt.Errorf("invalidating %q: %w", q.Text, err)
	}
	a.logger.Info("cache entry invalidated", "key", key, "query", q.Text, "location", q.Location)
	return nil
}

// Wait blocks until background refreshes and fetches left behind by abandoned
// searches have finished.
func (a *Aggregator) Wait() {
	a.bg.Wait()
}

func (a *Aggregator) prepare(query, location string, f model.Filters) (model.Query, model.Filters, error) {
	text := strings.Join(strings.Fields(query), " ")
	if text == "" {
		return model.Query{}, f, fmt.Errorf("%w: query is empty", model.ErrInvalidQuery)
	}
	if f.Page < 0 || f.Limit < 0 {
		return model.Query{}, f, fmt.Errorf("%w: page and limit must not be negative", model.ErrInvalidQuery)
	}
	f.DatePosted = strings.ToLower(strings.TrimSpace(f.DatePosted))
	if f.DatePosted != "" && !slices.Contains(filter.DatePostedValues, f.DatePosted) {
		return model.Query{}, f, fmt.Errorf("%w: unknown date_posted %q", model.ErrInvalidQuery, f.DatePosted)
	}
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = a.opts.DefaultLimit
	}
	f.Limit = min(f.Limit, MaxLimit)

	loc := strings.Join(strings.Fields(location), " ")
	if loc == "" {
		loc = a.opts.DefaultLocation
	}
	return model.Query{
		Text:       text,
		Location:   loc,
		RemoteOnly: f.RemoteOnly,
		DatePosted: f.DatePosted,
	}, f, nil
}

func (a *Aggregator) lookup(ctx context.Context, key string, q model.Query, f model.Filters) ([]model.Job, model.Provenance) {
	entry, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
	}
	if ok {
		if a.opts.RefreshAhead > 0 && entry.Age(a.now()) >= a.opts.RefreshAhead {
			a.refreshAsync(key, q, f)
		}
		a.logger.Debug("cache hit", "key", key, "jobs", len(entry.Jobs))
		return entry.Jobs, model.ProvenanceCache
	}

	out, err := a.fetchShared(ctx, key, q, f)
	if err != nil {
		return nil, model.ProvenanceLive
	}
	if len(out.jobs) > 0 {
		return out.jobs, model.ProvenanceLive
	}
	if out.failed == 0 {
		return nil, model.ProvenanceLive
	}

	stale, ok, err := a.cache.GetIgnoringExpiry(ctx, key)
	if err != nil {
		a.logger.Warn("stale cache read failed", "key", key, "error", err)
	}
	if ok {
		a.logger.Warn("serving stale results", "key", key, "jobs", len(stale.Jobs), "age", a.now().Sub(stale.CreatedAt).Round(time.Second))
		return stale.Jobs, model.ProvenanceStaleFallback
	}
	return nil, model.ProvenanceStaleFallback
}

type outcome struct {
	jobs   []model.Job
	failed int
}

// fetchShared runs one live fetch per key at a time; concurrent callers for
// the same key share its outcome. The fetch runs on a context detached from
// ctx's cancellation: a caller whose ctx ends gets ctx.Err() at once while the
// fetch carries on and still populates the cache. Wait drains such fetches.
func (a *Aggregator) fetchShared(ctx context.Context, key string, q model.Query, f model.Filters) (outcome, error) {
	detached := context.WithoutCancel(ctx)
	ch := a.flight.DoChan(key, func() (any, error) {
		out := a.fetchLive(detached, q, f)
		if len(out.jobs) > 0 {
			if err := a.cache.Put(detached, key, out.jobs, a.opts.TTL); err != nil {
				a.logger.Warn("cache write failed", "key", key, "error", err)
			}
		}
		return out, nil
	})

	done := make(chan outcome, 1)
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		res := <-ch
		if res.Shared {
			a.logger.Debug("joined in-flight fetch", "key", key)
		}
		done <- res.Val.(outcome)
	}()

	select {
	case out := <-done:
		return out, nil
	case <-ctx.Done():
		a.logger.Debug("search abandoned, fetch continues in background", "key", key)
		return outcome{}, ctx.Err()
	}
}

func (a *Aggregator) fetchLive(ctx context.Context, q model.Query, f model.Filters) outcome {
	raw := make([][]model.RawRecord, len(a.sources))
	errs := make([]error, len(a.sources))

	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			raw[i], errs[i] = a.fetchSource(ctx, src, q)
			return nil
		})
	}
	g.Wait()

	var (
		jobs    []model.Job
		failed  int
		fetched int
		dropped int
	)
	for i, src := range a.sources {
		if errs[i] != nil {
			failed++
			a.logger.Warn("source failed",
				"source", src.Name(),
				"reason", model.Reason(errs[i]),
				"error", errs[i],
			)
			continue
		}
		normalized, n := a.normalizer.NormalizeAll(raw[i], src.Name())
		fetched += len(raw[i])
		dropped += n
		jobs = append(jobs, normalized...)
	}

	jobs = normalize.Dedupe(jobs)
	if rf := filter.NewResultFilter(f, a.now); rf.Active() {
		jobs = filter.Apply(jobs, rf)
	}

	a.logger.Info("fetched live results",
		"query", q.Text,
		"location", q.Location,
		"sources", len(a.sources),
		"failed", failed,
		"fetched", fetched,
		"dropped", dropped,
		"kept", len(jobs),
	)
	return outcome{jobs: jobs, failed: failed}
}

// fetchSource reads pages 1..PagesPerSource from src within SourceTimeout,
// stopping at the first empty page. A failure after the first page keeps the
// pages already read.
func (a *Aggregator) fetchSource(ctx context.Context, src model.Source, q model.Query) ([]model.RawRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.SourceTimeout)
	defer cancel()

	var all []model.RawRecord
	for page := 1; page <= a.opts.PagesPerSource; page++ {
		records, err := src.Fetch(ctx, q, page)
		if err != nil {
			if page > 1 {
				a.logger.Warn("source page failed, keeping earlier pages",
					"source", src.Name(), "page", page, "reason", model.Reason(err))
				return all, nil
			}
			return nil, err
		}
		if len(records) == 0 {
			break
		}
		all = append(all, records...)
	}
	return all, nil
}

func (a *Aggregator) refreshAsync(key string, q model.Query, f model.Filters) {
	if _, busy := a.refreshing.LoadOrStore(key, struct{}{}); busy {
		return
	}
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		defer a.refreshing.Delete(key)

		a.logger.Debug("refreshing ahead of expiry", "key", key)
		out, _ := a.fetchShared(context.Background(), key, q, f)
		if len(out.jobs) == 0 {
			a.logger.Warn("background refresh produced no jobs", "key", key, "failed", out.failed)
		}
	}()
}

func (a *Aggregator) internalJobs(ctx context.Context, query, location string, f model.Filters) []model.Job {
	if a.internal == nil {
		return nil
	}
	jobs, err := a.internal.ListOpenJobs(ctx, strings.TrimSpace(query), strings.TrimSpace(location))
	if err != nil {
		a.logger.Warn("listing internal jobs failed", "error", err)
		return nil
	}
	if rf := filter.NewResultFilter(f, a.now); rf.Active() {
		jobs = filter.Apply(jobs, rf)
	}
	return jobs
}

func paginate(jobs []model.Job, provenance model.Provenance, page, limit int) model.Result {
	total := len(jobs)
	start := total
	if page-1 < (total+limit-1)/limit {
		start = (page - 1) * limit
	}
	end := min(start+limit, total)

	out := make([]model.Job, 0, end-start)
	out = append(out, jobs[start:end]...)

	return model.Result{
		Jobs:       out,
		Total:      total,
		Source:     provenance,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}
}
