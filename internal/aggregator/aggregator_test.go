package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kenjobs/jobsync/internal/cache"
	"github.com/kenjobs/jobsync/internal/model"
)

// --- Fakes ---

// fakeSource returns canned pages, an error, or blocks until its context ends.
type fakeSource struct {
	name  string
	pages map[int][]model.RawRecord
	err   error
	hang  bool
	gate  chan struct{} // when set, Fetch waits for it to close
	calls atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, _ model.Query, page int) ([]model.RawRecord, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.hang {
		<-ctx.Done()
		return nil, &model.SourceError{Source: f.name, Kind: model.KindTimeout, Err: ctx.Err()}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[page], nil
}

func source(name string, records ...model.RawRecord) *fakeSource {
	return &fakeSource{name: name, pages: map[int][]model.RawRecord{1: records}}
}

func failing(name string, err error) *fakeSource {
	return &fakeSource{name: name, err: err}
}

// brokenStore fails every operation.
type brokenStore struct {
	puts atomic.Int32
}

func (b *brokenStore) Get(context.Context, string) (cache.Entry, bool, error) {
	return cache.Entry{}, false, fmt.Errorf("%w: disk on fire", model.ErrCacheRead)
}
func (b *brokenStore) GetIgnoringExpiry(context.Context, string) (cache.Entry, bool, error) {
	return cache.Entry{}, false, fmt.Errorf("%w: disk on fire", model.ErrCacheRead)
}
func (b *brokenStore) Put(context.Context, string, []model.Job, time.Duration) error {
	b.puts.Add(1)
	return fmt.Errorf("%w: disk on fire", model.ErrCacheWrite)
}
func (b *brokenStore) Invalidate(context.Context, string) error   { return nil }
func (b *brokenStore) SweepExpired(context.Context) (int, error) { return 0, nil }
func (b *brokenStore) Close() error                               { return nil }

type fakeInternal struct {
	jobs []model.Job
	err  error
}

func (f *fakeInternal) ListOpenJobs(context.Context, string, string) ([]model.Job, error) {
	return f.jobs, f.err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(id, title string) model.RawRecord {
	return model.RawRecord{
		NativeID:    id,
		Title:       title,
		Description: "Build things with the team",
		CompanyName: "Company " + id,
		Location:    "Nairobi",
		URL:         "https://jobs.example.com/" + id,
	}
}

func records(n int, prefix string) []model.RawRecord {
	out := make([]model.RawRecord, n)
	for i := range out {
		id := fmt.Sprintf("%s%d", prefix, i)
		out[i] = record(id, "Developer "+id)
	}
	return out
}

type fixture struct {
	agg   *Aggregator
	store *cache.MemoryStore
	clock *clock
}

func newFixture(t *testing.T, opts Options, internal model.InternalJobSource, sources ...model.Source) fixture {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := cache.NewMemoryStore(7 * 24 * time.Hour)
	store.SetClock(c.Now)
	if opts.DefaultLocation == "" {
		opts.DefaultLocation = "Kenya"
	}
	if opts.SourceTimeout == 0 {
		opts.SourceTimeout = 200 * time.Millisecond
	}
	agg := New(sources, store, internal, opts, discardLogger())
	agg.SetClock(c.Now)
	t.Cleanup(agg.Wait)
	return fixture{agg: agg, store: store, clock: c}
}

// --- Tests ---

func TestSearch_EndToEnd(t *testing.T) {
	first := record("1", "Go Developer")
	a := source("alpha", first, record("2", "Python Developer"), record("3", "Программист"))
	b := source("beta", first)
	c := &fakeSource{name: "gamma", hang: true}

	fx := newFixture(t, Options{SourceTimeout: 50 * time.Millisecond}, nil, a, b, c)

	res, err := fx.agg.Search(context.Background(), "developer", "Kenya", model.Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != model.ProvenanceLive {
		t.Errorf("expected live, got %s", res.Source)
	}
	if res.Total != 2 || len(res.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got total=%d len=%d", res.Total, len(res.Jobs))
	}
	if res.Jobs[0].ID != "alpha:1" || res.Jobs[1].ID != "alpha:2" {
		t.Errorf("unexpected ids: %s, %s", res.Jobs[0].ID, res.Jobs[1].ID)
	}

	entry, ok, err := fx.store.Get(context.Background(), cache.Key("developer", "kenya", model.Filters{}))
	if err != nil || !ok {
		t.Fatalf("expected cached entry, ok=%v err=%v", ok, err)
	}
	if len(entry.Jobs) != 2 {
		t.Errorf("expected 2 cached jobs, got %d", len(entry.Jobs))
	}
}

func TestSearch_PartialFailure(t *testing.T) {
	ok1 := source("one", record("a", "Backend Developer"))
	ok2 := source("two", record("b", "Frontend Developer"))
	bad1 := failing("three", &model.SourceError{Source: "three", Kind: model.KindHTTP, StatusCode: 500, Err: errors.New("boom")})
	bad2 := failing("four", fmt.Errorf("admitting four: %w", model.ErrRateLimitExceeded))

	fx := newFixture(t, Options{}, nil, ok1, bad1, ok2, bad2)

	res, err := fx.agg.Search(context.Background(), "developer", "", model.Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != model.ProvenanceLive || res.Total != 2 {
		t.Fatalf("expected 2 live jobs, got %s total=%d", res.Source, res.Total)
	}
	if res.Jobs[0].Source != "one" || res.Jobs[1].Source != "two" {
		t.Errorf("expected jobs in source order, got %s then %s", res.Jobs[0].Source, res.Jobs[1].Source)
	}
}

func TestSearch_AllFailServesStale(t *testing.T) {
	src := source("one", record("a", "Backend Developer"))
	fx := newFixture(t, Options{TTL: time.Hour}, nil, src)
	ctx := context.Background()

	if _, err := fx.agg.Search(ctx, "developer", "", model.Filters{}); err != nil {
		t.Fatalf("priming search: %v", err)
	}

	fx.clock.Advance(2 * time.Hour)
	src.err = &model.SourceError{Source: "one", Kind: model.KindTimeout, Err: context.DeadlineExceeded}

	res, err := fx.agg.Search(ctx, "developer", "", model.Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != model.ProvenanceStaleFallback {
		t.Errorf("expected stale-fallback, got %s", res.Source)
	}
	if res.Total != 1 || res.Jobs[0].ID != "one:a" {
		t.Errorf("expected stale payload, got %+v", res.Jobs)
	}
}

func TestSearch_AllFailNoStale(t *testing.T) {
	fx := newFixture(t, Options{}, nil,
		failing("one", errors.New("network down")),
		failing("two", model.ErrRateLimitExceeded),
	)

	res, err := fx.agg.Search(context.Background(), "developer", "", model.Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != model.ProvenanceStaleFallback {
		t.Errorf("expected stale-fallback, got %s", res.Source)
	}
	if res.Total != 0 || res.Jobs == nil || len(res.Jobs) != 0 {
		t.Errorf("expected empty non-nil jobs, got %#v", res.Jobs)
	}
}

func TestSearch_EmptyWithoutFailuresIsLiveAndUncached(t *testing.T) {
	fx := newFixture(t, Options{}, nil, source("one"), source("two"))

	res, err := fx.agg.Search(context.Background(), "underwater basket weaving", "", model.Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != model.ProvenanceLive || res.Total != 0 {
		t.Errorf("expected empty live result, got %s total=%d", res.Source, res.Total)
	}
	if fx.store.Len() != 0 {
		t.Errorf("expected nothing cached, got %d entries", fx.store.Len())
	}
}

func TestSearch_CacheHit(t *testing.T) {
	src := source("one", record("a", "Backend Developer"))
	fx := newFixture(t, Options{}, nil, src)
	ctx := context.Background()

	if _, err := fx.agg.Search(ctx, "developer", "Kenya", model.Filters{}); err != nil {
		t.Fatalf("first search: %v", err)
	}
	res, err := fx.agg.Search(ctx, "  Developer ", "kenya", model.Filters{Page: 1, Limit: 5})
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if res.Source != model.ProvenanceCache {
		t.Errorf("expected cache, got %s", res.Source)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected 1 source call, got %d", got)
	}
}

func TestSearch_InvalidQuery(t *testing.T) {
	src := source("one", record("a", "Backend Developer"))
	fx := newFixture(t, Options{}, nil, src)

	tests := []struct {
		name    string
		query   string
		filters model.Filters
	}{
		{"empty query", "   ", model.Filters{}},
		{"negative page", "developer", model.Filters{Page: -1}},
		{"negative limit", "developer", model.Filters{Limit: -5}},
		{"unknown date_posted", "developer", model.Filters{DatePosted: "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.agg.Search(context.Background(), tt.query, "", tt.filters)
			if !errors.Is(err, model.ErrInvalidQuery) {
				t.Errorf("expected ErrInvalidQuery, got %v", err)
			}
		})
	}
	if got := src.calls.Load(); got != 0 {
		t.Errorf("expected no source calls, got %d", got)
	}
}

func TestSearch_Pagination(t *testing.T) {
	fx := newFixture(t, Options{}, nil, source("one", records(25, "j")...))
	ctx := context.Background()

	res, err := fx.agg.Search(ctx, "developer", "", model.Filters{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 25 || res.TotalPages != 3 || res.Page != 2 || res.Limit != 10 {
		t.Errorf("unexpected paging: %+v", res)
	}
	if len(res.Jobs) != 10 || res.Jobs[0].ID != "one:j10" {
		t.Errorf("unexpected page contents: len=%d first=%v", len(res.Jobs), res.Jobs)
	}

	res, _ = fx.agg.Search(ctx, "developer", "", model.Filters{Page: 3, Limit: 10})
	if len(res.Jobs) != 5 {
		t.Errorf("expected 5 jobs on last page, got %d", len(res.Jobs))
	}

	res, _ = fx.agg.Search(ctx, "developer", "", model.Filters{Page: 9, Limit: 10})
	if len(res.Jobs) != 0 || res.Total != 25 {
		t.Errorf("expected empty page past the end, got %d jobs", len(res.Jobs))
	}

	res, _ = fx.agg.Search(ctx, "developer", "", model.Filters{})
	if res.Page != 1 || res.Limit != DefaultLimit || len(res.Jobs) != DefaultLimit {
		t.Errorf("expected default paging, got page=%d limit=%d", res.Page, res.Limit)
	}

	res, _ = fx.agg.Search(ctx, "developer", "", model.Filters{Limit: 500})
	if res.Limit != MaxLimit || res.TotalPages != 1 {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, res.Limit)
	}
}

func TestSearch_RefreshAhead(t *testing.T) {
	src := source("one", record("a", "Backend Developer"))
	fx := newFixture(t, Options{TTL: 48 * time.Hour, RefreshAhead: 36 * time.Hour}, nil, src)
	ctx := context.Background()

	if _, err := fx.agg.Search(ctx, "developer", "", model.Filters{}); err != nil {
		t.Fatalf("priming search: %v", err)
	}
	fx.clock.Advance(40 * time.Hour)

	res, err := fx.agg.Search(ctx, "developer", "", model.Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != model.ProvenanceCache {
		t.Errorf("expected the caller to get the cached entry, got %s", res.Source)
	}

	fx.agg.Wait()
	if got := src.calls.Load(); got != 2 {
		t.Errorf("expected a background refresh, got %d source calls", got)
	}
	entry, ok, _ := fx.store.Get(ctx, cache.Key("developer", "Kenya", model.Filters{}))
	if !ok || !entry.CreatedAt.Equal(fx.clock.Now()) {
		t.Errorf("expected entry rewritten at %v, got %v", fx.clock.Now(), entry.CreatedAt)
	}
}

func TestSearch_RefreshAheadFailureIsSwallowed(t *testing.T) {
	src := source("one", record("a", "Backend Developer"))
	fx := newFixture(t, Options{TTL: 48 * time.Hour, RefreshAhead: time.Hour}, nil, src)
	ctx := context.Background()

	fx.agg.Search(ctx, "developer", "", model.Filters{})
	fx.clock.Advance(2 * time.Hour)
	src.err = errors.New("provider down")

	res, err := fx.agg.Search(ctx, "developer", "", model.Filters{})
	fx.agg.Wait()
	if err != nil || res.Source != model.ProvenanceCache || res.Total != 1 {
		t.Fatalf("expected cached result, got %+v err=%v", res, err)
	}
	if _, ok, _ := fx.store.Get(ctx, cache.Key("developer", "Kenya", model.Filters{})); !ok {
		t.Error("failed refresh must not remove the entry")
	}
}

func TestSearch_CacheErrorsDegrade(t *testing.T) {
	store := &brokenStore{}
	agg := New([]model.Source{source("one", record("a", "Backend Developer"))}, store, nil, Options{}, discardLogger())

	res, err := agg.Search(context.Background(), "developer", "", model.Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != model.ProvenanceLive || res.Total != 1 {
		t.Errorf("expected live result despite cache errors, got %s total=%d", res.Source, res.Total)
	}
	if store.puts.Load() != 1 {
		t.Errorf("expected one write attempt, got %d", store.puts.Load())
	}
}

func TestSearch_ConcurrentMissesShareFetch(t *testing.T) {
	gate := make(chan struct{})
	src := source("one", record("a", "Backend Developer"))
	src.gate = gate
	fx := newFixture(t, Options{SourceTimeout: time.Second}, nil, src)

	var wg sync.WaitGroup
	results := make([]model.Result, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = fx.agg.Search(context.Background(), "developer", "", model.Filters{})
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected 1 source call, got %d", got)
	}
	for i, r := range results {
		if r.Total != 1 {
			t.Errorf("caller %d got %d jobs", i, r.Total)
		}
	}
}

func TestSearch_AbandonedSearchStillCaches(t *testing.T) {
	src := source("one", record("a", "Backend Developer"))
	src.gate = make(chan struct{})
	fx := newFixture(t, Options{SourceTimeout: 5 * time.Second}, nil, src)

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan model.Result, 1)
	go func() {
		res, err := fx.agg.Search(ctx, "developer", "", model.Filters{})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		returned <- res
	}()

	cancel()
	select {
	case res := <-returned:
		if res.Total != 0 {
			t.Errorf("expected no jobs for an abandoned search, got %d", res.Total)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Search did not return after its context was cancelled")
	}

	close(src.gate)
	fx.agg.Wait()
	if fx.store.Len() != 1 {
		t.Error("expected abandoned search to populate the cache")
	}
}

func TestSearch_HugePageIsEmpty(t *testing.T) {
	fx := newFixture(t, Options{}, nil, source("one", records(25, "j")...))

	res, err := fx.agg.Search(context.Background(), "developer", "", model.Filters{Page: 1<<62 + 1, Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Jobs) != 0 || res.Total != 25 || res.TotalPages != 3 {
		t.Errorf("expected empty page past the end, got %d jobs, total=%d pages=%d", len(res.Jobs), res.Total, res.TotalPages)
	}
}

func TestSearch_PagesPerSource(t *testing.T) {
	src := &fakeSource{name: "one", pages: map[int][]model.RawRecord{
		1: records(3, "p1-"),
		2: records(2, "p2-"),
	}}
	fx := newFixture(t, Options{PagesPerSource: 5}, nil, src)

	res, err := fx.agg.Search(context.Background(), "developer", "", model.Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 5 {
		t.Errorf("expected 5 jobs across pages, got %d", res.Total)
	}
	if got := src.calls.Load(); got != 3 {
		t.Errorf("expected to stop after the first empty page (3 calls), got %d", got)
	}
}

func TestSearch_MergesInternalJobsFirst(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	internal := &fakeInternal{jobs: []model.Job{
		{ID: "internal:7", Source: model.SourceInternal, Title: "Platform Engineer", Location: "Nairobi", PostedAt: now},
		{ID: "internal:8", Source: model.SourceInternal, Title: "Remote Go Engineer", Location: "Remote", PostedAt: now},
	}}
	fx := newFixture(t, Options{}, internal, source("one", record("a", "Backend Developer")))
	ctx := context.Background()

	res, err := fx.agg.Search(ctx, "engineer", "", model.Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 3 || res.Jobs[0].Source != model.SourceInternal || res.Jobs[2].Source != "one" {
		t.Fatalf("expected internal jobs first, got %+v", res.Jobs)
	}

	res, _ = fx.agg.Search(ctx, "engineer", "", model.Filters{RemoteOnly: true})
	if res.Total != 1 || res.Jobs[0].ID != "internal:8" {
		t.Errorf("expected remote filter applied to internal jobs, got %+v", res.Jobs)
	}
}

func TestSearch_InternalErrorIgnored(t *testing.T) {
	internal := &fakeInternal{err: errors.New("db unavailable")}
	fx := newFixture(t, Options{}, internal, source("one", record("a", "Backend Developer")))

	res, err := fx.agg.Search(context.Background(), "developer", "", model.Filters{})
	if err != nil || res.Total != 1 {
		t.Fatalf("expected external jobs only, got %+v err=%v", res, err)
	}
}

func TestSearch_RemoteOnlyPostFilter(t *testing.T) {
	remote := record("r", "Backend Developer")
	remote.Remote = true
	fx := newFixture(t, Options{}, nil, source("one", remote, record("o", "Onsite Developer")))

	res, err := fx.agg.Search(context.Background(), "developer", "", model.Filters{RemoteOnly: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 1 || res.Jobs[0].ID != "one:r" {
		t.Errorf("expected only the remote job, got %+v", res.Jobs)
	}
}

func TestRefresh(t *testing.T) {
	src := source("one", record("a", "Backend Developer"))
	fx := newFixture(t, Options{}, nil, src)
	ctx := context.Background()

	n, err := fx.agg.Refresh(ctx, "developer", "", model.Filters{})
	if err != nil || n != 1 {
		t.Fatalf("Refresh = %d, %v", n, err)
	}
	if fx.store.Len() != 1 {
		t.Error("expected refresh to populate the cache")
	}

	src.err = errors.New("down")
	if _, err := fx.agg.Refresh(ctx, "developer", "", model.Filters{}); !errors.Is(err, ErrAllSourcesFailed) {
		t.Errorf("expected ErrAllSourcesFailed, got %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	src := source("one", record("a", "Backend Developer"))
	fx := newFixture(t, Options{}, nil, src)
	ctx := context.Background()

	fx.agg.Search(ctx, "developer", "", model.Filters{})
	if err := fx.agg.Invalidate(ctx, "developer", "", model.Filters{}); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	res, _ := fx.agg.Search(ctx, "developer", "", model.Filters{})
	if res.Source != model.ProvenanceLive || src.calls.Load() != 2 {
		t.Errorf("expected a live refetch after invalidation, got %s with %d calls", res.Source, src.calls.Load())
	}
}
